package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	"github.com/smallbiznis/worksuite/internal/billingcycle"
	obscontext "github.com/smallbiznis/worksuite/internal/observability/context"
)

// RunBillingPeriod runs both sweeps for the requested month. An empty period
// resolves the same way the monthly schedule does.
func (s *Server) RunBillingPeriod(c *gin.Context) {
	var req batchdomain.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	period, err := s.resolvePeriod(req.Period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "operator", "http")

	var report batchdomain.Report
	if s.scheduler != nil {
		report, err = s.scheduler.RunPeriod(ctx, period)
	} else {
		report, err = s.invoicer.RunPeriod(ctx, period)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) resolvePeriod(raw string) (billingcycle.Period, error) {
	if raw = strings.TrimSpace(raw); raw != "" {
		return billingcycle.Parse(raw)
	}
	loc := billingcycle.LoadLocation(s.cfg.Billing.Timezone)
	return billingcycle.ForTime(s.clock.Now(), loc, s.cfg.Billing.PeriodOffsetMonths), nil
}
