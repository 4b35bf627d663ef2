package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/worksuite/internal/webhook/domain"
)

const deliveryIDHeader = "X-Delivery-Id"

func (s *Server) HandleInvoiceWebhook(c *gin.Context) {
	delivery, err := s.readDelivery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.gateway.HandleInvoice(c.Request.Context(), delivery)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandlePaymentCompletedWebhook(c *gin.Context) {
	delivery, err := s.readDelivery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.gateway.HandlePaymentCompleted(c.Request.Context(), delivery)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleSubscriptionActivatedWebhook(c *gin.Context) {
	delivery, err := s.readDelivery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.gateway.HandleSubscriptionActivated(c.Request.Context(), delivery)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// readDelivery captures the raw callback. The gateway checks the secret before decoding the body.
func (s *Server) readDelivery(c *gin.Context) (webhookdomain.Delivery, error) {
	header := strings.TrimSpace(s.cfg.Webhook.HeaderName)
	if header == "" {
		header = "X-Webhook-Secret"
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		return webhookdomain.Delivery{}, invalidRequestError()
	}

	return webhookdomain.Delivery{
		ID:      strings.TrimSpace(c.GetHeader(deliveryIDHeader)),
		Secret:  c.GetHeader(header),
		Payload: payload,
	}, nil
}
