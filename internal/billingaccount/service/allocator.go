package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/config"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPadding = 3

type Allocator struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    billingaccountdomain.Repository
	metrics *obsmetrics.Metrics
	padding int
	locks   keyedMutex
}

type AllocatorParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Repo    billingaccountdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewAllocator(p AllocatorParam) *Allocator {
	padding := p.Cfg.Billing.NumberPadding
	if padding <= 0 {
		padding = defaultPadding
	}
	return &Allocator{
		db:      p.DB,
		log:     p.Log.Named("billingaccount.allocator"),
		repo:    p.Repo,
		metrics: p.Metrics,
		padding: padding,
	}
}

func (a *Allocator) Lock(code string) func() {
	return a.locks.Lock(normalizeCode(code))
}

func (a *Allocator) NextNumber(ctx context.Context, code string) (billingaccountdomain.Allocation, error) {
	unlock := a.Lock(code)
	defer unlock()

	var allocation billingaccountdomain.Allocation
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		allocation, err = a.NextNumberTx(ctx, tx, code)
		return err
	})
	if err != nil {
		return billingaccountdomain.Allocation{}, err
	}
	return allocation, nil
}

func (a *Allocator) NextNumberTx(ctx context.Context, tx *gorm.DB, code string) (billingaccountdomain.Allocation, error) {
	code = normalizeCode(code)
	ctx, span := tracing.Tracer().Start(ctx, "billingaccount.next_number")
	defer span.End()
	span.SetAttributes(attribute.String("billing_account.code", code))

	if code == "" {
		return billingaccountdomain.Allocation{}, billingaccountdomain.ErrInvalidCode
	}

	inc, err := a.repo.IncrementActive(ctx, tx, code)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "increment failed")
		return billingaccountdomain.Allocation{}, fmt.Errorf("increment billing account %s: %w", code, err)
	}
	if inc == nil {
		return billingaccountdomain.Allocation{}, a.missingAccountError(ctx, tx, code)
	}

	allocation := billingaccountdomain.Allocation{
		AccountID: snowflake.ID(inc.AccountID),
		Code:      code,
		Sequence:  inc.Counter,
		Number:    FormatNumber(inc.Prefix, inc.Counter, a.padding),
	}
	span.SetAttributes(attribute.Int64("billing_account.sequence", inc.Counter))
	a.metrics.RecordNumberAllocated(ctx, code)
	a.log.Debug("invoice number allocated",
		zap.String("billing_account", code),
		zap.String("number", allocation.Number),
	)
	return allocation, nil
}

func (a *Allocator) missingAccountError(ctx context.Context, tx *gorm.DB, code string) error {
	account, err := a.repo.FindByCode(ctx, tx, code)
	if err != nil {
		return err
	}
	if account == nil {
		return billingaccountdomain.ErrAccountNotFound
	}
	return billingaccountdomain.ErrAccountInactive
}

// FormatNumber zero-pads the counter to width digits. Larger counters print in full.
func FormatNumber(prefix string, counter int64, width int) string {
	if width <= 0 {
		width = defaultPadding
	}
	return fmt.Sprintf("%s%0*d", prefix, width, counter)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
