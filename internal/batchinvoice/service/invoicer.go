package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	"github.com/smallbiznis/worksuite/internal/billingcycle"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sourceUsage     = "usage_sweep"
	sourceRecurring = "recurring_sweep"
)

type Invoicer struct {
	log           *zap.Logger
	clock         clock.Clock
	defaults      config.BillingDefaults
	providerCfg   config.ProviderConfig
	billingCfg    *config.BillingConfigHolder
	ledger        invoicedomain.Ledger
	bookings      bookingdomain.Service
	contacts      contactdomain.Service
	subscriptions subscriptiondomain.Service
	subRepo       subscriptiondomain.Repository
	provider      billingdomain.Provider
	metrics       *obsmetrics.Metrics
	location      *time.Location
}

type InvoicerParam struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	BillingCfg    *config.BillingConfigHolder
	Ledger        invoicedomain.Ledger
	Bookings      bookingdomain.Service
	Contacts      contactdomain.Service
	Subscriptions subscriptiondomain.Service
	SubRepo       subscriptiondomain.Repository
	Provider      billingdomain.Provider
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

func NewInvoicer(p InvoicerParam) batchdomain.Invoicer {
	provider := p.Provider
	if provider == nil {
		provider = billingdomain.Noop{}
	}
	return &Invoicer{
		log:           p.Log.Named("batchinvoice.service"),
		clock:         p.Clock,
		defaults:      p.Cfg.Billing,
		providerCfg:   p.Cfg.Provider,
		billingCfg:    p.BillingCfg,
		ledger:        p.Ledger,
		bookings:      p.Bookings,
		contacts:      p.Contacts,
		subscriptions: p.Subscriptions,
		subRepo:       p.SubRepo,
		provider:      provider,
		metrics:       p.Metrics,
		location:      billingcycle.LoadLocation(p.Cfg.Billing.Timezone),
	}
}

func (s *Invoicer) RunPeriod(ctx context.Context, period billingcycle.Period) (batchdomain.Report, error) {
	if period.IsZero() {
		return batchdomain.Report{}, billingcycle.ErrInvalidPeriod
	}

	ctx, span := tracing.Tracer().Start(ctx, "batchinvoice.run_period")
	defer span.End()
	span.SetAttributes(attribute.String("billing.period", period.String()))

	report := batchdomain.Report{Period: period.String(), StartedAt: s.clock.Now()}
	start, end := period.Bounds(s.location)
	s.log.Info("billing.run.start",
		zap.String("period", report.Period),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
	)

	var errs []error
	usage, err := s.runUsage(ctx, period, start, end)
	if err != nil {
		errs = append(errs, fmt.Errorf("usage sweep: %w", err))
	}
	report.Usage = usage

	recurring, err := s.runRecurring(ctx, period, end)
	if err != nil {
		errs = append(errs, fmt.Errorf("recurring sweep: %w", err))
	}
	report.Recurring = recurring

	for _, e := range errs {
		report.Errors = append(report.Errors, e.Error())
	}
	report.FinishedAt = s.clock.Now()

	usageCounts := report.UsageCounts()
	recurringCounts := report.RecurringCounts()
	s.log.Info("billing.run.finish",
		zap.String("period", report.Period),
		zap.Int("usage_created", usageCounts.Created),
		zap.Int("usage_failed", usageCounts.Failed),
		zap.Int("recurring_created", recurringCounts.Created),
		zap.Int("recurring_skipped", recurringCounts.Skipped),
		zap.Int("recurring_failed", recurringCounts.Failed),
		zap.String("total_invoiced", s.totalInvoiced(report).StringFixed(2)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, errors.Join(errs...)
}

func (s *Invoicer) totalInvoiced(report batchdomain.Report) decimal.Decimal {
	total := decimal.Zero
	for _, item := range report.Usage {
		if v, err := decimal.NewFromString(item.Total); err == nil {
			total = total.Add(v)
		}
	}
	for _, item := range report.Recurring {
		if v, err := decimal.NewFromString(item.Total); err == nil {
			total = total.Add(v)
		}
	}
	return total
}

// runUsage builds one invoice per contact from that contact's unbilled bookings.
// Contacts are invoiced on a bounded pool; one failure never blocks another.
func (s *Invoicer) runUsage(ctx context.Context, period billingcycle.Period, start, end time.Time) ([]batchdomain.TenantResult, error) {
	bookings, err := s.bookings.ListUninvoiced(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return []batchdomain.TenantResult{}, nil
	}

	byContact := lo.GroupBy(bookings, func(b bookingdomain.Booking) snowflake.ID { return b.ContactID })
	contactIDs := lo.Keys(byContact)
	slices.Sort(contactIDs)

	contacts, err := s.contacts.GetMany(ctx, contactIDs)
	if err != nil {
		return nil, err
	}

	concurrency := s.defaults.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	p := pool.NewWithResults[batchdomain.TenantResult]().WithMaxGoroutines(concurrency)
	for _, contactID := range contactIDs {
		group := byContact[contactID]
		contact, known := contacts[contactID]
		p.Go(func() batchdomain.TenantResult {
			if !known {
				return s.tenantFailure(ctx, contactID, len(group), contactdomain.ErrContactNotFound)
			}
			return s.invoiceTenant(ctx, period, contact, group)
		})
	}

	results := p.Wait()
	slices.SortFunc(results, func(a, b batchdomain.TenantResult) int {
		return strings.Compare(a.ContactID, b.ContactID)
	})
	return results, nil
}

func (s *Invoicer) invoiceTenant(ctx context.Context, period billingcycle.Period, contact contactdomain.Contact, group []bookingdomain.Booking) batchdomain.TenantResult {
	override := s.billingCfg.Get().ForContact(contact.ID.String())

	vat := s.defaults.DefaultVATPercent
	if v, ok := override.VAT(); ok {
		vat = v
	}
	accountCode := s.defaults.DefaultAccountCode
	if override.AccountCode != "" {
		accountCode = override.AccountCode
	}

	slices.SortFunc(group, func(a, b bookingdomain.Booking) int { return a.StartsAt.Compare(b.StartsAt) })
	lines := lo.Map(group, func(b bookingdomain.Booking, _ int) invoicedomain.DraftLine {
		id := b.ID
		return invoicedomain.DraftLine{
			Concept:   b.LineConcept(),
			UnitPrice: b.UnitPrice,
			Quantity:  b.Quantity,
			BookingID: &id,
		}
	})
	bookingIDs := lo.Map(group, func(b bookingdomain.Booking, _ int) snowflake.ID { return b.ID })

	remote := invoicedomain.RemoteSyncSkipped
	if s.mirrorEnabled() && contact.Email != "" {
		remote = invoicedomain.RemoteSyncPending
	}

	issued := s.clock.Now()
	due := issued.AddDate(0, 0, s.dueInDays(override))
	invoice, err := s.ledger.Create(ctx, invoicedomain.Draft{
		AccountCode: accountCode,
		ContactID:   contact.ID,
		Description: fmt.Sprintf("Bookings %s", period),
		VATPercent:  vat,
		Currency:    s.defaults.DefaultCurrency,
		Status:      invoicedomain.InvoiceStatusPending,
		IssuedAt:    issued,
		DueAt:       &due,
		RemoteSync:  remote,
		Source:      sourceUsage,
		Metadata:    map[string]any{"period": period.String()},
		Lines:       lines,
	}, func(ctx context.Context, tx *gorm.DB, inv invoicedomain.Invoice) error {
		return s.bookings.ClaimTx(ctx, tx, bookingIDs, inv.ID)
	})
	if err != nil {
		return s.tenantFailure(ctx, contact.ID, len(group), err)
	}

	result := batchdomain.TenantResult{
		ContactID:    contact.ID.String(),
		Status:       batchdomain.ItemCreated,
		InvoiceID:    invoice.ID.String(),
		Number:       invoice.Number,
		Bookings:     len(group),
		Total:        invoice.Total.StringFixed(2),
		RemoteStatus: string(remote),
	}
	if remote == invoicedomain.RemoteSyncPending {
		result.RemoteStatus = string(s.mirror(ctx, invoice, contact, s.dueInDays(override)))
	}
	s.metrics.RecordBatchResult(ctx, batchdomain.SweepUsage, string(batchdomain.ItemCreated))
	return result
}

func (s *Invoicer) tenantFailure(ctx context.Context, contactID snowflake.ID, bookings int, err error) batchdomain.TenantResult {
	s.log.Error("usage invoice failed",
		zap.String("contact_id", contactID.String()),
		zap.Int("bookings", bookings),
		zap.Error(err),
	)
	s.metrics.RecordBatchResult(ctx, batchdomain.SweepUsage, string(batchdomain.ItemFailed))
	return batchdomain.TenantResult{
		ContactID: contactID.String(),
		Status:    batchdomain.ItemFailed,
		Bookings:  bookings,
		Error:     err.Error(),
	}
}

// runRecurring issues one pending invoice per due bank-transfer subscription.
// The period marker is re-checked under the subscription row lock and written in
// the invoice transaction, so a repeated run never bills the same period twice.
func (s *Invoicer) runRecurring(ctx context.Context, period billingcycle.Period, periodEnd time.Time) ([]batchdomain.SubscriptionResult, error) {
	due, err := s.subscriptions.ListDueBankTransfer(ctx, period.String(), periodEnd)
	if err != nil {
		return nil, err
	}

	results := make([]batchdomain.SubscriptionResult, 0, len(due))
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			results = append(results, s.subscriptionFailure(ctx, sub, err))
			continue
		}
		results = append(results, s.invoiceSubscription(ctx, period, sub))
	}
	return results, nil
}

func (s *Invoicer) invoiceSubscription(ctx context.Context, period billingcycle.Period, sub subscriptiondomain.Subscription) batchdomain.SubscriptionResult {
	marker := period.String()
	override := s.billingCfg.Get().ForContact(sub.ContactID.String())

	def := s.defaults.DefaultVATPercent
	if v, ok := override.VAT(); ok {
		def = v
	}
	accountCode := sub.BillingAccountCode
	if accountCode == "" {
		accountCode = override.AccountCode
	}
	if accountCode == "" {
		accountCode = s.defaults.DefaultAccountCode
	}

	issued := s.clock.Now()
	due := issued.AddDate(0, 0, s.dueInDays(override))
	subID := sub.ID
	concept := fmt.Sprintf("%s %s", sub.Description, marker)

	invoice, err := s.ledger.Create(ctx, invoicedomain.Draft{
		AccountCode:    accountCode,
		ContactID:      sub.ContactID,
		SubscriptionID: &subID,
		Description:    concept,
		VATPercent:     sub.EffectiveVAT(def),
		Currency:       sub.Currency,
		Status:         invoicedomain.InvoiceStatusPending,
		IssuedAt:       issued,
		DueAt:          &due,
		Source:         sourceRecurring,
		Metadata: map[string]any{
			"period":          marker,
			"subscription_id": sub.ID.String(),
		},
		Lines: []invoicedomain.DraftLine{{
			Concept:   concept,
			UnitPrice: sub.MonthlyAmount,
			Quantity:  decimal.NewFromInt(1),
		}},
		Guard: func(ctx context.Context, tx *gorm.DB) error {
			current, err := s.subRepo.LockByID(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			switch {
			case current == nil:
				return subscriptiondomain.ErrSubscriptionNotFound
			case !current.Active:
				return subscriptiondomain.ErrSubscriptionInactive
			case current.LastInvoicedPeriod != nil && *current.LastInvoicedPeriod >= marker:
				return subscriptiondomain.ErrAlreadyInvoiced
			}
			return nil
		},
	}, func(ctx context.Context, tx *gorm.DB, _ invoicedomain.Invoice) error {
		affected, err := s.subRepo.MarkInvoiced(ctx, tx, sub.ID, marker, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return subscriptiondomain.ErrAlreadyInvoiced
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrAlreadyInvoiced) || errors.Is(err, subscriptiondomain.ErrSubscriptionInactive) {
			s.log.Info("subscription skipped",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("period", marker),
				zap.String("reason", err.Error()),
			)
			s.metrics.RecordBatchResult(ctx, batchdomain.SweepRecurring, string(batchdomain.ItemSkipped))
			return batchdomain.SubscriptionResult{
				SubscriptionID: sub.ID.String(),
				ContactID:      sub.ContactID.String(),
				Status:         batchdomain.ItemSkipped,
				Error:          err.Error(),
			}
		}
		return s.subscriptionFailure(ctx, sub, err)
	}

	s.metrics.RecordBatchResult(ctx, batchdomain.SweepRecurring, string(batchdomain.ItemCreated))
	return batchdomain.SubscriptionResult{
		SubscriptionID: sub.ID.String(),
		ContactID:      sub.ContactID.String(),
		Status:         batchdomain.ItemCreated,
		InvoiceID:      invoice.ID.String(),
		Number:         invoice.Number,
		Total:          invoice.Total.StringFixed(2),
	}
}

func (s *Invoicer) subscriptionFailure(ctx context.Context, sub subscriptiondomain.Subscription, err error) batchdomain.SubscriptionResult {
	s.log.Error("recurring invoice failed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("contact_id", sub.ContactID.String()),
		zap.Error(err),
	)
	s.metrics.RecordBatchResult(ctx, batchdomain.SweepRecurring, string(batchdomain.ItemFailed))
	return batchdomain.SubscriptionResult{
		SubscriptionID: sub.ID.String(),
		ContactID:      sub.ContactID.String(),
		Status:         batchdomain.ItemFailed,
		Error:          err.Error(),
	}
}

func (s *Invoicer) dueInDays(override config.ContactBilling) int {
	if override.DueInDays > 0 {
		return override.DueInDays
	}
	return s.defaults.DueInDays
}
