package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/worksuite/internal/config"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	reconciliationdomain "github.com/smallbiznis/worksuite/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sourceWebhook     = "webhook"
	duplicateDelivery = "duplicate, already processed"
)

type Engine struct {
	log        *zap.Logger
	ledger     invoicedomain.Ledger
	provider   billingdomain.Provider
	metrics    *obsmetrics.Metrics
	defaults   config.BillingDefaults
	billingCfg *config.BillingConfigHolder
}

type EngineParam struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	BillingCfg *config.BillingConfigHolder
	Ledger     invoicedomain.Ledger
	Provider   billingdomain.Provider
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParam) reconciliationdomain.Engine {
	provider := p.Provider
	if provider == nil {
		provider = billingdomain.Noop{}
	}
	return &Engine{
		log:        p.Log.Named("reconciliation.engine"),
		ledger:     p.Ledger,
		provider:   provider,
		metrics:    p.Metrics,
		defaults:   p.Cfg.Billing,
		billingCfg: p.BillingCfg,
	}
}

// Apply turns one provider event into exactly one local invoice. A replay of an
// already-seen external invoice id returns ResultSkipped and at most promotes the
// existing invoice to paid.
func (e *Engine) Apply(ctx context.Context, sub subscriptiondomain.Subscription, event reconciliationdomain.BillingEvent) (reconciliationdomain.Result, error) {
	event.Normalize()
	if err := event.Validate(); err != nil {
		return reconciliationdomain.Result{}, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "reconciliation.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("subscription.id", sub.ID.String()),
		attribute.String("event.status", string(event.Status)),
	)

	log := e.log.With(
		zap.String("subscription_id", sub.ID.String()),
		zap.String("external_invoice_id", event.ExternalInvoiceID),
	)

	if event.ExternalInvoiceID != "" {
		existing, err := e.ledger.FindByExternalInvoiceID(ctx, event.ExternalInvoiceID)
		switch {
		case err == nil:
			return e.replay(ctx, log, existing, event)
		case !errors.Is(err, invoicedomain.ErrInvoiceNotFound):
			return e.fail(ctx, span, err)
		}
	}

	if !sub.Active {
		return e.fail(ctx, span, subscriptiondomain.ErrSubscriptionInactive)
	}

	draft := e.buildDraft(sub, event)
	created, err := e.ledger.Create(ctx, draft)
	if err != nil {
		if errors.Is(err, invoicedomain.ErrDuplicateExternalInvoice) {
			// Lost the insert race to a concurrent delivery of the same event.
			existing, findErr := e.ledger.FindByExternalInvoiceID(ctx, event.ExternalInvoiceID)
			if findErr != nil {
				return e.fail(ctx, span, findErr)
			}
			return e.replay(ctx, log, existing, event)
		}
		return e.fail(ctx, span, err)
	}

	if created.Status == invoicedomain.InvoiceStatusPaid && created.DocumentURL == nil && event.ExternalInvoiceID != "" {
		e.resolveDocument(ctx, log, created)
	}

	e.metrics.RecordReconcileOutcome(ctx, string(reconciliationdomain.ResultCreated))
	summary := created.Summary()
	log.Info("billing event reconciled",
		zap.String("invoice_id", summary.ID),
		zap.String("number", summary.Number),
		zap.String("status", string(summary.Status)),
	)
	return reconciliationdomain.Result{Status: reconciliationdomain.ResultCreated, Invoice: &summary}, nil
}

func (e *Engine) replay(ctx context.Context, log *zap.Logger, existing invoicedomain.Invoice, event reconciliationdomain.BillingEvent) (reconciliationdomain.Result, error) {
	result := reconciliationdomain.Result{Status: reconciliationdomain.ResultSkipped, Message: duplicateDelivery}

	if existing.Status != invoicedomain.InvoiceStatusPaid && event.Status == reconciliationdomain.EventStatusPaid {
		updated, changed, err := e.ledger.MarkPaid(ctx, existing.ID, invoicedomain.MarkPaidRequest{
			PaymentID:   event.ExternalPaymentID,
			DocumentURL: event.DocumentURL,
		})
		if err != nil {
			e.metrics.RecordReconcileOutcome(ctx, "error")
			return reconciliationdomain.Result{}, err
		}
		existing = updated
		result.Updated = changed
		if changed && updated.DocumentURL == nil {
			e.resolveDocument(ctx, log, updated)
		}
	}

	summary := existing.Summary()
	result.Invoice = &summary
	e.metrics.RecordReconcileOutcome(ctx, string(reconciliationdomain.ResultSkipped))
	log.Info("duplicate billing event",
		zap.String("invoice_id", summary.ID),
		zap.Bool("updated", result.Updated),
	)
	return result, nil
}

func (e *Engine) fail(ctx context.Context, span trace.Span, err error) (reconciliationdomain.Result, error) {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "reconcile failed")
	e.metrics.RecordReconcileOutcome(ctx, "error")
	return reconciliationdomain.Result{}, err
}

func (e *Engine) buildDraft(sub subscriptiondomain.Subscription, event reconciliationdomain.BillingEvent) invoicedomain.Draft {
	subtotal := sub.MonthlyAmount
	// Failed payments report zero cents; that is no amount, not a zero invoice.
	if event.AmountPaidCents != nil && *event.AmountPaidCents > 0 {
		subtotal = invoicedomain.FromMinorUnits(*event.AmountPaidCents)
	}

	status := invoicedomain.InvoiceStatusPending
	if event.Status == reconciliationdomain.EventStatusPaid {
		status = invoicedomain.InvoiceStatusPaid
	}

	currency := event.Currency
	if currency == "" {
		currency = sub.Currency
	}

	metadata := map[string]any{
		"subscription_id": sub.ID.String(),
		"event_status":    string(event.Status),
	}
	if event.PeriodStart != nil {
		metadata["period_start"] = event.PeriodStart.UTC().Format(time.RFC3339)
	}
	if event.PeriodEnd != nil {
		metadata["period_end"] = event.PeriodEnd.UTC().Format(time.RFC3339)
	}
	if event.CustomerEmail != "" {
		metadata["customer_email"] = event.CustomerEmail
	}

	subID := sub.ID
	return invoicedomain.Draft{
		AccountCode:       e.accountCode(sub),
		ContactID:         sub.ContactID,
		SubscriptionID:    &subID,
		Description:       sub.Description,
		VATPercent:        e.vatPercent(sub),
		Currency:          currency,
		Status:            status,
		ExternalInvoiceID: event.ExternalInvoiceID,
		ExternalPaymentID: event.ExternalPaymentID,
		DocumentURL:       event.DocumentURL,
		Source:            sourceWebhook,
		Metadata:          metadata,
		Lines: []invoicedomain.DraftLine{{
			Concept:   sub.Description,
			UnitPrice: subtotal,
			Quantity:  decimal.NewFromInt(1),
		}},
	}
}

// vatPercent prefers the subscription, then billing.yml for the contact, then the env default.
func (e *Engine) vatPercent(sub subscriptiondomain.Subscription) decimal.Decimal {
	def := e.defaults.DefaultVATPercent
	if vat, ok := e.billingCfg.Get().ForContact(sub.ContactID.String()).VAT(); ok {
		def = vat
	}
	return sub.EffectiveVAT(def)
}

func (e *Engine) accountCode(sub subscriptiondomain.Subscription) string {
	if sub.BillingAccountCode != "" {
		return sub.BillingAccountCode
	}
	if code := e.billingCfg.Get().ForContact(sub.ContactID.String()).AccountCode; code != "" {
		return code
	}
	return e.defaults.DefaultAccountCode
}

func (e *Engine) resolveDocument(ctx context.Context, log *zap.Logger, inv invoicedomain.Invoice) {
	if inv.ExternalInvoiceID == nil {
		return
	}
	timeout := e.defaults.DocumentResolveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url, err := e.provider.ResolveDocumentURL(resolveCtx, *inv.ExternalInvoiceID)
	if err != nil {
		if !errors.Is(err, billingdomain.ErrNotConfigured) {
			log.Warn("document url not resolved", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		}
		return
	}
	if url == "" {
		return
	}
	if err := e.ledger.AttachDocument(ctx, inv.ID, url); err != nil {
		log.Warn("document url not stored", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
	}
}
