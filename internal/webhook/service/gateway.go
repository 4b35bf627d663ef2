package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	obscontext "github.com/smallbiznis/worksuite/internal/observability/context"
	obslogger "github.com/smallbiznis/worksuite/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/observability/tracing"
	reconciliationdomain "github.com/smallbiznis/worksuite/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/worksuite/internal/webhook/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type GatewayParam struct {
	fx.In

	Log           *zap.Logger
	Cfg           config.Config
	Clock         clock.Clock
	Subscriptions subscriptiondomain.Service
	Engine        reconciliationdomain.Engine
	Ledger        invoicedomain.Ledger
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Gateway struct {
	log           *zap.Logger
	clock         clock.Clock
	secretDigest  []byte
	subscriptions subscriptiondomain.Service
	engine        reconciliationdomain.Engine
	ledger        invoicedomain.Ledger
	metrics       *obsmetrics.Metrics
}

func NewGateway(p GatewayParam) webhookdomain.Gateway {
	var digest []byte
	if secret := strings.TrimSpace(p.Cfg.Webhook.Secret); secret != "" {
		sum := sha256.Sum256([]byte(secret))
		digest = sum[:]
	}
	if digest == nil {
		p.Log.Warn("webhook secret not configured, deliveries are accepted unauthenticated")
	}
	return &Gateway{
		log:           p.Log.Named("webhook.gateway"),
		clock:         p.Clock,
		secretDigest:  digest,
		subscriptions: p.Subscriptions,
		engine:        p.Engine,
		ledger:        p.Ledger,
		metrics:       p.Metrics,
	}
}

// HandleInvoice reconciles one provider invoice event against its subscription.
func (g *Gateway) HandleInvoice(ctx context.Context, d webhookdomain.Delivery) (webhookdomain.InvoiceResponse, error) {
	ctx, d = g.begin(ctx, d)
	if err := g.authenticate(ctx, webhookdomain.EndpointInvoice, d.Secret); err != nil {
		return webhookdomain.InvoiceResponse{}, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "webhook.invoice")
	defer span.End()

	var event reconciliationdomain.BillingEvent
	if err := g.decode(ctx, webhookdomain.EndpointInvoice, d.Payload, &event); err != nil {
		return webhookdomain.InvoiceResponse{}, err
	}
	event.Normalize()
	span.SetAttributes(attribute.String("event.status", string(event.Status)))

	sub, err := g.subscriptions.FindByExternalID(ctx, event.ExternalSubscriptionID)
	if err != nil {
		g.rejectFor(ctx, webhookdomain.EndpointInvoice, err)
		return webhookdomain.InvoiceResponse{}, err
	}
	if !sub.Active {
		g.reject(ctx, webhookdomain.EndpointInvoice, "subscription_inactive")
		return webhookdomain.InvoiceResponse{}, subscriptiondomain.ErrSubscriptionInactive
	}

	result, err := g.engine.Apply(obscontext.WithTenantID(ctx, sub.ContactID.String()), sub, event)
	if err != nil {
		g.logger(ctx).Warn("webhook.invoice.failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("external_invoice_id", event.ExternalInvoiceID),
			zap.Error(err),
		)
		return webhookdomain.InvoiceResponse{}, err
	}

	resp := webhookdomain.InvoiceResponse{
		Status:     webhookdomain.InvoiceStatusCreated,
		DeliveryID: d.ID,
		Updated:    result.Updated,
		Message:    result.Message,
		Invoice:    result.Invoice,
	}
	if result.Status == reconciliationdomain.ResultSkipped {
		resp.Status = webhookdomain.InvoiceStatusDuplicate
	}
	g.logger(ctx).Info("webhook.invoice.processed",
		zap.String("status", string(resp.Status)),
		zap.String("external_invoice_id", event.ExternalInvoiceID),
		zap.Bool("updated", resp.Updated),
	)
	return resp, nil
}

// HandlePaymentCompleted marks invoices paid by reference or provider invoice id.
func (g *Gateway) HandlePaymentCompleted(ctx context.Context, d webhookdomain.Delivery) (webhookdomain.PaymentCompletedResponse, error) {
	ctx, d = g.begin(ctx, d)
	if err := g.authenticate(ctx, webhookdomain.EndpointPaymentCompleted, d.Secret); err != nil {
		return webhookdomain.PaymentCompletedResponse{}, err
	}

	var req invoicedomain.MarkPaidByReferenceRequest
	if err := g.decode(ctx, webhookdomain.EndpointPaymentCompleted, d.Payload, &req); err != nil {
		return webhookdomain.PaymentCompletedResponse{}, err
	}

	updated, err := g.ledger.MarkPaidByReference(ctx, req)
	if err != nil {
		if errors.Is(err, invoicedomain.ErrMissingReference) {
			g.reject(ctx, webhookdomain.EndpointPaymentCompleted, "missing_reference")
		}
		return webhookdomain.PaymentCompletedResponse{}, err
	}

	g.logger(ctx).Info("webhook.payment_completed.processed",
		zap.String("reference", strings.TrimSpace(req.Reference)),
		zap.String("external_invoice_id", strings.TrimSpace(req.ExternalInvoiceID)),
		zap.Int64("updated", updated),
	)
	return webhookdomain.PaymentCompletedResponse{
		Status:     "ok",
		DeliveryID: d.ID,
		Updated:    updated,
	}, nil
}

// HandleSubscriptionActivated binds the provider subscription id to a local subscription.
func (g *Gateway) HandleSubscriptionActivated(ctx context.Context, d webhookdomain.Delivery) (webhookdomain.ActivationResponse, error) {
	ctx, d = g.begin(ctx, d)
	if err := g.authenticate(ctx, webhookdomain.EndpointSubscriptionActivated, d.Secret); err != nil {
		return webhookdomain.ActivationResponse{}, err
	}

	var req subscriptiondomain.ActivateRequest
	if err := g.decode(ctx, webhookdomain.EndpointSubscriptionActivated, d.Payload, &req); err != nil {
		return webhookdomain.ActivationResponse{}, err
	}

	sub, err := g.subscriptions.Activate(ctx, req)
	if err != nil {
		g.rejectFor(ctx, webhookdomain.EndpointSubscriptionActivated, err)
		return webhookdomain.ActivationResponse{}, err
	}
	return webhookdomain.ActivationResponse{
		Status:       "ok",
		DeliveryID:   d.ID,
		Subscription: sub,
	}, nil
}

func (g *Gateway) begin(ctx context.Context, d webhookdomain.Delivery) (context.Context, webhookdomain.Delivery) {
	if strings.TrimSpace(d.ID) == "" {
		d.ID = ulid.MustNew(ulid.Timestamp(g.clock.Now()), ulid.DefaultEntropy()).String()
	}
	ctx = obscontext.WithDeliveryID(ctx, d.ID)
	ctx = obscontext.WithActor(ctx, "provider", "webhook")
	return ctx, d
}

// authenticate compares SHA-256 digests of the configured and presented secrets in constant time.
func (g *Gateway) authenticate(ctx context.Context, endpoint, presented string) error {
	if g.secretDigest == nil {
		return nil
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(presented)))
	if subtle.ConstantTimeCompare(sum[:], g.secretDigest) == 1 {
		return nil
	}
	g.reject(ctx, endpoint, "bad_secret")
	return webhookdomain.ErrUnauthorized
}

func (g *Gateway) decode(ctx context.Context, endpoint string, payload []byte, out any) error {
	if len(payload) == 0 {
		g.reject(ctx, endpoint, "empty_payload")
		return webhookdomain.ErrInvalidPayload
	}
	if err := json.Unmarshal(payload, out); err != nil {
		g.reject(ctx, endpoint, "malformed_payload")
		return fmt.Errorf("%w: %v", webhookdomain.ErrInvalidPayload, err)
	}
	return nil
}

func (g *Gateway) reject(ctx context.Context, endpoint, reason string) {
	g.metrics.RecordWebhookRejection(ctx, endpoint, reason)
	g.logger(ctx).Warn("webhook.rejected",
		zap.String("endpoint", endpoint),
		zap.String("reason", reason),
	)
}

// rejectFor counts client-side refusals only; infrastructure errors are not rejections.
func (g *Gateway) rejectFor(ctx context.Context, endpoint string, err error) {
	if reason := reasonFor(err); reason != "" {
		g.reject(ctx, endpoint, reason)
	}
}

func (g *Gateway) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, g.log)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		return "subscription_not_found"
	case errors.Is(err, subscriptiondomain.ErrSubscriptionInactive):
		return "subscription_inactive"
	case errors.Is(err, subscriptiondomain.ErrInvalidExternalID), errors.Is(err, subscriptiondomain.ErrInvalidSubscription):
		return "invalid_subscription"
	case errors.Is(err, subscriptiondomain.ErrSubscriptionAlreadyBound), errors.Is(err, subscriptiondomain.ErrDuplicateExternalID):
		return "subscription_conflict"
	default:
		return ""
	}
}
