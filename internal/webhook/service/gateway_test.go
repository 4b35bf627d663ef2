package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/smallbiznis/worksuite/internal/billingtest"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	reconciliationsvc "github.com/smallbiznis/worksuite/internal/reconciliation/service"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/worksuite/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "s3cret"

type countingSubscriptions struct {
	subscriptiondomain.Service
	lookups atomic.Int32
}

func (c *countingSubscriptions) FindByExternalID(ctx context.Context, externalID string) (subscriptiondomain.Subscription, error) {
	c.lookups.Add(1)
	return c.Service.FindByExternalID(ctx, externalID)
}

func newGateway(t *testing.T, env *billingtest.Env, configuredSecret string) (webhookdomain.Gateway, *countingSubscriptions) {
	t.Helper()
	cfg := env.Cfg
	cfg.Webhook.Secret = configuredSecret
	subs := &countingSubscriptions{Service: env.Subscriptions}
	engine := reconciliationsvc.NewEngine(reconciliationsvc.EngineParam{
		Log:        zap.NewNop(),
		Cfg:        cfg,
		BillingCfg: env.BillingCfg,
		Ledger:     env.Ledger,
		Provider:   billingdomain.Noop{},
	})
	gw := NewGateway(GatewayParam{
		Log:           zap.NewNop(),
		Cfg:           cfg,
		Clock:         env.Clock,
		Subscriptions: subs,
		Engine:        engine,
		Ledger:        env.Ledger,
	})
	return gw, subs
}

func seedSubscription(t *testing.T, env *billingtest.Env) subscriptiondomain.Subscription {
	t.Helper()
	contact := env.Contact(t, "Ana", "ana@example.com")
	vat := "21"
	return env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID:              contact.ID.String(),
		ExternalSubscriptionID: "sub_1",
		Description:            "Coworking desk",
		MonthlyAmount:          "50.00",
		VATPercent:             &vat,
	})
}

const paidPayload = `{
	"stripeSubscriptionId": "sub_1",
	"stripeInvoiceId": "in_123",
	"stripePaymentIntentId": "pi_1",
	"customerEmail": "ana@example.com",
	"currency": "eur",
	"status": "paid"
}`

func TestHandleInvoiceRejectsBadSecretBeforeLookup(t *testing.T) {
	env := billingtest.New(t)
	seedSubscription(t, env)
	gw, subs := newGateway(t, env, secret)

	for _, presented := range []string{"", "wrong", secret + " x"} {
		_, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{
			Secret:  presented,
			Payload: []byte(paidPayload),
		})
		require.ErrorIs(t, err, webhookdomain.ErrUnauthorized)
	}

	assert.Equal(t, int32(0), subs.lookups.Load())
	assert.Equal(t, int64(0), env.CountInvoices(t))
}

func TestHandleInvoiceCreatesThenReportsDuplicate(t *testing.T) {
	env := billingtest.New(t)
	seedSubscription(t, env)
	gw, _ := newGateway(t, env, secret)

	first, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(paidPayload)})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.InvoiceStatusCreated, first.Status)
	assert.NotEmpty(t, first.DeliveryID)
	require.NotNil(t, first.Invoice)
	assert.Equal(t, "F042", first.Invoice.Number)
	assert.Equal(t, "60.50", first.Invoice.Total)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, first.Invoice.Status)

	second, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{ID: "delivery-2", Secret: secret, Payload: []byte(paidPayload)})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.InvoiceStatusDuplicate, second.Status)
	assert.Equal(t, "delivery-2", second.DeliveryID)
	assert.Equal(t, int64(1), env.CountInvoices(t))
}

func TestHandleInvoiceWithoutConfiguredSecretAcceptsAnyHeader(t *testing.T) {
	env := billingtest.New(t)
	seedSubscription(t, env)
	gw, _ := newGateway(t, env, "")

	resp, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: "anything", Payload: []byte(paidPayload)})
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.InvoiceStatusCreated, resp.Status)
}

func TestHandleInvoiceSubscriptionErrors(t *testing.T) {
	env := billingtest.New(t)
	sub := seedSubscription(t, env)
	gw, _ := newGateway(t, env, secret)

	unknown := `{"stripeSubscriptionId":"sub_missing","stripeInvoiceId":"in_9","status":"paid"}`
	_, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(unknown)})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = env.Subscriptions.Deactivate(context.Background(), sub.ID)
	require.NoError(t, err)
	_, err = gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(paidPayload)})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionInactive)

	assert.Equal(t, int64(0), env.CountInvoices(t))
}

func TestHandleInvoiceRejectsMalformedPayload(t *testing.T) {
	env := billingtest.New(t)
	gw, subs := newGateway(t, env, secret)

	_, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(`{"stripeSubscriptionId":`)})
	require.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)

	_, err = gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret})
	require.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
	assert.Equal(t, int32(0), subs.lookups.Load())
}

func TestHandlePaymentCompletedMarksInvoicePaid(t *testing.T) {
	env := billingtest.New(t)
	seedSubscription(t, env)
	gw, _ := newGateway(t, env, secret)

	pending := `{"stripeSubscriptionId":"sub_1","stripeInvoiceId":"in_200","status":"failed"}`
	created, err := gw.HandleInvoice(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(pending)})
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusPending, created.Invoice.Status)

	_, err = gw.HandlePaymentCompleted(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(`{}`)})
	require.ErrorIs(t, err, invoicedomain.ErrMissingReference)

	resp, err := gw.HandlePaymentCompleted(context.Background(), webhookdomain.Delivery{
		Secret:  secret,
		Payload: []byte(`{"stripeInvoiceId":"in_200","stripePaymentIntentId":"pi_200"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Updated)

	stored, err := env.Ledger.FindByExternalInvoiceID(context.Background(), "in_200")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	_, err = gw.HandlePaymentCompleted(context.Background(), webhookdomain.Delivery{Secret: "nope", Payload: []byte(`{"reference":"x"}`)})
	require.ErrorIs(t, err, webhookdomain.ErrUnauthorized)
}

func TestHandleSubscriptionActivatedBindsExternalID(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Bruno", "bruno@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID:   contact.ID.String(),
		Description: "Office",
	})
	gw, _ := newGateway(t, env, secret)

	payload := `{"subscriptionId":"` + sub.ID.String() + `","stripeSubscriptionId":"sub_new"}`
	resp, err := gw.HandleSubscriptionActivated(context.Background(), webhookdomain.Delivery{Secret: secret, Payload: []byte(payload)})
	require.NoError(t, err)
	require.NotNil(t, resp.Subscription.ExternalSubscriptionID)
	assert.Equal(t, "sub_new", *resp.Subscription.ExternalSubscriptionID)

	found, err := env.Subscriptions.FindByExternalID(context.Background(), "sub_new")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)
}
