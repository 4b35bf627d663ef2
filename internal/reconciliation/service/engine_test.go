package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/worksuite/internal/billingtest"
	"github.com/smallbiznis/worksuite/internal/config"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	reconciliationdomain "github.com/smallbiznis/worksuite/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) CreateInvoice(ctx context.Context, req billingdomain.RemoteInvoiceRequest) (billingdomain.RemoteInvoice, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(billingdomain.RemoteInvoice), args.Error(1)
}

func (m *mockProvider) ResolveDocumentURL(ctx context.Context, externalInvoiceID string) (string, error) {
	args := m.Called(ctx, externalInvoiceID)
	return args.String(0), args.Error(1)
}

func newEngine(env *billingtest.Env, provider billingdomain.Provider) reconciliationdomain.Engine {
	return NewEngine(EngineParam{
		Log:        zap.NewNop(),
		Cfg:        env.Cfg,
		BillingCfg: env.BillingCfg,
		Ledger:     env.Ledger,
		Provider:   provider,
	})
}

func vat(v string) *string { return &v }

func paidEvent(externalID string) reconciliationdomain.BillingEvent {
	return reconciliationdomain.BillingEvent{
		ExternalSubscriptionID: "sub_1",
		ExternalInvoiceID:      externalID,
		ExternalPaymentID:      "pi_1",
		CustomerEmail:          "ana@example.com",
		Currency:               "eur",
		Status:                 reconciliationdomain.EventStatusPaid,
	}
}

func TestApplyCreatesPaidInvoiceFromFlatAmount(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: contact.ID.String(), MonthlyAmount: "50.00", VATPercent: vat("21"),
	})
	engine := newEngine(env, billingdomain.Noop{})

	result, err := engine.Apply(context.Background(), sub, paidEvent("in_123"))
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultCreated, result.Status)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, "F042", result.Invoice.Number)
	assert.Equal(t, "50.00", result.Invoice.Subtotal)
	assert.Equal(t, "10.50", result.Invoice.VATAmount)
	assert.Equal(t, "60.50", result.Invoice.Total)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)

	stored, err := env.Ledger.FindByExternalInvoiceID(context.Background(), "in_123")
	require.NoError(t, err)
	require.NotNil(t, stored.ExternalPaymentID)
	assert.Equal(t, "pi_1", *stored.ExternalPaymentID)
	require.NotNil(t, stored.SubscriptionID)
	assert.Equal(t, sub.ID, *stored.SubscriptionID)
	assert.NotNil(t, stored.PaidAt)

	full, err := env.Ledger.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, full.Lines, 1)
	assert.Equal(t, sub.Description, full.Lines[0].Concept)
	assert.True(t, full.Lines[0].LineTotal.Equal(decimal.RequireFromString("50.00")))
}

func TestApplyReplayIsSkipped(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: contact.ID.String(), MonthlyAmount: "50.00", VATPercent: vat("21"),
	})
	engine := newEngine(env, billingdomain.Noop{})
	ctx := context.Background()

	first, err := engine.Apply(ctx, sub, paidEvent("in_123"))
	require.NoError(t, err)
	before, err := env.Ledger.FindByExternalInvoiceID(ctx, "in_123")
	require.NoError(t, err)

	second, err := engine.Apply(ctx, sub, paidEvent("in_123"))
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultSkipped, second.Status)
	assert.False(t, second.Updated)
	assert.Equal(t, first.Invoice.Number, second.Invoice.Number)
	assert.Equal(t, int64(1), env.CountInvoices(t))

	after, err := env.Ledger.FindByExternalInvoiceID(ctx, "in_123")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, before.Status, after.Status)
}

func TestApplyReplayPromotesToPaidButNeverDowngrades(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})
	engine := newEngine(env, billingdomain.Noop{})
	ctx := context.Background()

	failed := paidEvent("in_9")
	failed.Status = reconciliationdomain.EventStatusFailed
	failed.ExternalPaymentID = ""
	res, err := engine.Apply(ctx, sub, failed)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, res.Invoice.Status)

	paid := paidEvent("in_9")
	paid.DocumentURL = "https://files.example.com/in_9.pdf"
	res, err = engine.Apply(ctx, sub, paid)
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultSkipped, res.Status)
	assert.True(t, res.Updated)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.Invoice.Status)

	res, err = engine.Apply(ctx, sub, failed)
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultSkipped, res.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.Invoice.Status)

	stored, err := env.Ledger.FindByExternalInvoiceID(ctx, "in_9")
	require.NoError(t, err)
	require.NotNil(t, stored.DocumentURL)
	assert.Equal(t, "https://files.example.com/in_9.pdf", *stored.DocumentURL)
	assert.Equal(t, int64(1), env.CountInvoices(t))
}

func TestApplyPrefersReportedAmount(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})
	engine := newEngine(env, billingdomain.Noop{})

	event := paidEvent("in_prorated")
	cents := int64(2500)
	event.AmountPaidCents = &cents

	res, err := engine.Apply(context.Background(), sub, event)
	require.NoError(t, err)
	assert.Equal(t, "25.00", res.Invoice.Subtotal)
	assert.Equal(t, "5.25", res.Invoice.VATAmount)
	assert.Equal(t, "30.25", res.Invoice.Total)
}

func TestApplyZeroCentFailureFallsBackToFlatAmount(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: contact.ID.String(), MonthlyAmount: "50.00", VATPercent: vat("21"),
	})
	engine := newEngine(env, billingdomain.Noop{})
	ctx := context.Background()

	failed := paidEvent("in_zero")
	failed.Status = reconciliationdomain.EventStatusFailed
	failed.ExternalPaymentID = ""
	zero := int64(0)
	failed.AmountPaidCents = &zero

	res, err := engine.Apply(ctx, sub, failed)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, res.Invoice.Status)
	assert.Equal(t, "50.00", res.Invoice.Subtotal)
	assert.Equal(t, "60.50", res.Invoice.Total)

	res, err = engine.Apply(ctx, sub, paidEvent("in_zero"))
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultSkipped, res.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, "60.50", res.Invoice.Total)
	assert.Equal(t, int64(1), env.CountInvoices(t))
}

func TestApplyUsesContactOverrideWhenSubscriptionHasNoVAT(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	env.BillingCfg = config.NewStaticBillingConfigHolder(config.BillingConfig{
		Contacts: map[string]config.ContactBilling{contact.ID.String(): {VATPercent: "10"}},
	})
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})
	engine := newEngine(env, billingdomain.Noop{})

	res, err := engine.Apply(context.Background(), sub, paidEvent("in_vat"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", res.Invoice.VATAmount)
}

func TestApplyRejectsInactiveAndInvalidEvents(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})
	engine := newEngine(env, billingdomain.Noop{})
	ctx := context.Background()

	bad := paidEvent("in_bad")
	bad.Status = "refunded"
	_, err := engine.Apply(ctx, sub, bad)
	assert.ErrorIs(t, err, reconciliationdomain.ErrInvalidEventStatus)

	negative := paidEvent("in_neg")
	cents := int64(-1)
	negative.AmountPaidCents = &cents
	_, err = engine.Apply(ctx, sub, negative)
	assert.ErrorIs(t, err, reconciliationdomain.ErrInvalidEventAmount)

	inactive, err := env.Subscriptions.Deactivate(ctx, sub.ID)
	require.NoError(t, err)
	_, err = engine.Apply(ctx, inactive, paidEvent("in_late"))
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionInactive)
	assert.Equal(t, int64(0), env.CountInvoices(t))
}

func TestApplyResolvesDocumentURLBestEffort(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})

	provider := &mockProvider{}
	provider.On("ResolveDocumentURL", mock.Anything, "in_doc").Return("https://pay.example.com/in_doc.pdf", nil).Once()
	provider.On("ResolveDocumentURL", mock.Anything, "in_down").Return("", errors.New("timeout")).Once()
	engine := newEngine(env, provider)
	ctx := context.Background()

	_, err := engine.Apply(ctx, sub, paidEvent("in_doc"))
	require.NoError(t, err)
	stored, err := env.Ledger.FindByExternalInvoiceID(ctx, "in_doc")
	require.NoError(t, err)
	require.NotNil(t, stored.DocumentURL)
	assert.Equal(t, "https://pay.example.com/in_doc.pdf", *stored.DocumentURL)

	res, err := engine.Apply(ctx, sub, paidEvent("in_down"))
	require.NoError(t, err)
	assert.Equal(t, reconciliationdomain.ResultCreated, res.Status)
	stored, err = env.Ledger.FindByExternalInvoiceID(ctx, "in_down")
	require.NoError(t, err)
	assert.Nil(t, stored.DocumentURL)

	provider.AssertExpectations(t)
}

func TestApplyConcurrentDeliveriesCreateOneInvoice(t *testing.T) {
	env := billingtest.New(t)
	contact := env.Contact(t, "Ana", "ana@example.com")
	sub := env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{ContactID: contact.ID.String()})
	engine := newEngine(env, billingdomain.Noop{})

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		skipped int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Apply(context.Background(), sub, paidEvent("in_race"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Status {
			case reconciliationdomain.ResultCreated:
				created++
			case reconciliationdomain.ResultSkipped:
				skipped++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, deliveries-1, skipped)
	assert.Equal(t, int64(1), env.CountInvoices(t))

	var counter int64
	require.NoError(t, env.DB.Raw(`SELECT counter FROM billing_accounts WHERE code = ?`, "PT").Scan(&counter).Error)
	assert.Equal(t, int64(42), counter)
}
