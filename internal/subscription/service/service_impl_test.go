package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/smallbiznis/worksuite/internal/subscription/repository"
	"github.com/smallbiznis/worksuite/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (subscriptiondomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    storetest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Cfg: config.Config{Billing: config.BillingDefaults{
			DefaultCurrency:      "EUR",
			DefaultAccountCode:   "F",
			RecurringDescription: "Monthly subscription",
		}},
		Repo: repository.Provide(),
	})
	return svc, clk
}

func TestCreateAppliesDefaultsAndValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{ContactID: "abc"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidContact)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{ContactID: "1", BillingMethod: "cash"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidBillingMethod)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "1", BillingMethod: subscriptiondomain.BillingMethodStripe, MonthlyAmount: "0",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAmount)

	bad := "150"
	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "1", BillingMethod: subscriptiondomain.BillingMethodStripe, MonthlyAmount: "50", VATPercent: &bad,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidVATPercent)

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "1", BillingMethod: subscriptiondomain.BillingMethodBankTransfer, MonthlyAmount: "50.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", sub.Currency)
	assert.Equal(t, "F", sub.BillingAccountCode)
	assert.Equal(t, "Monthly subscription", sub.Description)
	assert.False(t, sub.VATPercent.Valid)
	assert.True(t, sub.EffectiveVAT(decimal.NewFromInt(21)).Equal(decimal.NewFromInt(21)))

	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.MonthlyAmount.Equal(decimal.RequireFromString("50")))
	assert.True(t, stored.Active)
}

func TestActivateBindsExternalIDOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "7", BillingMethod: subscriptiondomain.BillingMethodStripe, MonthlyAmount: "30",
	})
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID.String(), ExternalSubscriptionID: "sub_123",
	})
	require.NoError(t, err)
	require.NotNil(t, activated.ExternalSubscriptionID)
	assert.Equal(t, "sub_123", *activated.ExternalSubscriptionID)

	_, err = svc.Activate(ctx, subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID.String(), ExternalSubscriptionID: "sub_123",
	})
	require.NoError(t, err)

	_, err = svc.Activate(ctx, subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID.String(), ExternalSubscriptionID: "sub_other",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionAlreadyBound)

	found, err := svc.FindByExternalID(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)

	_, err = svc.FindByExternalID(ctx, "sub_missing")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestDeactivateIsSoftAndIdempotent(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "9", BillingMethod: subscriptiondomain.BillingMethodBankTransfer, MonthlyAmount: "80",
	})
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	deactivated, err := svc.Deactivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)
	require.NotNil(t, deactivated.EndDate)

	again, err := svc.Deactivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, again.Active)

	_, err = svc.Activate(ctx, subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID.String(), ExternalSubscriptionID: "sub_late",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionInactive)
}

func TestListDueBankTransferExcludesInvoicedAndStripe(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	due, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "1", BillingMethod: subscriptiondomain.BillingMethodBankTransfer, MonthlyAmount: "10",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "2", BillingMethod: subscriptiondomain.BillingMethodStripe, MonthlyAmount: "10",
	})
	require.NoError(t, err)
	future := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		ContactID: "3", BillingMethod: subscriptiondomain.BillingMethodBankTransfer, MonthlyAmount: "10", StartDate: &future,
	})
	require.NoError(t, err)

	items, err := svc.ListDueBankTransfer(ctx, "2026-02", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, due.ID, items[0].ID)
}
