package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactBillingVAT(t *testing.T) {
	holder := NewStaticBillingConfigHolder(BillingConfig{
		Contacts: map[string]ContactBilling{
			"42": {VATPercent: "10", AccountCode: "R"},
		},
	})

	override := holder.Get().ForContact("42")
	vat, ok := override.VAT()
	require.True(t, ok)
	assert.True(t, vat.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "R", override.AccountCode)

	_, ok = holder.Get().ForContact("7").VAT()
	assert.False(t, ok)
}

func TestValidateBillingConfigRejectsOutOfRangeVAT(t *testing.T) {
	err := validateBillingConfig(BillingConfig{
		Contacts: map[string]ContactBilling{"1": {VATPercent: "120"}},
	})
	require.Error(t, err)

	err = validateBillingConfig(BillingConfig{
		Contacts: map[string]ContactBilling{"1": {VATPercent: "abc"}},
	})
	require.Error(t, err)

	require.NoError(t, validateBillingConfig(DefaultBillingConfig()))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BILLING_PROVIDER", "Stripe")
	t.Setenv("BILLING_NUMBER_PADDING", "")
	t.Setenv("BILLING_DEFAULT_VAT_PERCENT", "-3")

	cfg := Load()
	assert.Equal(t, ProviderKindStripe, cfg.Provider.Kind)
	assert.Equal(t, 3, cfg.Billing.NumberPadding)
	assert.True(t, cfg.Billing.DefaultVATPercent.Equal(decimal.NewFromInt(21)))
	assert.Equal(t, "X-Webhook-Secret", cfg.Webhook.HeaderName)
}
