package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BillingMethod selects how a subscription is collected.
type BillingMethod string

const (
	BillingMethodStripe       BillingMethod = "stripe"
	BillingMethodBankTransfer BillingMethod = "bank_transfer"
)

func (m BillingMethod) Valid() bool {
	return m == BillingMethodStripe || m == BillingMethodBankTransfer
}

// Subscription ties a contact to a monthly amount billed under one billing account.
type Subscription struct {
	ID                     snowflake.ID        `gorm:"primaryKey" json:"id"`
	ContactID              snowflake.ID        `gorm:"not null;index" json:"contact_id"`
	ExternalSubscriptionID *string             `gorm:"uniqueIndex:ux_subscriptions_external_id" json:"external_subscription_id,omitempty"`
	Description            string              `gorm:"not null" json:"description"`
	MonthlyAmount          decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"monthly_amount"`
	Currency               string              `gorm:"not null" json:"currency"`
	BillingAccountCode     string              `gorm:"not null" json:"billing_account_code"`
	VATPercent             decimal.NullDecimal `gorm:"column:vat_percent;type:numeric(5,2)" json:"vat_percent"`
	BillingMethod          BillingMethod       `gorm:"type:text;not null" json:"billing_method"`
	Active                 bool                `gorm:"not null" json:"active"`
	StartDate              time.Time           `gorm:"not null" json:"start_date"`
	EndDate                *time.Time          `json:"end_date,omitempty"`
	LastInvoicedPeriod     *string             `json:"last_invoiced_period,omitempty"`
	CreatedAt              time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time           `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// EffectiveVAT returns the subscription VAT percent, or def when unset.
func (s Subscription) EffectiveVAT(def decimal.Decimal) decimal.Decimal {
	if s.VATPercent.Valid {
		return s.VATPercent.Decimal
	}
	return def
}
