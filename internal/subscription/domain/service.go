package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSubscriptionRequest struct {
	ContactID              string        `json:"contact_id"`
	ExternalSubscriptionID string        `json:"external_subscription_id,omitempty"`
	Description            string        `json:"description"`
	MonthlyAmount          string        `json:"monthly_amount"`
	Currency               string        `json:"currency,omitempty"`
	BillingAccountCode     string        `json:"billing_account_code,omitempty"`
	VATPercent             *string       `json:"vat_percent,omitempty"`
	BillingMethod          BillingMethod `json:"billing_method"`
	StartDate              *time.Time    `json:"start_date,omitempty"`
}

type ActivateRequest struct {
	SubscriptionID         string `json:"subscriptionId"`
	ExternalSubscriptionID string `json:"stripeSubscriptionId"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	Get(ctx context.Context, id snowflake.ID) (Subscription, error)
	// FindByExternalID resolves a provider subscription id, active or not.
	FindByExternalID(ctx context.Context, externalID string) (Subscription, error)
	Activate(ctx context.Context, req ActivateRequest) (Subscription, error)
	Deactivate(ctx context.Context, id snowflake.ID) (Subscription, error)
	ListDueBankTransfer(ctx context.Context, period string, periodEnd time.Time) ([]Subscription, error)
}

var (
	ErrSubscriptionNotFound     = errors.New("subscription_not_found")
	ErrSubscriptionInactive     = errors.New("subscription_inactive")
	ErrSubscriptionAlreadyBound = errors.New("subscription_already_bound")
	ErrInvalidSubscription      = errors.New("invalid_subscription")
	ErrInvalidContact           = errors.New("invalid_contact")
	ErrInvalidAmount            = errors.New("invalid_monthly_amount")
	ErrInvalidVATPercent        = errors.New("invalid_vat_percent")
	ErrInvalidBillingMethod     = errors.New("invalid_billing_method")
	ErrInvalidExternalID        = errors.New("invalid_external_subscription_id")
	ErrDuplicateExternalID      = errors.New("external_subscription_id_exists")
	// ErrAlreadyInvoiced means the period marker is already at or past the period.
	ErrAlreadyInvoiced          = errors.New("subscription_period_already_invoiced")
)
