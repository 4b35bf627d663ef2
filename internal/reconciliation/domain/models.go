package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
)

type EventStatus string

const (
	EventStatusPaid   EventStatus = "paid"
	EventStatusFailed EventStatus = "failed"
)

func (s EventStatus) Valid() bool {
	return s == EventStatusPaid || s == EventStatusFailed
}

// BillingEvent is one provider callback about a subscription invoice.
// ExternalInvoiceID is the idempotency key.
type BillingEvent struct {
	ExternalSubscriptionID string      `json:"stripeSubscriptionId"`
	ExternalInvoiceID      string      `json:"stripeInvoiceId"`
	ExternalPaymentID      string      `json:"stripePaymentIntentId"`
	CustomerEmail          string      `json:"customerEmail"`
	AmountPaidCents        *int64      `json:"amountPaidCents"`
	Currency               string      `json:"currency"`
	PeriodStart            *time.Time  `json:"periodStart"`
	PeriodEnd              *time.Time  `json:"periodEnd"`
	Status                 EventStatus `json:"status"`
	DocumentURL            string      `json:"invoicePdf,omitempty"`
}

func (e *BillingEvent) Normalize() {
	e.ExternalSubscriptionID = strings.TrimSpace(e.ExternalSubscriptionID)
	e.ExternalInvoiceID = strings.TrimSpace(e.ExternalInvoiceID)
	e.ExternalPaymentID = strings.TrimSpace(e.ExternalPaymentID)
	e.CustomerEmail = strings.TrimSpace(e.CustomerEmail)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	e.DocumentURL = strings.TrimSpace(e.DocumentURL)
	e.Status = EventStatus(strings.ToLower(strings.TrimSpace(string(e.Status))))
}

func (e BillingEvent) Validate() error {
	if !e.Status.Valid() {
		return ErrInvalidEventStatus
	}
	if e.AmountPaidCents != nil && *e.AmountPaidCents < 0 {
		return ErrInvalidEventAmount
	}
	if e.PeriodStart != nil && e.PeriodEnd != nil && e.PeriodEnd.Before(*e.PeriodStart) {
		return ErrInvalidEventPeriod
	}
	return nil
}

type ResultStatus string

const (
	ResultCreated ResultStatus = "created"
	// ResultSkipped answers a replayed delivery; no invoice row was added.
	ResultSkipped ResultStatus = "skipped"
)

type Result struct {
	Status  ResultStatus           `json:"status"`
	Updated bool                   `json:"updated,omitempty"`
	Message string                 `json:"message,omitempty"`
	Invoice *invoicedomain.Summary `json:"invoice,omitempty"`
}

type Engine interface {
	Apply(ctx context.Context, sub subscriptiondomain.Subscription, event BillingEvent) (Result, error)
}

var (
	ErrInvalidEventStatus = errors.New("invalid_billing_event_status")
	ErrInvalidEventAmount = errors.New("invalid_billing_event_amount")
	ErrInvalidEventPeriod = errors.New("invalid_billing_event_period")
)
