package domain

import (
	"context"
	"errors"

	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
)

const (
	EndpointInvoice               = "invoice"
	EndpointPaymentCompleted      = "payment_completed"
	EndpointSubscriptionActivated = "subscription_activated"
)

// Delivery is one inbound callback as received on the wire.
type Delivery struct {
	ID      string
	Secret  string
	Payload []byte
}

type InvoiceStatus string

const (
	InvoiceStatusCreated   InvoiceStatus = "created"
	InvoiceStatusDuplicate InvoiceStatus = "duplicate"
)

type InvoiceResponse struct {
	Status     InvoiceStatus          `json:"status"`
	DeliveryID string                 `json:"deliveryId"`
	Updated    bool                   `json:"updated,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Invoice    *invoicedomain.Summary `json:"invoice,omitempty"`
}

type PaymentCompletedResponse struct {
	Status     string `json:"status"`
	DeliveryID string `json:"deliveryId"`
	Updated    int64  `json:"updated"`
}

type ActivationResponse struct {
	Status       string                          `json:"status"`
	DeliveryID   string                          `json:"deliveryId"`
	Subscription subscriptiondomain.Subscription `json:"subscription"`
}

// Gateway authenticates provider callbacks and routes them to the billing core.
// Authentication happens before the payload is read.
type Gateway interface {
	HandleInvoice(ctx context.Context, d Delivery) (InvoiceResponse, error)
	HandlePaymentCompleted(ctx context.Context, d Delivery) (PaymentCompletedResponse, error)
	HandleSubscriptionActivated(ctx context.Context, d Delivery) (ActivationResponse, error)
}

var (
	ErrUnauthorized   = errors.New("webhook_unauthorized")
	ErrInvalidPayload = errors.New("invalid_webhook_payload")
)
