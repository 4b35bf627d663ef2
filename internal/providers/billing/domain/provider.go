// Package domain defines the remote invoicing provider contract.
package domain

import (
	"context"
	"errors"
)

// RemoteInvoiceRequest mirrors one local invoice on the provider.
type RemoteInvoiceRequest struct {
	InvoiceID     string
	Number        string
	CustomerEmail string
	CustomerName  string
	AmountMinor   int64
	Currency      string
	Description   string
	DueInDays     int
	Metadata      map[string]string
}

// IdempotencyKey keeps provider retries from creating a second remote invoice.
func (r RemoteInvoiceRequest) IdempotencyKey() string {
	return "worksuite-invoice-" + r.InvoiceID
}

type RemoteInvoice struct {
	ID          string
	DocumentURL string
}

type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, req RemoteInvoiceRequest) (RemoteInvoice, error)
	// ResolveDocumentURL returns the PDF link of a remote invoice, or "" when none exists yet.
	ResolveDocumentURL(ctx context.Context, externalInvoiceID string) (string, error)
}

var (
	ErrNotConfigured = errors.New("billing_provider_not_configured")
	// ErrRejected is a permanent provider refusal; retrying the same request will not help.
	ErrRejected      = errors.New("billing_provider_rejected")
	ErrUnavailable   = errors.New("billing_provider_unavailable")
	ErrInvalidData   = errors.New("billing_provider_invalid_request")
)

// Noop is used when no provider is configured. Every call reports ErrNotConfigured.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) CreateInvoice(context.Context, RemoteInvoiceRequest) (RemoteInvoice, error) {
	return RemoteInvoice{}, ErrNotConfigured
}

func (Noop) ResolveDocumentURL(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Validate checks the fields every provider needs.
func (r RemoteInvoiceRequest) Validate() error {
	switch {
	case r.InvoiceID == "":
		return errors.Join(ErrInvalidData, errors.New("invoice id is required"))
	case r.CustomerEmail == "":
		return errors.Join(ErrInvalidData, errors.New("customer email is required"))
	case r.AmountMinor <= 0:
		return errors.Join(ErrInvalidData, errors.New("amount must be positive"))
	case r.Currency == "":
		return errors.Join(ErrInvalidData, errors.New("currency is required"))
	}
	return nil
}
