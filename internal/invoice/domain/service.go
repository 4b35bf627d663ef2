package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/worksuite/pkg/db/pagination"
	"gorm.io/gorm"
)

// Draft is everything needed to issue an invoice except its number.
type Draft struct {
	AccountCode       string
	ContactID         snowflake.ID
	SubscriptionID    *snowflake.ID
	Description       string
	VATPercent        decimal.Decimal
	Currency          string
	Status            InvoiceStatus
	IssuedAt          time.Time
	DueAt             *time.Time
	Reference         string
	ExternalInvoiceID string
	ExternalPaymentID string
	DocumentURL       string
	RemoteSync        RemoteSyncStatus
	Source            string
	Metadata          map[string]any
	Lines             []DraftLine

	// Guard runs first inside the invoice transaction. An error aborts before a number is taken.
	Guard func(ctx context.Context, tx *gorm.DB) error
}

type DraftLine struct {
	Concept   string
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
	BookingID *snowflake.ID
}

// TxHook runs inside the invoice transaction after the invoice and lines are written.
type TxHook func(ctx context.Context, tx *gorm.DB, invoice Invoice) error

type ListInvoiceRequest struct {
	ContactID string `form:"contact_id"`
	Status    string `form:"status"`
	pagination.Pagination
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type MarkPaidRequest struct {
	PaymentID   string
	DocumentURL string
}

type MarkPaidByReferenceRequest struct {
	Reference         string `json:"reference"`
	ExternalInvoiceID string `json:"stripeInvoiceId"`
	PaymentID         string `json:"stripePaymentIntentId"`
}

// Ledger is the single writer of invoices and invoice lines.
type Ledger interface {
	Create(ctx context.Context, draft Draft, hooks ...TxHook) (Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	FindByExternalInvoiceID(ctx context.Context, externalID string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	// MarkPaid reports whether the status changed. Paid invoices are never downgraded.
	MarkPaid(ctx context.Context, id snowflake.ID, req MarkPaidRequest) (Invoice, bool, error)
	MarkPaidByReference(ctx context.Context, req MarkPaidByReferenceRequest) (int64, error)
	AttachRemote(ctx context.Context, id snowflake.ID, remoteID, documentURL string) error
	AttachDocument(ctx context.Context, id snowflake.ID, documentURL string) error
	ListPendingMirror(ctx context.Context, limit int) ([]Invoice, error)
	RecordMirrorFailure(ctx context.Context, id snowflake.ID, cause error) error
}

var (
	ErrInvoiceNotFound          = errors.New("invoice_not_found")
	ErrInvalidInvoice           = errors.New("invalid_invoice")
	ErrInvalidInvoiceID         = errors.New("invalid_invoice_id")
	ErrEmptyInvoice             = errors.New("invoice_has_no_lines")
	ErrInvalidLine              = errors.New("invalid_invoice_line")
	ErrInvalidStatus            = errors.New("invalid_invoice_status")
	ErrInvalidVATPercent        = errors.New("invalid_vat_percent")
	ErrMissingReference         = errors.New("missing_payment_reference")
	ErrDuplicateExternalInvoice = errors.New("duplicate_external_invoice")
	ErrDuplicateInvoiceNumber   = errors.New("duplicate_invoice_number")
	ErrInvalidPageToken         = errors.New("invalid_page_token")
)
