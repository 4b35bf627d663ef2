// Package domain contains the invoice ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus is the legal payment state printed on the document.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "Pendiente"
	InvoiceStatusPaid    InvoiceStatus = "Pagado"
)

func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPaid
}

// RemoteSyncStatus tracks mirroring of a local invoice to the remote provider.
type RemoteSyncStatus string

const (
	RemoteSyncSkipped RemoteSyncStatus = "skipped"
	RemoteSyncPending RemoteSyncStatus = "pending"
	RemoteSyncSynced  RemoteSyncStatus = "synced"
	RemoteSyncFailed  RemoteSyncStatus = "failed"
)

// Invoice is one billed document. Only status, payment and remote fields change after insert.
type Invoice struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	BillingAccountID   snowflake.ID      `gorm:"not null;uniqueIndex:ux_invoices_account_sequence" json:"billing_account_id"`
	Sequence           int64             `gorm:"not null;uniqueIndex:ux_invoices_account_sequence" json:"sequence"`
	Number             string            `gorm:"not null;uniqueIndex:ux_invoices_number" json:"number"`
	ContactID          snowflake.ID      `gorm:"not null;index" json:"contact_id"`
	SubscriptionID     *snowflake.ID     `json:"subscription_id,omitempty"`
	Description        string            `gorm:"not null" json:"description"`
	Subtotal           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	VATPercent         decimal.Decimal   `gorm:"column:vat_percent;type:numeric(5,2);not null" json:"vat_percent"`
	VATAmount          decimal.Decimal   `gorm:"column:vat_amount;type:numeric(14,2);not null" json:"vat_amount"`
	Total              decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"total"`
	Currency           string            `gorm:"not null" json:"currency"`
	Status             InvoiceStatus     `gorm:"type:text;not null" json:"status"`
	IssuedAt           time.Time         `gorm:"not null" json:"issued_at"`
	DueAt              *time.Time        `json:"due_at,omitempty"`
	PaidAt             *time.Time        `json:"paid_at,omitempty"`
	Reference          *string           `json:"reference,omitempty"`
	ExternalInvoiceID  *string           `gorm:"uniqueIndex:ux_invoices_external_invoice_id" json:"external_invoice_id,omitempty"`
	ExternalPaymentID  *string           `json:"external_payment_id,omitempty"`
	DocumentURL        *string           `json:"document_url,omitempty"`
	RemoteSyncStatus   RemoteSyncStatus  `gorm:"type:text;not null" json:"remote_sync_status"`
	RemoteSyncError    *string           `json:"remote_sync_error,omitempty"`
	RemoteSyncAttempts int               `gorm:"not null" json:"remote_sync_attempts"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`

	Lines []InvoiceLine `gorm:"-" json:"lines,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one charge, created with its invoice and never updated.
type InvoiceLine struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Concept   string          `gorm:"not null" json:"concept"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Quantity  decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	LineTotal decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"line_total"`
	BookingID *snowflake.ID   `json:"booking_id,omitempty"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// Summary is the compact view returned to webhook callers and batch reports.
type Summary struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Status    InvoiceStatus `json:"status"`
	Subtotal  string        `json:"subtotal"`
	VATAmount string        `json:"vatAmount"`
	Total     string        `json:"total"`
	Currency  string        `json:"currency"`
}

func (i Invoice) Summary() Summary {
	return Summary{
		ID:        i.ID.String(),
		Number:    i.Number,
		Status:    i.Status,
		Subtotal:  i.Subtotal.StringFixed(2),
		VATAmount: i.VATAmount.StringFixed(2),
		Total:     i.Total.StringFixed(2),
		Currency:  i.Currency,
	}
}
