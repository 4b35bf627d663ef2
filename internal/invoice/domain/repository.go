package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ContactID *snowflake.ID
	Status    InvoiceStatus
	BeforeID  *snowflake.ID
	Limit     int
}

type PaidUpdate struct {
	PaymentID   *string
	DocumentURL *string
	PaidAt      time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []InvoiceLine) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByExternalInvoiceID(ctx context.Context, db *gorm.DB, externalID string) (*Invoice, error)
	FindLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	// MarkPaid only touches rows not already paid and returns the affected count.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, update PaidUpdate) (int64, error)
	MarkPaidByReference(ctx context.Context, db *gorm.DB, reference, externalInvoiceID string, update PaidUpdate) (int64, error)
	AttachRemote(ctx context.Context, db *gorm.DB, id snowflake.ID, remoteID, documentURL *string, now time.Time) (int64, error)
	AttachDocument(ctx context.Context, db *gorm.DB, id snowflake.ID, documentURL string, now time.Time) (int64, error)
	ListPendingMirror(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]Invoice, error)
	RecordMirrorFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, now time.Time) (int64, error)
}
