package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `SELECT id, billing_account_id, sequence, number, contact_id, subscription_id, description,
	subtotal, vat_percent, vat_amount, total, currency, status, issued_at, due_at, paid_at, reference,
	external_invoice_id, external_payment_id, document_url, remote_sync_status, remote_sync_error,
	remote_sync_attempts, metadata, created_at, updated_at
	FROM invoices`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, billing_account_id, sequence, number, contact_id, subscription_id, description,
			subtotal, vat_percent, vat_amount, total, currency, status, issued_at, due_at, paid_at,
			reference, external_invoice_id, external_payment_id, document_url, remote_sync_status,
			remote_sync_error, remote_sync_attempts, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.BillingAccountID,
		inv.Sequence,
		inv.Number,
		inv.ContactID,
		inv.SubscriptionID,
		inv.Description,
		inv.Subtotal,
		inv.VATPercent,
		inv.VATAmount,
		inv.Total,
		inv.Currency,
		inv.Status,
		inv.IssuedAt,
		inv.DueAt,
		inv.PaidAt,
		inv.Reference,
		inv.ExternalInvoiceID,
		inv.ExternalPaymentID,
		inv.DocumentURL,
		inv.RemoteSyncStatus,
		inv.RemoteSyncError,
		inv.RemoteSyncAttempts,
		inv.Metadata,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []invoicedomain.InvoiceLine) error {
	for _, line := range lines {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_lines (id, invoice_id, concept, unit_price, quantity, line_total, booking_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.InvoiceID,
			line.Concept,
			line.UnitPrice,
			line.Quantity,
			line.LineTotal,
			line.BookingID,
			line.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, invoiceColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByExternalInvoiceID(ctx context.Context, db *gorm.DB, externalID string) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, invoiceColumns+` WHERE external_invoice_id = ?`, externalID)
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLine, error) {
	var lines []invoicedomain.InvoiceLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, concept, unit_price, quantity, line_total, booking_id, created_at
		FROM invoice_lines WHERE invoice_id = ? ORDER BY id ASC`,
		invoiceID,
	).Scan(&lines).Error
	return lines, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter) ([]invoicedomain.Invoice, error) {
	query := invoiceColumns + ` WHERE 1 = 1`
	args := []any{}
	if filter.ContactID != nil {
		query += ` AND contact_id = ?`
		args = append(args, *filter.ContactID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.BeforeID != nil {
		query += ` AND id < ?`
		args = append(args, *filter.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var items []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, update invoicedomain.PaidUpdate) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		SET status = ?,
			external_payment_id = COALESCE(?, external_payment_id),
			document_url = COALESCE(?, document_url),
			paid_at = COALESCE(paid_at, ?),
			updated_at = ?
		WHERE id = ? AND status <> ?`,
		invoicedomain.InvoiceStatusPaid,
		update.PaymentID,
		update.DocumentURL,
		update.PaidAt,
		update.PaidAt,
		id,
		invoicedomain.InvoiceStatusPaid,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkPaidByReference(ctx context.Context, db *gorm.DB, reference, externalInvoiceID string, update invoicedomain.PaidUpdate) (int64, error) {
	where := `status <> ? AND (`
	args := []any{invoicedomain.InvoiceStatusPaid}
	switch {
	case reference != "" && externalInvoiceID != "":
		where += `reference = ? OR number = ? OR external_invoice_id = ?)`
		args = append(args, reference, reference, externalInvoiceID)
	case reference != "":
		where += `reference = ? OR number = ?)`
		args = append(args, reference, reference)
	default:
		where += `external_invoice_id = ?)`
		args = append(args, externalInvoiceID)
	}

	params := append([]any{
		invoicedomain.InvoiceStatusPaid,
		update.PaymentID,
		update.PaidAt,
		update.PaidAt,
	}, args...)
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		SET status = ?,
			external_payment_id = COALESCE(?, external_payment_id),
			paid_at = COALESCE(paid_at, ?),
			updated_at = ?
		WHERE `+where,
		params...,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) AttachRemote(ctx context.Context, db *gorm.DB, id snowflake.ID, remoteID, documentURL *string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		SET external_invoice_id = COALESCE(external_invoice_id, ?),
			document_url = COALESCE(?, document_url),
			remote_sync_status = ?,
			remote_sync_error = NULL,
			remote_sync_attempts = remote_sync_attempts + 1,
			updated_at = ?
		WHERE id = ?`,
		remoteID,
		documentURL,
		invoicedomain.RemoteSyncSynced,
		now,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) AttachDocument(ctx context.Context, db *gorm.DB, id snowflake.ID, documentURL string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET document_url = ?, updated_at = ? WHERE id = ? AND document_url IS NULL`,
		documentURL,
		now,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListPendingMirror(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]invoicedomain.Invoice, error) {
	var items []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		invoiceColumns+`
		WHERE remote_sync_status IN (?, ?) AND remote_sync_attempts < ?
		ORDER BY id ASC LIMIT ?`,
		invoicedomain.RemoteSyncPending,
		invoicedomain.RemoteSyncFailed,
		maxAttempts,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) RecordMirrorFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		SET remote_sync_status = ?,
			remote_sync_error = ?,
			remote_sync_attempts = remote_sync_attempts + 1,
			updated_at = ?
		WHERE id = ? AND remote_sync_status <> ?`,
		invoicedomain.RemoteSyncFailed,
		message,
		now,
		id,
		invoicedomain.RemoteSyncSynced,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*invoicedomain.Invoice, error) {
	var items []invoicedomain.Invoice
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
