package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() bookingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *bookingdomain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (id, contact_id, resource, concept, starts_at, ends_at, unit_price, quantity, invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.ContactID,
		b.Resource,
		b.Concept,
		b.StartsAt,
		b.EndsAt,
		b.UnitPrice,
		b.Quantity,
		b.InvoiceID,
		b.CreatedAt,
		b.UpdatedAt,
	).Error
}

func (r *repo) ListUninvoiced(ctx context.Context, db *gorm.DB, start, end time.Time) ([]bookingdomain.Booking, error) {
	var items []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, contact_id, resource, concept, starts_at, ends_at, unit_price, quantity, invoice_id, created_at, updated_at
		FROM bookings
		WHERE invoice_id IS NULL AND starts_at >= ? AND starts_at < ?
		ORDER BY contact_id ASC, starts_at ASC, id ASC`,
		start,
		end,
	).Scan(&items).Error
	return items, err
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings SET invoice_id = ?, updated_at = ? WHERE id IN ? AND invoice_id IS NULL`,
		invoiceID,
		now,
		ids,
	)
	return res.RowsAffected, res.Error
}
