package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/smallbiznis/worksuite/pkg/db"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, contact_id, external_subscription_id, description, monthly_amount, currency,
	billing_account_code, vat_percent, billing_method, active, start_date, end_date,
	last_invoiced_period, created_at, updated_at
	FROM subscriptions`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, s *subscriptiondomain.Subscription) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, contact_id, external_subscription_id, description, monthly_amount, currency,
			billing_account_code, vat_percent, billing_method, active, start_date, end_date,
			last_invoiced_period, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ContactID,
		s.ExternalSubscriptionID,
		s.Description,
		s.MonthlyAmount,
		s.Currency,
		s.BillingAccountCode,
		s.VATPercent,
		s.BillingMethod,
		s.Active,
		s.StartDate,
		s.EndDate,
		s.LastInvoicedPeriod,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn, selectColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByExternalID(ctx context.Context, conn *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn, selectColumns+` WHERE external_subscription_id = ?`, externalID)
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, conn, selectColumns+` WHERE id = ?`+db.ForUpdate(conn), id)
}

func (r *repo) BindExternalID(ctx context.Context, conn *gorm.DB, id snowflake.ID, externalID string, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET external_subscription_id = ?, updated_at = ?
		WHERE id = ? AND active = ? AND (external_subscription_id IS NULL OR external_subscription_id = ?)`,
		externalID,
		now,
		id,
		true,
		externalID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Deactivate(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions SET active = ?, end_date = ?, updated_at = ? WHERE id = ? AND active = ?`,
		false,
		now,
		now,
		id,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListDueBankTransfer(ctx context.Context, conn *gorm.DB, period string, periodEnd time.Time) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := conn.WithContext(ctx).Raw(
		selectColumns+`
		WHERE billing_method = ? AND active = ? AND start_date < ?
		AND (last_invoiced_period IS NULL OR last_invoiced_period < ?)
		ORDER BY id ASC`,
		subscriptiondomain.BillingMethodBankTransfer,
		true,
		periodEnd,
		period,
	).Scan(&items).Error
	return items, err
}

// MarkInvoiced only moves the marker forward. Periods are YYYY-MM and sort lexically.
func (r *repo) MarkInvoiced(ctx context.Context, conn *gorm.DB, id snowflake.ID, period string, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions SET last_invoiced_period = ?, updated_at = ?
		WHERE id = ? AND (last_invoiced_period IS NULL OR last_invoiced_period < ?)`,
		period,
		now,
		id,
		period,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
