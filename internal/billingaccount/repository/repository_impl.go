package repository

import (
	"context"
	"errors"
	"time"

	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingaccountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, account *billingaccountdomain.BillingAccount) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO billing_accounts (id, code, name, prefix, counter, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Code,
		account.Name,
		account.Prefix,
		account.Counter,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, code string) (*billingaccountdomain.BillingAccount, error) {
	var account billingaccountdomain.BillingAccount
	err := conn.WithContext(ctx).Raw(
		`SELECT id, code, name, prefix, counter, active, created_at, updated_at
		FROM billing_accounts WHERE code = ?`,
		code,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]billingaccountdomain.BillingAccount, error) {
	var accounts []billingaccountdomain.BillingAccount
	err := conn.WithContext(ctx).Raw(
		`SELECT id, code, name, prefix, counter, active, created_at, updated_at
		FROM billing_accounts ORDER BY code ASC`,
	).Scan(&accounts).Error
	return accounts, err
}

func (r *repo) UpdateAttributes(ctx context.Context, conn *gorm.DB, code string, attrs billingaccountdomain.UpdateAttributes) (int64, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if attrs.Name != nil {
		updates["name"] = *attrs.Name
	}
	if attrs.Active != nil {
		updates["active"] = *attrs.Active
	}
	res := conn.WithContext(ctx).
		Table("billing_accounts").
		Where("code = ?", code).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repo) IncrementActive(ctx context.Context, conn *gorm.DB, code string) (*billingaccountdomain.Increment, error) {
	now := time.Now().UTC()
	if conn.Dialector.Name() == db.DialectMySQL {
		return r.incrementMySQL(ctx, conn, code, now)
	}

	var rows []billingaccountdomain.Increment
	err := conn.WithContext(ctx).Raw(
		`UPDATE billing_accounts
		SET counter = counter + 1, updated_at = ?
		WHERE code = ? AND active = ?
		RETURNING id, counter, prefix`,
		now,
		code,
		true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// MySQL has no RETURNING; LAST_INSERT_ID(expr) pins the new value to the session.
func (r *repo) incrementMySQL(ctx context.Context, conn *gorm.DB, code string, now time.Time) (*billingaccountdomain.Increment, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE billing_accounts
		SET counter = LAST_INSERT_ID(counter + 1), updated_at = ?
		WHERE code = ? AND active = ?`,
		now,
		code,
		true,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var row billingaccountdomain.Increment
	err := conn.WithContext(ctx).Raw(
		`SELECT id, LAST_INSERT_ID() AS counter, prefix FROM billing_accounts WHERE code = ?`,
		code,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.AccountID == 0 {
		return nil, errors.New("billing account vanished after increment")
	}
	return &row, nil
}
