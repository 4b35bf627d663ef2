package domain

import (
	"context"

	"gorm.io/gorm"
)

// Increment is the counter state returned by a single increment round trip.
type Increment struct {
	AccountID int64  `gorm:"column:id"`
	Counter   int64  `gorm:"column:counter"`
	Prefix    string `gorm:"column:prefix"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *BillingAccount) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*BillingAccount, error)
	List(ctx context.Context, db *gorm.DB) ([]BillingAccount, error)
	UpdateAttributes(ctx context.Context, db *gorm.DB, code string, attrs UpdateAttributes) (int64, error)
	// IncrementActive bumps the counter of an active account and returns the new value.
	// A nil result means no active account carries the code.
	IncrementActive(ctx context.Context, db *gorm.DB, code string) (*Increment, error)
}

type UpdateAttributes struct {
	Name   *string
	Active *bool
}
