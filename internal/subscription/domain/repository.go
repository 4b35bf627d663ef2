package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	// LockByID reads the row under SELECT ... FOR UPDATE where the dialect supports it.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	BindExternalID(ctx context.Context, db *gorm.DB, id snowflake.ID, externalID string, now time.Time) (int64, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)
	ListDueBankTransfer(ctx context.Context, db *gorm.DB, period string, periodEnd time.Time) ([]Subscription, error)
	MarkInvoiced(ctx context.Context, db *gorm.DB, id snowflake.ID, period string, now time.Time) (int64, error)
}
