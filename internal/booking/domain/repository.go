package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	ListUninvoiced(ctx context.Context, db *gorm.DB, start, end time.Time) ([]Booking, error)
	Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error)
}
