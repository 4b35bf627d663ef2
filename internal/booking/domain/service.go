package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateBookingRequest struct {
	ContactID string    `json:"contact_id"`
	Resource  string    `json:"resource"`
	Concept   string    `json:"concept"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	UnitPrice string    `json:"unit_price"`
	Quantity  string    `json:"quantity"`
}

type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (Booking, error)
	// ListUninvoiced returns unbilled bookings starting within [start, end).
	ListUninvoiced(ctx context.Context, start, end time.Time) ([]Booking, error)
	// ClaimTx links bookings to an invoice inside the caller's transaction.
	// It fails with ErrBookingsAlreadyClaimed unless every booking was still unbilled.
	ClaimTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error
}

var (
	ErrInvalidContact         = errors.New("invalid_contact")
	ErrInvalidWindow          = errors.New("invalid_booking_window")
	ErrInvalidPrice           = errors.New("invalid_booking_price")
	ErrBookingsAlreadyClaimed = errors.New("bookings_already_invoiced")
)
