package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Booking is a billable use of a workspace resource. InvoiceID is set once it is billed.
type Booking struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	ContactID snowflake.ID    `gorm:"not null;index" json:"contact_id"`
	Resource  string          `gorm:"not null" json:"resource"`
	Concept   string          `gorm:"not null" json:"concept"`
	StartsAt  time.Time       `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time       `gorm:"not null" json:"ends_at"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Quantity  decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	InvoiceID *snowflake.ID   `json:"invoice_id,omitempty"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// LineConcept is the text printed on the invoice line for this booking.
func (b Booking) LineConcept() string {
	concept := b.Concept
	if concept == "" {
		concept = b.Resource
	}
	return concept + " " + b.StartsAt.Format("2006-01-02")
}
