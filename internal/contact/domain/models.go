package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Contact is the tenant being billed. Most of its profile lives outside billing.
type Contact struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `gorm:"not null" json:"email"`
	TaxID     string       `gorm:"column:tax_id;not null" json:"tax_id,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }
