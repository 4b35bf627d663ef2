// Package domain holds billing accounts and their invoice numbering sequence.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingAccount is a legal entity issuing invoices under its own numbering sequence.
type BillingAccount struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"type:text;not null;uniqueIndex:ux_billing_accounts_code" json:"code"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Prefix    string       `gorm:"type:text;not null" json:"prefix"`
	Counter   int64        `gorm:"not null;default:0" json:"counter"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (BillingAccount) TableName() string { return "billing_accounts" }

// Allocation is one issued invoice number.
type Allocation struct {
	AccountID snowflake.ID
	Code      string
	Sequence  int64
	Number    string
}
