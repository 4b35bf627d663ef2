package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type CreateRequest struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	StartingCount int64  `json:"starting_counter"`
}

type UpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type ListResponse struct {
	Accounts []BillingAccount `json:"billing_accounts"`
}

// Service administers billing accounts. Accounts are never deleted, only deactivated.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (BillingAccount, error)
	List(ctx context.Context) (ListResponse, error)
	Get(ctx context.Context, code string) (BillingAccount, error)
	Update(ctx context.Context, code string, req UpdateRequest) (BillingAccount, error)
}

// Allocator issues sequential invoice numbers per billing account.
type Allocator interface {
	// NextNumber allocates in its own transaction.
	NextNumber(ctx context.Context, code string) (Allocation, error)
	// NextNumberTx allocates inside the caller's transaction, so a rollback returns the number.
	NextNumberTx(ctx context.Context, tx *gorm.DB, code string) (Allocation, error)
	// Lock serializes in-process writers of one account until the returned func is called.
	Lock(code string) (unlock func())
}

var (
	ErrAccountNotFound = errors.New("billing_account_not_found")
	ErrAccountInactive = errors.New("billing_account_inactive")
	ErrInvalidCode     = errors.New("invalid_billing_account_code")
	ErrInvalidName     = errors.New("invalid_billing_account_name")
	ErrInvalidCounter  = errors.New("invalid_billing_account_counter")
	ErrDuplicateCode   = errors.New("billing_account_code_exists")
)
