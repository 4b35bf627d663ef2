package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
}

type Service interface {
	Create(ctx context.Context, req CreateContactRequest) (Contact, error)
	Get(ctx context.Context, id snowflake.ID) (Contact, error)
	// GetMany returns the contacts found, keyed by id. Missing ids are absent from the map.
	GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Contact, error)
}

var (
	ErrContactNotFound = errors.New("contact_not_found")
	ErrInvalidName     = errors.New("invalid_contact_name")
	ErrInvalidEmail    = errors.New("invalid_contact_email")
)
