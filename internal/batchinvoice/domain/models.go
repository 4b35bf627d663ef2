// Package domain holds the result values of a billing period run.
package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/worksuite/internal/billingcycle"
)

type ItemStatus string

const (
	ItemCreated ItemStatus = "created"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

const (
	SweepUsage     = "usage"
	SweepRecurring = "recurring"
)

// TenantResult is the outcome of invoicing one contact's bookings.
type TenantResult struct {
	ContactID    string     `json:"contact_id"`
	Status       ItemStatus `json:"status"`
	InvoiceID    string     `json:"invoice_id,omitempty"`
	Number       string     `json:"number,omitempty"`
	Bookings     int        `json:"bookings"`
	Total        string     `json:"total,omitempty"`
	RemoteStatus string     `json:"remote_status,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SubscriptionResult is the outcome of invoicing one bank-transfer subscription.
type SubscriptionResult struct {
	SubscriptionID string     `json:"subscription_id"`
	ContactID      string     `json:"contact_id"`
	Status         ItemStatus `json:"status"`
	InvoiceID      string     `json:"invoice_id,omitempty"`
	Number         string     `json:"number,omitempty"`
	Total          string     `json:"total,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (c *Counts) add(status ItemStatus) {
	switch status {
	case ItemCreated:
		c.Created++
	case ItemSkipped:
		c.Skipped++
	case ItemFailed:
		c.Failed++
	}
}

type Report struct {
	Period     string               `json:"period"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Usage      []TenantResult       `json:"usage"`
	Recurring  []SubscriptionResult `json:"recurring"`
	Errors     []string             `json:"errors,omitempty"`
}

func (r Report) UsageCounts() Counts {
	var c Counts
	for _, item := range r.Usage {
		c.add(item.Status)
	}
	return c
}

func (r Report) RecurringCounts() Counts {
	var c Counts
	for _, item := range r.Recurring {
		c.add(item.Status)
	}
	return c
}

// MirrorReport summarizes one pass over invoices still waiting for the remote provider.
type MirrorReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

type RunRequest struct {
	Period string `json:"period"`
}

type Invoicer interface {
	// RunPeriod runs both sweeps for one period. Per-item failures are reported
	// in the Report; the error is set only when a sweep could not list its work.
	RunPeriod(ctx context.Context, period billingcycle.Period) (Report, error)
	RetryMirrors(ctx context.Context, limit int) (MirrorReport, error)
}
