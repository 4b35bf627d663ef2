// Package storetest opens throwaway SQLite databases carrying the billing schema.
package storetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations with SQLite column types.
var Schema = []string{
	`CREATE TABLE billing_accounts (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		prefix TEXT NOT NULL DEFAULT '',
		counter INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_billing_accounts_code ON billing_accounts (code)`,
	`CREATE TABLE contacts (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		tax_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER NOT NULL,
		external_subscription_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		monthly_amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'EUR',
		billing_account_code TEXT NOT NULL,
		vat_percent TEXT,
		billing_method TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		start_date DATETIME NOT NULL,
		end_date DATETIME,
		last_invoiced_period TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_external_id ON subscriptions (external_subscription_id)`,
	`CREATE TABLE invoices (
		id INTEGER PRIMARY KEY,
		billing_account_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		number TEXT NOT NULL,
		contact_id INTEGER NOT NULL,
		subscription_id INTEGER,
		description TEXT NOT NULL DEFAULT '',
		subtotal TEXT NOT NULL,
		vat_percent TEXT NOT NULL,
		vat_amount TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'EUR',
		status TEXT NOT NULL,
		issued_at DATETIME NOT NULL,
		due_at DATETIME,
		paid_at DATETIME,
		reference TEXT,
		external_invoice_id TEXT,
		external_payment_id TEXT,
		document_url TEXT,
		remote_sync_status TEXT NOT NULL DEFAULT 'skipped',
		remote_sync_error TEXT,
		remote_sync_attempts INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_invoices_account_sequence ON invoices (billing_account_id, sequence)`,
	`CREATE UNIQUE INDEX ux_invoices_number ON invoices (number)`,
	`CREATE UNIQUE INDEX ux_invoices_external_invoice_id ON invoices (external_invoice_id)`,
	`CREATE TABLE invoice_lines (
		id INTEGER PRIMARY KEY,
		invoice_id INTEGER NOT NULL,
		concept TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		line_total TEXT NOT NULL,
		booking_id INTEGER,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE bookings (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER NOT NULL,
		resource TEXT NOT NULL DEFAULT '',
		concept TEXT NOT NULL DEFAULT '',
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		unit_price TEXT NOT NULL,
		quantity TEXT NOT NULL DEFAULT '1',
		invoice_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// Open returns an isolated in-memory database with the schema applied.
// The pool is pinned to one connection so every statement sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return conn
}
