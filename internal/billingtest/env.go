// Package billingtest assembles the billing services over an in-memory store for tests.
package billingtest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	billingaccountrepo "github.com/smallbiznis/worksuite/internal/billingaccount/repository"
	billingaccountsvc "github.com/smallbiznis/worksuite/internal/billingaccount/service"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/worksuite/internal/booking/repository"
	bookingsvc "github.com/smallbiznis/worksuite/internal/booking/service"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	contactsvc "github.com/smallbiznis/worksuite/internal/contact/service"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/worksuite/internal/invoice/repository"
	invoicesvc "github.com/smallbiznis/worksuite/internal/invoice/service"
	"github.com/smallbiznis/worksuite/internal/storetest"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/worksuite/internal/subscription/repository"
	subscriptionsvc "github.com/smallbiznis/worksuite/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Env struct {
	DB            *gorm.DB
	Node          *snowflake.Node
	Clock         *clock.FakeClock
	Cfg           config.Config
	BillingCfg    *config.BillingConfigHolder
	Accounts      billingaccountdomain.Service
	Allocator     billingaccountdomain.Allocator
	Ledger        invoicedomain.Ledger
	Subscriptions subscriptiondomain.Service
	Contacts      contactdomain.Service
	Bookings      bookingdomain.Service
}

func DefaultConfig() config.Config {
	return config.Config{
		AppName: "worksuite-test",
		Webhook: config.WebhookConfig{HeaderName: "X-Webhook-Secret"},
		Billing: config.BillingDefaults{
			DefaultVATPercent:      decimal.NewFromInt(21),
			NumberPadding:          3,
			DefaultAccountCode:     "PT",
			DefaultCurrency:        "EUR",
			DueInDays:              15,
			Concurrency:            4,
			Timezone:               "UTC",
			RunTimeout:             time.Minute,
			RecurringDescription:   "Monthly subscription",
			SchedulerLockTTL:       time.Minute,
			DocumentResolveTimeout: time.Second,
		},
		Provider: config.ProviderConfig{Kind: config.ProviderKindNone, Timeout: time.Second},
	}
}

// New opens a fresh store with billing account PT (prefix F, counter 41).
func New(t testing.TB) *Env {
	t.Helper()

	conn := storetest.Open(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	log := zap.NewNop()

	env := &Env{
		DB:         conn,
		Node:       node,
		Clock:      clk,
		Cfg:        cfg,
		BillingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}
	env.Accounts = billingaccountsvc.NewService(billingaccountsvc.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: billingaccountrepo.Provide(),
	})
	env.Allocator = billingaccountsvc.NewAllocator(billingaccountsvc.AllocatorParam{
		DB: conn, Log: log, Cfg: cfg, Repo: billingaccountrepo.Provide(),
	})
	env.Ledger = invoicesvc.NewLedger(invoicesvc.LedgerParam{
		DB: conn, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		Repo: invoicerepo.Provide(), Allocator: env.Allocator,
	})
	env.Subscriptions = subscriptionsvc.NewService(subscriptionsvc.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, Cfg: cfg, Repo: subscriptionrepo.Provide(),
	})
	env.Contacts = contactsvc.NewService(contactsvc.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
	})
	env.Bookings = bookingsvc.NewService(bookingsvc.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: bookingrepo.Provide(),
	})

	_, err = env.Accounts.Create(context.Background(), billingaccountdomain.CreateRequest{
		Code: "PT", Name: "Portugal", Prefix: "F", StartingCount: 41,
	})
	require.NoError(t, err)
	return env
}

func (e *Env) Contact(t testing.TB, name, email string) contactdomain.Contact {
	t.Helper()
	c, err := e.Contacts.Create(context.Background(), contactdomain.CreateContactRequest{Name: name, Email: email})
	require.NoError(t, err)
	return c
}

func (e *Env) Subscription(t testing.TB, req subscriptiondomain.CreateSubscriptionRequest) subscriptiondomain.Subscription {
	t.Helper()
	if req.MonthlyAmount == "" {
		req.MonthlyAmount = "50.00"
	}
	if req.BillingMethod == "" {
		req.BillingMethod = subscriptiondomain.BillingMethodStripe
	}
	sub, err := e.Subscriptions.Create(context.Background(), req)
	require.NoError(t, err)
	return sub
}

func (e *Env) CountInvoices(t testing.TB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Raw(`SELECT COUNT(*) FROM invoices`).Scan(&n).Error)
	return n
}
