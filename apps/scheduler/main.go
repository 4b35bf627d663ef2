package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worksuite/internal/batchinvoice"
	"github.com/smallbiznis/worksuite/internal/billingaccount"
	"github.com/smallbiznis/worksuite/internal/booking"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/contact"
	"github.com/smallbiznis/worksuite/internal/invoice"
	"github.com/smallbiznis/worksuite/internal/migration"
	"github.com/smallbiznis/worksuite/internal/observability"
	"github.com/smallbiznis/worksuite/internal/providers"
	"github.com/smallbiznis/worksuite/internal/runlock"
	"github.com/smallbiznis/worksuite/internal/scheduler"
	"github.com/smallbiznis/worksuite/internal/subscription"
	"github.com/smallbiznis/worksuite/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Domain services required by the batch sweeps
		providers.Module,
		billingaccount.Module,
		contact.Module,
		booking.Module,
		subscription.Module,
		invoice.Module,
		batchinvoice.Module,

		// No server module!
		runlock.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
