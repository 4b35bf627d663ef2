package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/migration"
	"github.com/smallbiznis/worksuite/internal/observability"
	"github.com/smallbiznis/worksuite/internal/server"
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

		// Webhooks and the admin API. Scheduled sweeps run in apps/scheduler.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
