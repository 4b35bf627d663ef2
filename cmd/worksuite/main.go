package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/migration"
	"github.com/smallbiznis/worksuite/internal/observability"
	"github.com/smallbiznis/worksuite/internal/runlock"
	"github.com/smallbiznis/worksuite/internal/scheduler"
	"github.com/smallbiznis/worksuite/internal/server"
	"github.com/smallbiznis/worksuite/pkg/db"
	"go.uber.org/fx"
)

// Single-binary deployment: HTTP surface, webhooks and the billing scheduler in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		server.Module,
		runlock.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
