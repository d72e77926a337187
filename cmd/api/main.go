package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pulseledger/xrpwatch/internal/config"
	"github.com/pulseledger/xrpwatch/internal/migration"
	"github.com/pulseledger/xrpwatch/internal/observability"
	"github.com/pulseledger/xrpwatch/internal/server"
	"github.com/pulseledger/xrpwatch/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
