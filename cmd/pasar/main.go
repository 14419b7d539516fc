package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasar/internal/clock"
	"github.com/smallbiznis/pasar/internal/config"
	"github.com/smallbiznis/pasar/internal/migration"
	"github.com/smallbiznis/pasar/internal/server"
	"github.com/smallbiznis/pasar/pkg/db"
	"github.com/smallbiznis/pasar/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
