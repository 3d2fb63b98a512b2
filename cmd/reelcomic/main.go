package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/reelcomic/reelcomic/internal/config"
	"github.com/reelcomic/reelcomic/internal/logger"
	"github.com/reelcomic/reelcomic/internal/migration"
	"github.com/reelcomic/reelcomic/internal/server"
	"github.com/reelcomic/reelcomic/pkg/db"
	"github.com/reelcomic/reelcomic/pkg/telemetry"
	"go.uber.org/fx"
)

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		fx.Provide(telemetry.NewMetrics),
		db.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}
