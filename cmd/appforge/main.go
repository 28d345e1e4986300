package main

import (
	"github.com/appforge/appforge/internal/analytics"
	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/distlock"
	"github.com/appforge/appforge/internal/logger"
	"github.com/appforge/appforge/internal/metrics"
	"github.com/appforge/appforge/internal/migration"
	"github.com/appforge/appforge/internal/order"
	"github.com/appforge/appforge/internal/payment"
	"github.com/appforge/appforge/internal/plan"
	"github.com/appforge/appforge/internal/rating"
	"github.com/appforge/appforge/internal/scheduler"
	"github.com/appforge/appforge/internal/server"
	"github.com/appforge/appforge/internal/subscription"
	"github.com/appforge/appforge/internal/telemetry"
	"github.com/appforge/appforge/internal/wallet"
	"github.com/appforge/appforge/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		distlock.Module,

		// Functional domains
		plan.Module,
		rating.Module,
		wallet.Module,
		subscription.Module,
		order.Module,
		analytics.Module,
		payment.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
