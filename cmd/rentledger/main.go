package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/adjustment"
	"github.com/smallbiznis/rentledger/internal/allocation"
	"github.com/smallbiznis/rentledger/internal/balance"
	"github.com/smallbiznis/rentledger/internal/charge"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	"github.com/smallbiznis/rentledger/internal/invoice"
	"github.com/smallbiznis/rentledger/internal/ledger"
	"github.com/smallbiznis/rentledger/internal/lock"
	"github.com/smallbiznis/rentledger/internal/migration"
	"github.com/smallbiznis/rentledger/internal/notification"
	"github.com/smallbiznis/rentledger/internal/observability"
	"github.com/smallbiznis/rentledger/internal/occupancy"
	"github.com/smallbiznis/rentledger/internal/payment"
	"github.com/smallbiznis/rentledger/internal/scheduler"
	"github.com/smallbiznis/rentledger/internal/server"
	"github.com/smallbiznis/rentledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		notification.Module,

		// Functional Domains
		ledger.Module,
		invoice.Module,
		occupancy.Module,
		payment.Module,
		allocation.Module,
		balance.Module,
		adjustment.Module,
		charge.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
