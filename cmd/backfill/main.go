package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pulseledger/xrpwatch/internal/account"
	"github.com/pulseledger/xrpwatch/internal/asset"
	"github.com/pulseledger/xrpwatch/internal/config"
	"github.com/pulseledger/xrpwatch/internal/ingest"
	"github.com/pulseledger/xrpwatch/internal/ledger"
	ledgerws "github.com/pulseledger/xrpwatch/internal/ledger/ws"
	"github.com/pulseledger/xrpwatch/internal/migration"
	"github.com/pulseledger/xrpwatch/internal/observability"
	"github.com/pulseledger/xrpwatch/internal/payment"
	"github.com/pulseledger/xrpwatch/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(NewLedgerClient),
		db.Module,
		migration.Module,
		account.Module,
		asset.Module,
		payment.Module,
		ingest.Module,
		fx.Invoke(runBackfill),
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

func NewLedgerClient(cfg config.Config, log *zap.Logger) ledger.Client {
	return ledgerws.New(cfg.XRPLEndpoint, 0, log)
}

// runBackfill performs a single history sweep for the configured account
// and then shuts the process down.
func runBackfill(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc *ingest.Service, cfg config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer func() {
					_ = shutdowner.Shutdown()
				}()

				if cfg.TargetAccount == "" {
					log.Error("TARGET_ACCOUNT is required")
					return
				}

				inserted, err := svc.Backfill(context.Background(), cfg.TargetAccount)
				if err != nil {
					log.Error("backfill failed", zap.Error(err))
					return
				}
				log.Info("backfill complete",
					zap.String("account", cfg.TargetAccount),
					zap.Int("inserted", len(inserted)),
				)
			}()
			return nil
		},
	})
}
