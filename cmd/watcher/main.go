package main

import (
	"context"
	"errors"

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
		fx.Provide(config.NewWatcherConfigHolder),
		db.Module,
		migration.Module,
		account.Module,
		asset.Module,
		payment.Module,
		ingest.Module,
		fx.Invoke(runWatcher),
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

func NewLedgerClient(cfg config.Config, holder *config.WatcherConfigHolder, log *zap.Logger) ledger.Client {
	return ledgerws.New(cfg.XRPLEndpoint, holder.Get().WriteTimeout, log)
}

// runWatcher keeps a live subscription to the configured account until the
// process receives a shutdown signal or the watcher fails.
func runWatcher(lc fx.Lifecycle, shutdowner fx.Shutdowner, w *ingest.Watcher, cfg config.Config, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.TargetAccount == "" {
				cancel()
				return errors.New("TARGET_ACCOUNT is required")
			}

			go func() {
				defer close(done)
				if err := w.Watch(ctx, cfg.TargetAccount); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("watcher stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
