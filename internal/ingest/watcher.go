package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"github.com/pulseledger/xrpwatch/internal/config"
	"github.com/pulseledger/xrpwatch/internal/ledger"
	"github.com/pulseledger/xrpwatch/internal/observability/metrics"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WatcherParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Client   ledger.Client
	Service  *Service
	Accounts accountdomain.Repository
	Assets   assetdomain.Repository
	Payments paymentdomain.Repository
	Config   config.Config
	Holder   *config.WatcherConfigHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

// Watcher runs push-mode ingestion: a catch-up pass over stored history, then
// a live subscription where each incoming payment gets an async persistence
// task. Admission is bounded: at most maxInFlight tasks run at once, and new
// work blocks until one finishes. Shutdown always drains admitted tasks.
type Watcher struct {
	db       *gorm.DB
	log      *zap.Logger
	client   ledger.Client
	service  *Service
	accounts accountdomain.Repository
	assets   assetdomain.Repository
	payments paymentdomain.Repository
	defaults Defaults
	holder   *config.WatcherConfigHolder
	metrics  *metrics.Metrics
}

func NewWatcher(p WatcherParams) *Watcher {
	return &Watcher{
		db:       p.DB,
		log:      p.Log.Named("ingest.watch"),
		client:   p.Client,
		service:  p.Service,
		accounts: p.Accounts,
		assets:   p.Assets,
		payments: p.Payments,
		defaults: Defaults{
			Account:  p.Config.DefaultAccount,
			Currency: p.Config.DefaultCurrency,
		},
		holder:  p.Holder,
		metrics: p.Metrics,
	}
}

// Watch runs push-mode ingestion until ctx is cancelled, the stream ends
// cleanly, or a store failure occurs. An upstream outage (failed subscribe,
// dropped stream) is not terminal: the watcher waits the configured backoff
// and reconnects, re-running the catch-up pass to cover the gap.
func (w *Watcher) Watch(ctx context.Context, account string) error {
	for {
		err := w.listen(ctx, account)
		if err == nil || !errors.Is(err, ledger.ErrUpstreamUnavailable) {
			return err
		}

		backoff := w.holder.Get().ReconnectBackoff
		w.metrics.RecordFailure("stream")
		w.log.Warn("upstream lost, reconnecting",
			zap.String("account", account),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// listen performs one catch-up pass and consumes the subscription stream.
// In every exit path, all admitted tasks complete before it returns.
func (w *Watcher) listen(ctx context.Context, account string) error {
	if _, err := w.service.Backfill(ctx, account); err != nil {
		return fmt.Errorf("catch-up: %w", err)
	}

	envelopes, streamErrs, err := w.client.Subscribe(ctx, account)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", account, err)
	}

	maxInFlight := w.holder.Get().MaxInFlight
	w.log.Info("listening for transactions",
		zap.String("account", account),
		zap.Int("max_in_flight", maxInFlight),
	)

	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	// The first store failure stops admission: data integrity cannot be
	// guaranteed, so the run surfaces the cause instead of skipping records.
	taskErrs := make(chan error, 1)

	// drain waits for admitted tasks, then reports any failure they raised.
	drain := func() error {
		wg.Wait()
		select {
		case err := <-taskErrs:
			return err
		default:
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			err := drain()
			w.log.Info("listen loop cancelled, in-flight work drained")
			if err != nil {
				return err
			}
			return ctx.Err()

		case err := <-taskErrs:
			wg.Wait()
			return err

		case err := <-streamErrs:
			if drainErr := drain(); drainErr != nil {
				return drainErr
			}
			if err != nil {
				return fmt.Errorf("subscription stream: %w", err)
			}
			return nil

		case env, ok := <-envelopes:
			if !ok {
				// Stream closed; the cause arrives on streamErrs.
				err := <-streamErrs
				if drainErr := drain(); drainErr != nil {
					return drainErr
				}
				if err != nil {
					return fmt.Errorf("subscription stream: %w", err)
				}
				return nil
			}

			payments, malformed := FilterPayments([]ledger.Envelope{env}, w.log)
			w.metrics.RecordSkipped("malformed", malformed)
			if len(payments) == 0 {
				continue
			}
			payment := payments[0]

			// Admission blocks while maxInFlight tasks are running and
			// unblocks as soon as any one finishes.
			select {
			case sem <- struct{}{}:
			case err := <-taskErrs:
				wg.Wait()
				return err
			case <-ctx.Done():
				err := drain()
				w.log.Info("listen loop cancelled, in-flight work drained")
				if err != nil {
					return err
				}
				return ctx.Err()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				w.ingestOne(ctx, payment, taskErrs)
			}()
		}
	}
}

// ingestOne persists a single live payment: advisory existence check, then
// resolve and insert in one transaction. A hash conflict from a concurrent
// run is a duplicate, not an error.
func (w *Watcher) ingestOne(ctx context.Context, p Payment, taskErrs chan<- error) {
	w.metrics.TaskStarted()
	defer w.metrics.TaskFinished()

	// An admitted task finishes its write even when the run is shutting
	// down; cancellation only stops admission of new work.
	ctx = context.WithoutCancel(ctx)

	existing, err := w.payments.FindExistingHashes(ctx, w.db, []string{p.Hash})
	if err != nil {
		w.fail(taskErrs, p.Hash, err)
		return
	}
	if _, ok := existing[p.Hash]; ok {
		w.metrics.RecordDuplicate(1)
		return
	}

	var inserted bool
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolver := NewResolver(tx, w.accounts, w.assets, w.defaults)
		row, err := buildRecord(ctx, resolver, p)
		if err != nil {
			return err
		}
		inserted, err = w.payments.Insert(ctx, tx, &row)
		return err
	})
	if err != nil {
		w.fail(taskErrs, p.Hash, err)
		return
	}

	if inserted {
		w.metrics.RecordIngested("push", 1)
		w.log.Debug("persisted payment", zap.String("hash", p.Hash))
	} else {
		w.metrics.RecordDuplicate(1)
	}
}

func (w *Watcher) fail(taskErrs chan<- error, hash string, err error) {
	w.metrics.RecordFailure("persist")
	w.log.Error("persistence task failed", zap.String("hash", hash), zap.Error(err))
	select {
	case taskErrs <- fmt.Errorf("persist %s: %w", hash, err):
	default:
		// A failure is already pending; the run stops on the first one.
	}
}
