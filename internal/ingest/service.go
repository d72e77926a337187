package ingest

import (
	"context"
	"fmt"
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

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Client   ledger.Client
	Accounts accountdomain.Repository
	Assets   assetdomain.Repository
	Payments paymentdomain.Repository
	Config   config.Config
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service runs pull-mode ingestion: one finite batch over an account's full
// stored history.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	client   ledger.Client
	accounts accountdomain.Repository
	assets   assetdomain.Repository
	payments paymentdomain.Repository
	defaults Defaults
	metrics  *metrics.Metrics
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ingest"),
		client:   p.Client,
		accounts: p.Accounts,
		assets:   p.Assets,
		payments: p.Payments,
		defaults: Defaults{
			Account:  p.Config.DefaultAccount,
			Currency: p.Config.DefaultCurrency,
		},
		metrics: p.Metrics,
	}
}

// Backfill fetches the account's history, filters it to successful payments,
// and persists the novel ones in one atomic batch. It returns the records
// actually inserted. Upstream failures are returned to the caller unretried.
func (s *Service) Backfill(ctx context.Context, account string) ([]paymentdomain.Payment, error) {
	start := time.Now()

	envelopes, err := s.client.AccountTransactions(ctx, account)
	if err != nil {
		s.metrics.RecordFailure("fetch")
		return nil, fmt.Errorf("fetch history for %s: %w", account, err)
	}

	payments, malformed := FilterPayments(envelopes, s.log)
	s.metrics.RecordSkipped("malformed", malformed)
	s.log.Info("filtered account history",
		zap.String("account", account),
		zap.Int("envelopes", len(envelopes)),
		zap.Int("payments", len(payments)),
		zap.Int("malformed", malformed),
	)

	var inserted []paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		inserted, txErr = s.persistBatch(ctx, tx, payments)
		return txErr
	})
	if err != nil {
		s.metrics.RecordFailure("persist")
		return nil, err
	}

	s.metrics.RecordIngested("pull", len(inserted))
	s.metrics.RecordDuplicate(len(payments) - len(inserted))
	s.metrics.ObserveBatch(time.Since(start))
	s.log.Info("backfill complete",
		zap.String("account", account),
		zap.Int("inserted", len(inserted)),
		zap.Duration("took", time.Since(start)),
	)
	return inserted, nil
}

// persistBatch deduplicates, resolves, and writes one filtered batch inside
// the given transaction. The dedup query is advisory; the insert's
// on-conflict handling is what makes reingestion safe under races.
func (s *Service) persistBatch(ctx context.Context, tx *gorm.DB, payments []Payment) ([]paymentdomain.Payment, error) {
	if len(payments) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(payments))
	for _, p := range payments {
		hashes = append(hashes, p.Hash)
	}
	existing, err := s.payments.FindExistingHashes(ctx, tx, hashes)
	if err != nil {
		return nil, err
	}

	novel := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if _, ok := existing[p.Hash]; ok {
			continue
		}
		novel = append(novel, p)
	}
	if len(novel) == 0 {
		return nil, nil
	}

	resolver := NewResolver(tx, s.accounts, s.assets, s.defaults)
	if err := resolver.WarmAccounts(ctx, referencedAddresses(novel)); err != nil {
		return nil, err
	}

	rows := make([]paymentdomain.Payment, 0, len(novel))
	for _, p := range novel {
		row, err := buildRecord(ctx, resolver, p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return s.payments.BulkInsert(ctx, tx, rows)
}

// referencedAddresses collects every account a batch touches: sources,
// destinations, and issuers of issued amounts.
func referencedAddresses(payments []Payment) []string {
	seen := make(map[string]struct{}, 2*len(payments))
	addresses := make([]string, 0, 2*len(payments))
	add := func(address string) {
		if _, ok := seen[address]; ok {
			return
		}
		seen[address] = struct{}{}
		addresses = append(addresses, address)
	}
	for _, p := range payments {
		add(p.Source)
		add(p.Destination)
		if issued, ok := p.Amount.(IssuedAmount); ok {
			add(issued.Issuer)
		}
	}
	return addresses
}

func buildRecord(ctx context.Context, resolver *Resolver, p Payment) (paymentdomain.Payment, error) {
	source, err := resolver.ResolveAccount(ctx, p.Source)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	dest, err := resolver.ResolveAccount(ctx, p.Destination)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	asset, err := resolver.AssetFor(ctx, p.Amount)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	return paymentdomain.Payment{
		Hash:               p.Hash,
		AccountAddress:     source.Address,
		DestinationAddress: dest.Address,
		AssetID:            asset.ID,
		LedgerIndex:        p.LedgerIndex,
		DestinationTag:     p.DestinationTag,
		Amount:             p.Amount.AmountValue(),
		Fee:                p.Fee,
	}, nil
}
