package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	accountrepo "github.com/pulseledger/xrpwatch/internal/account/repository"
	assetrepo "github.com/pulseledger/xrpwatch/internal/asset/repository"
	"github.com/pulseledger/xrpwatch/internal/config"
	"github.com/pulseledger/xrpwatch/internal/ledger"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	paymentrepo "github.com/pulseledger/xrpwatch/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeLedger struct {
	history   []ledger.Envelope
	envelopes chan ledger.Envelope
	errs      chan error
}

func (f *fakeLedger) AccountTransactions(ctx context.Context, account string) ([]ledger.Envelope, error) {
	return f.history, nil
}

func (f *fakeLedger) Subscribe(ctx context.Context, account string) (<-chan ledger.Envelope, <-chan error, error) {
	return f.envelopes, f.errs, nil
}

func newTestService(t *testing.T, db *gorm.DB, client ledger.Client) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{
		DB:       db,
		Log:      zap.NewNop(),
		Client:   client,
		Accounts: accountrepo.Provide(),
		Assets:   assetrepo.Provide(node),
		Payments: paymentrepo.Provide(),
		Config: config.Config{
			DefaultAccount:  "SYSTEM",
			DefaultCurrency: "XRP drops",
		},
	})
}

func issuedEnvelope(hash, issuer, currency, value string) ledger.Envelope {
	env := paymentEnvelope(hash)
	raw, _ := json.Marshal(map[string]string{
		"issuer": issuer, "currency": currency, "value": value,
	})
	env.Tx.Amount = raw
	return env
}

func TestBackfill_PersistsFilteredHistory(t *testing.T) {
	db := openTestDB(t)
	failed := paymentEnvelope("F1")
	failed.Meta.TransactionResult = "tecPATH_DRY"

	svc := newTestService(t, db, &fakeLedger{history: []ledger.Envelope{
		paymentEnvelope("H1"),
		failed,
		issuedEnvelope("H2", "rGateway", "USD", "25"),
	}})

	inserted, err := svc.Backfill(context.Background(), "rSource")
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	var stored []paymentdomain.Payment
	require.NoError(t, db.Order("hash ASC").Find(&stored).Error)
	require.Len(t, stored, 2)

	assert.Equal(t, "H1", stored[0].Hash)
	assert.Equal(t, "rSource", stored[0].AccountAddress)
	assert.Equal(t, "rDest", stored[0].DestinationAddress)
	assert.Equal(t, "1000000", stored[0].Amount)
	assert.Equal(t, "12", stored[0].Fee)
	assert.EqualValues(t, 75_000_001, stored[0].LedgerIndex)

	assert.Equal(t, "25", stored[1].Amount)
	assert.NotEqual(t, stored[0].AssetID, stored[1].AssetID)

	// Source, destination, issuer, and the native-asset issuer all exist.
	var addresses []string
	require.NoError(t, db.Model(&accountdomain.Account{}).Order("address ASC").Pluck("address", &addresses).Error)
	assert.Equal(t, []string{"SYSTEM", "rDest", "rGateway", "rSource"}, addresses)
}

func TestBackfill_ReingestionIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeLedger{history: []ledger.Envelope{
		paymentEnvelope("H1"),
		paymentEnvelope("H2"),
	}})
	ctx := context.Background()

	first, err := svc.Backfill(ctx, "rSource")
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := svc.Backfill(ctx, "rSource")
	require.NoError(t, err)
	assert.Empty(t, second)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestBackfill_MixedBatchInsertsOnlyNovel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seed := newTestService(t, db, &fakeLedger{history: []ledger.Envelope{
		paymentEnvelope("H1"),
	}})
	_, err := seed.Backfill(ctx, "rSource")
	require.NoError(t, err)

	svc := newTestService(t, db, &fakeLedger{history: []ledger.Envelope{
		paymentEnvelope("H1"),
		paymentEnvelope("H2"),
		paymentEnvelope("H3"),
	}})
	inserted, err := svc.Backfill(ctx, "rSource")
	require.NoError(t, err)

	hashes := make([]string, 0, len(inserted))
	for _, p := range inserted {
		hashes = append(hashes, p.Hash)
	}
	assert.ElementsMatch(t, []string{"H2", "H3"}, hashes)
}

func TestBackfill_EmptyHistory(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeLedger{})

	inserted, err := svc.Backfill(context.Background(), "rSource")
	require.NoError(t, err)
	assert.Empty(t, inserted)
}
