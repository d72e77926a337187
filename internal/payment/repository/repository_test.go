package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	accountrepo "github.com/pulseledger/xrpwatch/internal/account/repository"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	assetrepo "github.com/pulseledger/xrpwatch/internal/asset/repository"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	db    *gorm.DB
	repo  paymentdomain.Repository
	asset assetdomain.Asset
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&assetdomain.Asset{},
		&paymentdomain.Payment{},
	))

	ctx := context.Background()
	require.NoError(t, accountrepo.Provide().BulkCreate(ctx, db, []string{"rAlice", "rBob"}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	asset, err := assetrepo.Provide(node).GetOrCreate(ctx, db, "SYSTEM", "XRP drops")
	require.NoError(t, err)

	return fixture{db: db, repo: Provide(), asset: asset}
}

func (f fixture) payment(hash string, ledgerIndex uint64) paymentdomain.Payment {
	return paymentdomain.Payment{
		Hash:               hash,
		AccountAddress:     "rAlice",
		DestinationAddress: "rBob",
		AssetID:            f.asset.ID,
		LedgerIndex:        ledgerIndex,
		Amount:             "1000",
		Fee:                "12",
	}
}

func TestInsert_DuplicateHashIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row := f.payment("H1", 100)
	inserted, err := f.repo.Insert(ctx, f.db, &row)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := f.payment("H1", 100)
	duplicate.Amount = "9999"
	inserted, err = f.repo.Insert(ctx, f.db, &duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	// The original row is untouched.
	var stored paymentdomain.Payment
	require.NoError(t, f.db.First(&stored, "hash = ?", "H1").Error)
	assert.Equal(t, "1000", stored.Amount)
}

func TestBulkInsert_ReturnsOnlyNovelRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.repo.BulkInsert(ctx, f.db, []paymentdomain.Payment{
		f.payment("H1", 100),
		f.payment("H2", 101),
	})
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := f.repo.BulkInsert(ctx, f.db, []paymentdomain.Payment{
		f.payment("H2", 101),
		f.payment("H3", 102),
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "H3", second[0].Hash)

	var count int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestFindExistingHashes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.BulkInsert(ctx, f.db, []paymentdomain.Payment{
		f.payment("H1", 100),
	})
	require.NoError(t, err)

	existing, err := f.repo.FindExistingHashes(ctx, f.db, []string{"H1", "H2"})
	require.NoError(t, err)
	assert.Contains(t, existing, "H1")
	assert.NotContains(t, existing, "H2")

	empty, err := f.repo.FindExistingHashes(ctx, f.db, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListAndGetByHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queries := ProvideQueries()

	tag := uint64(7)
	tagged := f.payment("H2", 101)
	tagged.DestinationTag = &tag

	_, err := f.repo.BulkInsert(ctx, f.db, []paymentdomain.Payment{
		f.payment("H1", 100),
		tagged,
		f.payment("H3", 102),
	})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		rows, err := queries.List(ctx, f.db, paymentdomain.ListFilter{OrderNewest: true})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "H3", rows[0].Hash)
		assert.Equal(t, "H1", rows[2].Hash)
	})

	t.Run("cursor resumes after anchor", func(t *testing.T) {
		rows, err := queries.List(ctx, f.db, paymentdomain.ListFilter{
			OrderNewest: true,
			CursorHash:  "H3",
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "H2", rows[0].Hash)
	})

	t.Run("destination tag filter", func(t *testing.T) {
		yes := true
		rows, err := queries.List(ctx, f.db, paymentdomain.ListFilter{HasDestTag: &yes})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "H2", rows[0].Hash)
	})

	t.Run("preloads associations", func(t *testing.T) {
		row, err := queries.GetByHash(ctx, f.db, "H1")
		require.NoError(t, err)
		require.NotNil(t, row)
		require.NotNil(t, row.Asset)
		assert.Equal(t, "XRP drops", row.Asset.Currency)
		require.NotNil(t, row.Account)
		assert.Equal(t, "rAlice", row.Account.Address)
	})

	t.Run("missing hash", func(t *testing.T) {
		row, err := queries.GetByHash(ctx, f.db, "ZZ")
		require.NoError(t, err)
		assert.Nil(t, row)
	})
}
