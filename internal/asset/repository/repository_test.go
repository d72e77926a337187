package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&assetdomain.Asset{}))
	return db
}

func newRepo(t *testing.T) assetdomain.Repository {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return Provide(node)
}

func TestGetOrCreate_KeepsIdentityStable(t *testing.T) {
	db := openTestDB(t)
	repo := newRepo(t)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, db, "rGateway", "USD")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	// The second call mints a fresh candidate ID but must observe the
	// already-persisted row.
	second, err := repo.GetOrCreate(ctx, db, "rGateway", "USD")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&assetdomain.Asset{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreate_DistinguishesCurrencyAndIssuer(t *testing.T) {
	db := openTestDB(t)
	repo := newRepo(t)
	ctx := context.Background()

	usd, err := repo.GetOrCreate(ctx, db, "rGateway", "USD")
	require.NoError(t, err)
	eur, err := repo.GetOrCreate(ctx, db, "rGateway", "EUR")
	require.NoError(t, err)
	otherUSD, err := repo.GetOrCreate(ctx, db, "rOther", "USD")
	require.NoError(t, err)

	assert.NotEqual(t, usd.ID, eur.ID)
	assert.NotEqual(t, usd.ID, otherUSD.ID)
}

func TestFindByKey_MissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	repo := newRepo(t)

	found, err := repo.FindByKey(context.Background(), db, "rNobody", "XYZ")
	require.NoError(t, err)
	assert.Nil(t, found)
}
