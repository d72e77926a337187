package repository

import (
	"context"
	"fmt"
	"testing"

	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	"github.com/glebarez/sqlite"
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
	require.NoError(t, db.AutoMigrate(&accountdomain.Account{}))
	return db
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, db, "rAlice")
	require.NoError(t, err)
	assert.Equal(t, "rAlice", first.Address)

	second, err := repo.GetOrCreate(ctx, db, "rAlice")
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	var count int64
	require.NoError(t, db.Model(&accountdomain.Account{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestBulkCreate_ToleratesExisting(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, db, "rAlice")
	require.NoError(t, err)

	require.NoError(t, repo.BulkCreate(ctx, db, []string{"rAlice", "rBob", "rCarol"}))

	var count int64
	require.NoError(t, db.Model(&accountdomain.Account{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestFindByAddresses(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.BulkCreate(ctx, db, []string{"rAlice", "rBob"}))

	found, err := repo.FindByAddresses(ctx, db, []string{"rAlice", "rUnknown"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "rAlice", found[0].Address)

	none, err := repo.FindByAddresses(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
