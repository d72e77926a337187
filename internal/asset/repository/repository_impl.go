package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) assetdomain.Repository {
	return &repo{genID: genID}
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, issuer, currency string) (*assetdomain.Asset, error) {
	var asset assetdomain.Asset
	err := db.WithContext(ctx).
		First(&asset, "issuer_address = ? AND currency = ?", issuer, currency).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// GetOrCreate upserts on the (issuer, currency) unique index and re-selects.
// When two runs race, the loser's insert is a no-op and both observe the
// winner's row, so asset identity stays stable.
func (r *repo) GetOrCreate(ctx context.Context, db *gorm.DB, issuer, currency string) (assetdomain.Asset, error) {
	asset := assetdomain.Asset{
		ID:            r.genID.Generate(),
		IssuerAddress: issuer,
		Currency:      currency,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issuer_address"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(&asset).Error
	if err != nil {
		return assetdomain.Asset{}, fmt.Errorf("upsert asset %s/%s: %w", currency, issuer, err)
	}

	existing, err := r.FindByKey(ctx, db, issuer, currency)
	if err != nil {
		return assetdomain.Asset{}, fmt.Errorf("reselect asset %s/%s: %w", currency, issuer, err)
	}
	if existing == nil {
		return assetdomain.Asset{}, fmt.Errorf("asset %s/%s missing after upsert", currency, issuer)
	}
	return *existing, nil
}
