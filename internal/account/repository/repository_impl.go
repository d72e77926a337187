package repository

import (
	"context"
	"fmt"

	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) FindByAddresses(ctx context.Context, db *gorm.DB, addresses []string) ([]accountdomain.Account, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	var accounts []accountdomain.Account
	err := db.WithContext(ctx).
		Where("address IN ?", addresses).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetOrCreate inserts the address with ON CONFLICT DO NOTHING and re-selects,
// so a concurrent run creating the same account never surfaces an error.
func (r *repo) GetOrCreate(ctx context.Context, db *gorm.DB, address string) (accountdomain.Account, error) {
	account := accountdomain.Account{Address: address}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&account).Error
	if err != nil {
		return accountdomain.Account{}, fmt.Errorf("upsert account %s: %w", address, err)
	}

	var existing accountdomain.Account
	if err := db.WithContext(ctx).First(&existing, "address = ?", address).Error; err != nil {
		return accountdomain.Account{}, fmt.Errorf("reselect account %s: %w", address, err)
	}
	return existing, nil
}

func (r *repo) BulkCreate(ctx context.Context, db *gorm.DB, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	accounts := make([]accountdomain.Account, 0, len(addresses))
	for _, address := range addresses {
		accounts = append(accounts, accountdomain.Account{Address: address})
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&accounts).Error
}
