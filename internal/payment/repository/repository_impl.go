package repository

import (
	"context"
	"fmt"

	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) FindExistingHashes(ctx context.Context, db *gorm.DB, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(hashes))
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	err := db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Where("hash IN ?", hashes).
		Pluck("hash", &found).Error
	if err != nil {
		return nil, err
	}
	for _, h := range found {
		existing[h] = struct{}{}
	}
	return existing, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *paymentdomain.Payment) (bool, error) {
	result := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(hashConflictClause()).
		Create(p)
	if result.Error != nil {
		return false, fmt.Errorf("insert payment %s: %w", p.Hash, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// BulkInsert writes the batch with conflicting hashes skipped and returns the
// records that were new at the pre-select. The pre-select and the insert run
// on the caller's transaction, so a store failure rolls the whole batch back.
// A hash committed by a concurrent run between the pre-select and the insert
// is still skipped by the conflict clause but reported as inserted; the result
// is advisory, the conflict clause is the idempotency guarantee.
func (r *repo) BulkInsert(ctx context.Context, db *gorm.DB, rows []paymentdomain.Payment) ([]paymentdomain.Payment, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(rows))
	for _, row := range rows {
		hashes = append(hashes, row.Hash)
	}
	existing, err := r.FindExistingHashes(ctx, db, hashes)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(hashConflictClause()).
		Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("bulk insert %d payments: %w", len(rows), err)
	}

	inserted := make([]paymentdomain.Payment, 0, len(rows))
	for _, row := range rows {
		if _, ok := existing[row.Hash]; ok {
			continue
		}
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func hashConflictClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}
}
