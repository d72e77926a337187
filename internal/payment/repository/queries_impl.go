package repository

import (
	"context"
	"errors"

	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"gorm.io/gorm"
)

type queries struct{}

func ProvideQueries() paymentdomain.Queries {
	return &queries{}
}

func (q *queries) List(ctx context.Context, db *gorm.DB, filter paymentdomain.ListFilter) ([]paymentdomain.Payment, error) {
	stmt := db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Preload("Account").
		Preload("Destination").
		Preload("Asset")

	if filter.Account != "" {
		stmt = stmt.Where("account_address = ?", filter.Account)
	}
	if filter.AccountContains != "" {
		stmt = stmt.Where("account_address LIKE ?", "%"+filter.AccountContains+"%")
	}
	if filter.Destination != "" {
		stmt = stmt.Where("destination_address = ?", filter.Destination)
	}
	if filter.Issuer != "" || filter.Currency != "" || filter.CurrencyContains != "" {
		sub := db.Model(&struct{}{}).Table("assets").Select("id")
		if filter.Issuer != "" {
			sub = sub.Where("issuer_address = ?", filter.Issuer)
		}
		if filter.Currency != "" {
			sub = sub.Where("currency = ?", filter.Currency)
		}
		if filter.CurrencyContains != "" {
			sub = sub.Where("currency LIKE ?", "%"+filter.CurrencyContains+"%")
		}
		stmt = stmt.Where("asset_id IN (?)", sub)
	}
	if filter.Hash != "" {
		stmt = stmt.Where("hash = ?", filter.Hash)
	}
	if filter.LedgerIndex != nil {
		stmt = stmt.Where("ledger_index = ?", *filter.LedgerIndex)
	}
	if filter.DestinationTag != nil {
		stmt = stmt.Where("destination_tag = ?", *filter.DestinationTag)
	}
	if filter.HasDestTag != nil {
		if *filter.HasDestTag {
			stmt = stmt.Where("destination_tag IS NOT NULL")
		} else {
			stmt = stmt.Where("destination_tag IS NULL")
		}
	}

	order := "ledger_index ASC, hash ASC"
	if filter.OrderNewest {
		order = "ledger_index DESC, hash DESC"
	}
	stmt = stmt.Order(order)

	if filter.CursorHash != "" {
		var anchor paymentdomain.Payment
		err := db.WithContext(ctx).
			Select("hash", "ledger_index").
			First(&anchor, "hash = ?", filter.CursorHash).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			if filter.OrderNewest {
				stmt = stmt.Where(
					"(ledger_index < ?) OR (ledger_index = ? AND hash < ?)",
					anchor.LedgerIndex, anchor.LedgerIndex, anchor.Hash,
				)
			} else {
				stmt = stmt.Where(
					"(ledger_index > ?) OR (ledger_index = ? AND hash > ?)",
					anchor.LedgerIndex, anchor.LedgerIndex, anchor.Hash,
				)
			}
		}
	}

	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rows []paymentdomain.Payment
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *queries) GetByHash(ctx context.Context, db *gorm.DB, hash string) (*paymentdomain.Payment, error) {
	var row paymentdomain.Payment
	err := db.WithContext(ctx).
		Preload("Account").
		Preload("Destination").
		Preload("Asset").
		First(&row, "hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
