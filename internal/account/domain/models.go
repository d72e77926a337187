// Package domain contains persistence models for XRP Ledger accounts.
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Account is an XRP Ledger account referenced by at least one payment.
// Rows are created on first reference and never updated or deleted.
type Account struct {
	Address   string    `gorm:"primaryKey;type:varchar(35)"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Repository persists accounts. All create paths are upserts: a concurrent
// insert of the same address is treated as already-exists.
type Repository interface {
	FindByAddresses(ctx context.Context, db *gorm.DB, addresses []string) ([]Account, error)
	GetOrCreate(ctx context.Context, db *gorm.DB, address string) (Account, error)
	BulkCreate(ctx context.Context, db *gorm.DB, addresses []string) error
}
