// Package domain contains persistence models for payment assets.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Asset identifies what a payment transferred: either an issued asset keyed
// by (issuer, currency), or the ledger's native currency represented by the
// well-known system account and currency symbol.
type Asset struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	IssuerAddress string       `gorm:"type:varchar(35);not null;uniqueIndex:idx_assets_issuer_currency"`
	Currency      string       `gorm:"type:varchar(40);not null;uniqueIndex:idx_assets_issuer_currency"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Asset) TableName() string { return "assets" }

// Repository persists assets. The (issuer, currency) unique index is the only
// cross-run consistency mechanism; creation is always an upsert.
type Repository interface {
	FindByKey(ctx context.Context, db *gorm.DB, issuer, currency string) (*Asset, error)
	GetOrCreate(ctx context.Context, db *gorm.DB, issuer, currency string) (Asset, error)
}
