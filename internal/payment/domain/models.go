// Package domain contains the persisted payment record and its store contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"gorm.io/gorm"
)

// Payment is one validated successful payment transaction. The transaction
// hash is the idempotency key: a hash is persisted at most once, and rows are
// immutable after insert.
type Payment struct {
	Hash               string       `gorm:"primaryKey;type:varchar(64)"`
	AccountAddress     string       `gorm:"type:varchar(35);not null;index"`
	DestinationAddress string       `gorm:"type:varchar(35);not null;index"`
	AssetID            snowflake.ID `gorm:"not null;index"`
	LedgerIndex        uint64       `gorm:"not null;index"`
	DestinationTag     *uint64
	Amount             string    `gorm:"type:varchar(24);not null"`
	Fee                string    `gorm:"type:varchar(24);not null"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Account     *accountdomain.Account `gorm:"foreignKey:AccountAddress;references:Address"`
	Destination *accountdomain.Account `gorm:"foreignKey:DestinationAddress;references:Address"`
	Asset       *assetdomain.Asset     `gorm:"foreignKey:AssetID;references:ID"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Repository persists payment records. Inserts are idempotent on hash.
type Repository interface {
	// FindExistingHashes returns the subset of hashes already persisted.
	// An empty candidate set returns an empty result without a query.
	FindExistingHashes(ctx context.Context, db *gorm.DB, hashes []string) (map[string]struct{}, error)

	// Insert writes one record; a hash conflict is a no-op and reported as
	// inserted=false, never as an error.
	Insert(ctx context.Context, db *gorm.DB, p *Payment) (inserted bool, err error)

	// BulkInsert writes a batch in one statement with conflicting hashes
	// skipped, returning the records actually persisted.
	BulkInsert(ctx context.Context, db *gorm.DB, rows []Payment) ([]Payment, error)
}

// ListFilter narrows payment queries for the read API.
type ListFilter struct {
	Account          string
	AccountContains  string
	Destination      string
	Issuer           string
	Currency         string
	CurrencyContains string
	Hash             string
	LedgerIndex      *uint64
	DestinationTag   *uint64
	HasDestTag       *bool

	Limit       int
	CursorHash  string
	OrderNewest bool
}

// Queries serves the read API.
type Queries interface {
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Payment, error)
	GetByHash(ctx context.Context, db *gorm.DB, hash string) (*Payment, error)
}
