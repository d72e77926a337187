package ingest

import (
	"context"
	"fmt"

	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"gorm.io/gorm"
)

// Defaults names the well-known system account and currency symbol that
// represent the ledger's native asset.
type Defaults struct {
	Account  string
	Currency string
}

// Resolver maps addresses and (issuer, currency) pairs to persisted entities,
// creating them on first reference. The cache lives exactly as long as the
// resolver: one per ingestion run, bound to that run's transaction. It is not
// safe for concurrent use; concurrent runs each construct their own.
type Resolver struct {
	db       *gorm.DB
	accounts accountdomain.Repository
	assets   assetdomain.Repository
	defaults Defaults

	accountCache map[string]accountdomain.Account
	assetCache   map[string]assetdomain.Asset
	defaultAsset *assetdomain.Asset
}

func NewResolver(db *gorm.DB, accounts accountdomain.Repository, assets assetdomain.Repository, defaults Defaults) *Resolver {
	return &Resolver{
		db:           db,
		accounts:     accounts,
		assets:       assets,
		defaults:     defaults,
		accountCache: make(map[string]accountdomain.Account),
		assetCache:   make(map[string]assetdomain.Asset),
	}
}

// ResolveAccount returns the account for the address, creating it if absent.
func (r *Resolver) ResolveAccount(ctx context.Context, address string) (accountdomain.Account, error) {
	if account, ok := r.accountCache[address]; ok {
		return account, nil
	}
	account, err := r.accounts.GetOrCreate(ctx, r.db, address)
	if err != nil {
		return accountdomain.Account{}, err
	}
	r.accountCache[address] = account
	return account, nil
}

// ResolveAsset returns the asset for (issuer, currency), creating it if
// absent. The issuer account is created first so the asset row never
// references a missing account.
func (r *Resolver) ResolveAsset(ctx context.Context, issuer, currency string) (assetdomain.Asset, error) {
	key := issuer + "|" + currency
	if asset, ok := r.assetCache[key]; ok {
		return asset, nil
	}
	if _, err := r.ResolveAccount(ctx, issuer); err != nil {
		return assetdomain.Asset{}, err
	}
	asset, err := r.assets.GetOrCreate(ctx, r.db, issuer, currency)
	if err != nil {
		return assetdomain.Asset{}, err
	}
	r.assetCache[key] = asset
	return asset, nil
}

// DefaultAsset returns the native-currency asset, resolving it once per run.
func (r *Resolver) DefaultAsset(ctx context.Context) (assetdomain.Asset, error) {
	if r.defaultAsset != nil {
		return *r.defaultAsset, nil
	}
	asset, err := r.ResolveAsset(ctx, r.defaults.Account, r.defaults.Currency)
	if err != nil {
		return assetdomain.Asset{}, err
	}
	r.defaultAsset = &asset
	return asset, nil
}

// AssetFor resolves the asset a payment amount refers to: the process default
// for native amounts, the (issuer, currency) asset for issued ones.
func (r *Resolver) AssetFor(ctx context.Context, amount Amount) (assetdomain.Asset, error) {
	switch a := amount.(type) {
	case NativeAmount:
		return r.DefaultAsset(ctx)
	case IssuedAmount:
		return r.ResolveAsset(ctx, a.Issuer, a.Currency)
	default:
		return assetdomain.Asset{}, fmt.Errorf("%w: unknown amount variant %T", ErrMalformedTransaction, amount)
	}
}

// WarmAccounts prefetches existing accounts and bulk-creates the rest in two
// round trips, then seeds the cache. Composing this with the lazy path gives
// identical results; it only saves per-address queries on large batches.
func (r *Resolver) WarmAccounts(ctx context.Context, addresses []string) error {
	missing := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if _, ok := r.accountCache[address]; !ok {
			missing = append(missing, address)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	existing, err := r.accounts.FindByAddresses(ctx, r.db, missing)
	if err != nil {
		return err
	}
	for _, account := range existing {
		r.accountCache[account.Address] = account
	}

	toCreate := make([]string, 0, len(missing))
	for _, address := range missing {
		if _, ok := r.accountCache[address]; !ok {
			toCreate = append(toCreate, address)
		}
	}
	if len(toCreate) == 0 {
		return nil
	}
	if err := r.accounts.BulkCreate(ctx, r.db, toCreate); err != nil {
		return err
	}
	created, err := r.accounts.FindByAddresses(ctx, r.db, toCreate)
	if err != nil {
		return err
	}
	for _, account := range created {
		r.accountCache[account.Address] = account
	}
	return nil
}
