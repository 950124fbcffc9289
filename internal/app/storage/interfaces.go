// Package storage defines the persistence interfaces the marketplace engine
// depends on. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/openasset/market-engine/internal/app/domain/market"
)

// ErrNotFound is returned when a requested record does not exist.
// Implementations wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("record not found")

// MarketStore persists the per-asset sale state: listings, auctions, the bid
// ledger, realized sale prices, and the ordered registry of every asset ID
// the engine has ever touched.
//
// The engine serializes all mutating calls under its execution lock, so
// implementations only need to be individually, not transactionally,
// consistent.
type MarketStore interface {
	// PutListing inserts or replaces the listing for its asset.
	PutListing(ctx context.Context, lst market.Listing) (market.Listing, error)
	// GetListing returns the listing record for an asset, active or not.
	GetListing(ctx context.Context, assetID string) (market.Listing, error)

	// PutAuction inserts or replaces the auction for its asset.
	PutAuction(ctx context.Context, auc market.Auction) (market.Auction, error)
	// GetAuction returns the auction record for an asset, active or not.
	GetAuction(ctx context.Context, assetID string) (market.Auction, error)

	// PutBid records the last amount a bidder offered for an asset.
	PutBid(ctx context.Context, bid market.Bid) (market.Bid, error)
	// ListBids returns the bid ledger entries for an asset.
	ListBids(ctx context.Context, assetID string) ([]market.Bid, error)

	// PutSaleRecord stores the realized sale price of an asset.
	PutSaleRecord(ctx context.Context, rec market.SaleRecord) (market.SaleRecord, error)
	// GetSaleRecord returns the last realized sale price for an asset.
	GetSaleRecord(ctx context.Context, assetID string) (market.SaleRecord, error)

	// RegisterAsset appends an asset ID to the registry. Registering an
	// already-known ID is a no-op.
	RegisterAsset(ctx context.Context, assetID string) error
	// ListAssets returns every registered asset ID in registration order.
	ListAssets(ctx context.Context) ([]string, error)
}
