package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openasset/market-engine/internal/app/domain/market"
	"github.com/openasset/market-engine/internal/app/storage"
)

// Store implements storage.MarketStore backed by PostgreSQL. The schema is
// in schema.sql and is applied out of band.
type Store struct {
	db *sql.DB
}

var _ storage.MarketStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- Listings ---------------------------------------------------------------

func (s *Store) PutListing(ctx context.Context, lst market.Listing) (market.Listing, error) {
	if lst.AssetID == "" {
		return market.Listing{}, fmt.Errorf("asset id required")
	}
	now := time.Now().UTC()
	lst.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO market_listings (asset_id, seller, price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (asset_id) DO UPDATE
		SET seller = $2, price = $3, active = $4, updated_at = $5
		RETURNING created_at
	`, lst.AssetID, lst.Seller, int64(lst.Price), lst.Active, now).Scan(&lst.CreatedAt)
	if err != nil {
		return market.Listing{}, err
	}
	return lst, nil
}

func (s *Store) GetListing(ctx context.Context, assetID string) (market.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, seller, price, active, created_at, updated_at
		FROM market_listings
		WHERE asset_id = $1
	`, assetID)

	var (
		lst   market.Listing
		price int64
	)
	if err := row.Scan(&lst.AssetID, &lst.Seller, &price, &lst.Active, &lst.CreatedAt, &lst.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.Listing{}, fmt.Errorf("listing for asset %s: %w", assetID, storage.ErrNotFound)
		}
		return market.Listing{}, err
	}
	lst.Price = uint64(price)
	return lst, nil
}

// --- Auctions ---------------------------------------------------------------

func (s *Store) PutAuction(ctx context.Context, auc market.Auction) (market.Auction, error) {
	if auc.AssetID == "" {
		return market.Auction{}, fmt.Errorf("asset id required")
	}
	now := time.Now().UTC()
	auc.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO market_auctions (asset_id, seller, starting_price, end_time, highest_bidder, highest_bid, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (asset_id) DO UPDATE
		SET seller = $2, starting_price = $3, end_time = $4, highest_bidder = $5, highest_bid = $6, active = $7, updated_at = $8
		RETURNING created_at
	`, auc.AssetID, auc.Seller, int64(auc.StartingPrice), auc.EndTime.UTC(), auc.HighestBidder, int64(auc.HighestBid), auc.Active, now).Scan(&auc.CreatedAt)
	if err != nil {
		return market.Auction{}, err
	}
	return auc, nil
}

func (s *Store) GetAuction(ctx context.Context, assetID string) (market.Auction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, seller, starting_price, end_time, highest_bidder, highest_bid, active, created_at, updated_at
		FROM market_auctions
		WHERE asset_id = $1
	`, assetID)

	var (
		auc           market.Auction
		startingPrice int64
		highestBid    int64
	)
	err := row.Scan(&auc.AssetID, &auc.Seller, &startingPrice, &auc.EndTime, &auc.HighestBidder, &highestBid, &auc.Active, &auc.CreatedAt, &auc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.Auction{}, fmt.Errorf("auction for asset %s: %w", assetID, storage.ErrNotFound)
		}
		return market.Auction{}, err
	}
	auc.StartingPrice = uint64(startingPrice)
	auc.HighestBid = uint64(highestBid)
	return auc, nil
}

// --- Bid ledger -------------------------------------------------------------

func (s *Store) PutBid(ctx context.Context, bid market.Bid) (market.Bid, error) {
	if bid.AssetID == "" || bid.Bidder == "" {
		return market.Bid{}, fmt.Errorf("asset id and bidder required")
	}
	if bid.PlacedAt.IsZero() {
		bid.PlacedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_bids (asset_id, bidder, amount, placed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_id, bidder) DO UPDATE
		SET amount = $3, placed_at = $4
	`, bid.AssetID, bid.Bidder, int64(bid.Amount), bid.PlacedAt.UTC())
	if err != nil {
		return market.Bid{}, err
	}
	return bid, nil
}

func (s *Store) ListBids(ctx context.Context, assetID string) ([]market.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, bidder, amount, placed_at
		FROM market_bids
		WHERE asset_id = $1
		ORDER BY placed_at
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []market.Bid
	for rows.Next() {
		var (
			bid    market.Bid
			amount int64
		)
		if err := rows.Scan(&bid.AssetID, &bid.Bidder, &amount, &bid.PlacedAt); err != nil {
			return nil, err
		}
		bid.Amount = uint64(amount)
		result = append(result, bid)
	}
	return result, rows.Err()
}

// --- Sale records -----------------------------------------------------------

func (s *Store) PutSaleRecord(ctx context.Context, rec market.SaleRecord) (market.SaleRecord, error) {
	if rec.AssetID == "" {
		return market.SaleRecord{}, fmt.Errorf("asset id required")
	}
	if rec.SoldAt.IsZero() {
		rec.SoldAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_sales (asset_id, price, sold_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id) DO UPDATE
		SET price = $2, sold_at = $3
	`, rec.AssetID, int64(rec.Price), rec.SoldAt.UTC())
	if err != nil {
		return market.SaleRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetSaleRecord(ctx context.Context, assetID string) (market.SaleRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, price, sold_at
		FROM market_sales
		WHERE asset_id = $1
	`, assetID)

	var (
		rec   market.SaleRecord
		price int64
	)
	if err := row.Scan(&rec.AssetID, &price, &rec.SoldAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.SaleRecord{}, fmt.Errorf("sale record for asset %s: %w", assetID, storage.ErrNotFound)
		}
		return market.SaleRecord{}, err
	}
	rec.Price = uint64(price)
	return rec, nil
}

// --- Asset registry ---------------------------------------------------------

func (s *Store) RegisterAsset(ctx context.Context, assetID string) error {
	if assetID == "" {
		return fmt.Errorf("asset id required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_assets (asset_id)
		VALUES ($1)
		ON CONFLICT (asset_id) DO NOTHING
	`, assetID)
	return err
}

func (s *Store) ListAssets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id FROM market_assets ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
