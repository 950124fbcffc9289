package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openasset/market-engine/internal/app/domain/market"
	"github.com/openasset/market-engine/internal/app/storage"
)

// Store is an in-memory implementation of storage.MarketStore. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu          sync.RWMutex
	listings    map[string]market.Listing
	auctions    map[string]market.Auction
	bids        map[string][]market.Bid
	sales       map[string]market.SaleRecord
	assetOrder  []string
	assetsKnown map[string]struct{}
}

var _ storage.MarketStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		listings:    make(map[string]market.Listing),
		auctions:    make(map[string]market.Auction),
		bids:        make(map[string][]market.Bid),
		sales:       make(map[string]market.SaleRecord),
		assetsKnown: make(map[string]struct{}),
	}
}

func (s *Store) PutListing(_ context.Context, lst market.Listing) (market.Listing, error) {
	if lst.AssetID == "" {
		return market.Listing{}, fmt.Errorf("asset id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.listings[lst.AssetID]; ok {
		lst.CreatedAt = existing.CreatedAt
	} else {
		lst.CreatedAt = now
	}
	lst.UpdatedAt = now

	s.listings[lst.AssetID] = lst
	return lst, nil
}

func (s *Store) GetListing(_ context.Context, assetID string) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lst, ok := s.listings[assetID]
	if !ok {
		return market.Listing{}, fmt.Errorf("listing for asset %s: %w", assetID, storage.ErrNotFound)
	}
	return lst, nil
}

func (s *Store) PutAuction(_ context.Context, auc market.Auction) (market.Auction, error) {
	if auc.AssetID == "" {
		return market.Auction{}, fmt.Errorf("asset id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.auctions[auc.AssetID]; ok {
		auc.CreatedAt = existing.CreatedAt
	} else {
		auc.CreatedAt = now
	}
	auc.UpdatedAt = now

	s.auctions[auc.AssetID] = auc
	return auc, nil
}

func (s *Store) GetAuction(_ context.Context, assetID string) (market.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auc, ok := s.auctions[assetID]
	if !ok {
		return market.Auction{}, fmt.Errorf("auction for asset %s: %w", assetID, storage.ErrNotFound)
	}
	return auc, nil
}

func (s *Store) PutBid(_ context.Context, bid market.Bid) (market.Bid, error) {
	if bid.AssetID == "" || bid.Bidder == "" {
		return market.Bid{}, fmt.Errorf("asset id and bidder required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bid.PlacedAt.IsZero() {
		bid.PlacedAt = time.Now().UTC()
	}

	entries := s.bids[bid.AssetID]
	for i, existing := range entries {
		if existing.Bidder == bid.Bidder {
			entries[i] = bid
			return bid, nil
		}
	}
	s.bids[bid.AssetID] = append(entries, bid)
	return bid, nil
}

func (s *Store) ListBids(_ context.Context, assetID string) ([]market.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.bids[assetID]
	result := make([]market.Bid, len(entries))
	copy(result, entries)
	return result, nil
}

func (s *Store) PutSaleRecord(_ context.Context, rec market.SaleRecord) (market.SaleRecord, error) {
	if rec.AssetID == "" {
		return market.SaleRecord{}, fmt.Errorf("asset id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.SoldAt.IsZero() {
		rec.SoldAt = time.Now().UTC()
	}
	s.sales[rec.AssetID] = rec
	return rec, nil
}

func (s *Store) GetSaleRecord(_ context.Context, assetID string) (market.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sales[assetID]
	if !ok {
		return market.SaleRecord{}, fmt.Errorf("sale record for asset %s: %w", assetID, storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) RegisterAsset(_ context.Context, assetID string) error {
	if assetID == "" {
		return fmt.Errorf("asset id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assetsKnown[assetID]; ok {
		return nil
	}
	s.assetsKnown[assetID] = struct{}{}
	s.assetOrder = append(s.assetOrder, assetID)
	return nil
}

func (s *Store) ListAssets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, len(s.assetOrder))
	copy(result, s.assetOrder)
	return result, nil
}
