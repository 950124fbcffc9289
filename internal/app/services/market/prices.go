package market

import (
	"context"
	"errors"
	"sort"

	"github.com/openasset/market-engine/internal/app/domain/market"
	"github.com/openasset/market-engine/internal/app/storage"
)

// SalePrices returns every realized sale price, sorted ascending by price.
// Assets that never sold are excluded. Equal prices keep asset registration
// order, so the result is deterministic. Read-only; does not take the
// execution lock.
func (s *Service) SalePrices(ctx context.Context) ([]market.SaleRecord, error) {
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}

	var result []market.SaleRecord
	for _, assetID := range assets {
		rec, err := s.store.GetSaleRecord(ctx, assetID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Price == 0 {
			continue
		}
		result = append(result, rec)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Price < result[j].Price
	})
	return result, nil
}
