package market

import (
	"context"
	"fmt"
	"time"

	"github.com/openasset/market-engine/internal/app/domain/market"
	"github.com/openasset/market-engine/internal/app/events"
	"github.com/openasset/market-engine/internal/app/metrics"
)

// StartAuction opens a time-boxed ascending auction for an asset owned by
// caller. Expiry is lazy: the end time is only checked when a later bid or
// finalization call observes it, never by a background timer.
func (s *Service) StartAuction(ctx context.Context, assetID, caller string, startingPrice uint64, duration time.Duration) (market.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auc, err := s.startAuction(ctx, assetID, caller, startingPrice, duration)
	metrics.RecordOperation("start_auction", err)
	return auc, err
}

func (s *Service) startAuction(ctx context.Context, assetID, caller string, startingPrice uint64, duration time.Duration) (market.Auction, error) {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return market.Auction{}, err
	}
	if startingPrice == 0 {
		return market.Auction{}, fmt.Errorf("starting price must be positive")
	}
	if duration <= 0 {
		return market.Auction{}, fmt.Errorf("duration must be positive")
	}

	owner, err := s.registry.OwnerOf(ctx, assetID)
	if err != nil {
		return market.Auction{}, classify(fmt.Errorf("asset %s: %w", assetID, err), ErrAssetNotFound)
	}
	if owner != caller {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrNotOwner)
	}

	if err := s.requireIdle(ctx, assetID); err != nil {
		return market.Auction{}, err
	}

	approved, err := s.registry.IsTransferApproved(ctx, owner, s.operator, assetID)
	if err != nil {
		return market.Auction{}, fmt.Errorf("approval check for asset %s: %w", assetID, err)
	}
	if !approved {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrNotApproved)
	}

	auc, err := s.store.PutAuction(ctx, market.Auction{
		AssetID:       assetID,
		Seller:        caller,
		StartingPrice: startingPrice,
		EndTime:       s.now().Add(duration),
		Active:        true,
	})
	if err != nil {
		return market.Auction{}, err
	}
	if err := s.store.RegisterAsset(ctx, assetID); err != nil {
		return market.Auction{}, err
	}

	s.events.Emit(events.Event{
		Type:    events.TypeAuctionStarted,
		AssetID: assetID,
		Actor:   caller,
		Amount:  startingPrice,
		EndTime: auc.EndTime,
	})
	s.log.WithField("asset_id", assetID).
		WithField("seller", caller).
		WithField("starting_price", startingPrice).
		WithField("end_time", auc.EndTime).
		Info("auction started")
	return auc, nil
}

// PlaceBid records a new high bid. The previous high bidder's escrow is
// refunded before the replacement bid is recorded; if that refund fails the
// incoming bid is aborted and prior state stands.
func (s *Service) PlaceBid(ctx context.Context, assetID, caller string, amount uint64) (market.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auc, err := s.placeBid(ctx, assetID, caller, amount)
	metrics.RecordOperation("bid", err)
	return auc, err
}

func (s *Service) placeBid(ctx context.Context, assetID, caller string, amount uint64) (market.Auction, error) {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return market.Auction{}, err
	}

	auc, ok, err := s.activeAuction(ctx, assetID)
	if err != nil {
		return market.Auction{}, err
	}
	if !ok {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrAuctionNotActive)
	}
	if auc.Expired(s.now()) {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrAuctionEnded)
	}
	if _, listed, err := s.activeListing(ctx, assetID); err != nil {
		return market.Auction{}, err
	} else if listed {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrAlreadyListed)
	}
	if amount <= auc.HighestBid || amount < auc.StartingPrice {
		return market.Auction{}, fmt.Errorf("asset %s: bid %d (high %d, start %d): %w", assetID, amount, auc.HighestBid, auc.StartingPrice, ErrBidTooLow)
	}
	if caller == auc.HighestBidder {
		return market.Auction{}, fmt.Errorf("asset %s: %w", assetID, ErrRepeatBidder)
	}

	if err := s.custodian.Hold(ctx, caller, assetID, amount); err != nil {
		return market.Auction{}, fmt.Errorf("take bid into escrow for asset %s: %w", assetID, err)
	}

	if auc.HasBids() {
		if err := s.custodian.PayOut(ctx, auc.HighestBidder, assetID, auc.HighestBidder, auc.HighestBid); err != nil {
			if rerr := s.custodian.PayOut(ctx, caller, assetID, caller, amount); rerr != nil {
				s.log.WithError(rerr).WithField("asset_id", assetID).
					Error("releasing aborted bid after failed refund; funds remain escrowed for bidder")
			}
			return market.Auction{}, classify(fmt.Errorf("refund displaced bidder %s for asset %s: %w", auc.HighestBidder, assetID, err), ErrPayoutFailed)
		}
		metrics.RecordRefund()
	}

	auc.HighestBidder = caller
	auc.HighestBid = amount
	auc, err = s.store.PutAuction(ctx, auc)
	if err != nil {
		return market.Auction{}, err
	}
	if _, err := s.store.PutBid(ctx, market.Bid{AssetID: assetID, Bidder: caller, Amount: amount, PlacedAt: s.now()}); err != nil {
		return market.Auction{}, err
	}

	metrics.RecordBidAccepted()
	s.events.Emit(events.Event{Type: events.TypeNewBid, AssetID: assetID, Actor: caller, Amount: amount})
	s.log.WithField("asset_id", assetID).
		WithField("bidder", caller).
		WithField("amount", amount).
		Info("bid accepted")
	return auc, nil
}

// EndAuction finalizes an auction: the asset moves to the highest bidder and
// their escrowed bid is released to the seller. Only the seller may finalize,
// and only once at least one bid exists.
func (s *Service) EndAuction(ctx context.Context, assetID, caller string) (market.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.endAuction(ctx, assetID, caller)
	metrics.RecordOperation("end_auction", err)
	return rec, err
}

func (s *Service) endAuction(ctx context.Context, assetID, caller string) (market.SaleRecord, error) {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return market.SaleRecord{}, err
	}

	auc, ok, err := s.activeAuction(ctx, assetID)
	if err != nil {
		return market.SaleRecord{}, err
	}
	if !ok {
		return market.SaleRecord{}, fmt.Errorf("asset %s: %w", assetID, ErrAuctionNotActive)
	}
	if caller != auc.Seller {
		return market.SaleRecord{}, fmt.Errorf("asset %s: %w", assetID, ErrNotAuthorized)
	}
	if !auc.HasBids() {
		return market.SaleRecord{}, fmt.Errorf("asset %s: %w", assetID, ErrNoBids)
	}

	if err := s.settle(ctx, assetID, auc.Seller, auc.HighestBidder, auc.HighestBid); err != nil {
		return market.SaleRecord{}, err
	}

	auc.Active = false
	if _, err := s.store.PutAuction(ctx, auc); err != nil {
		return market.SaleRecord{}, err
	}
	rec, err := s.store.PutSaleRecord(ctx, market.SaleRecord{AssetID: assetID, Price: auc.HighestBid, SoldAt: s.now()})
	if err != nil {
		return market.SaleRecord{}, err
	}

	s.events.Emit(events.Event{Type: events.TypeAuctionEnded, AssetID: assetID, Actor: auc.HighestBidder, Amount: auc.HighestBid})
	s.log.WithField("asset_id", assetID).
		WithField("winner", auc.HighestBidder).
		WithField("final_bid", auc.HighestBid).
		Info("auction ended")
	return rec, nil
}

// CancelAuction withdraws an auction. Any escrowed high bid is refunded to
// its bidder first; if the refund fails the auction stays active. No sale
// price is recorded.
func (s *Service) CancelAuction(ctx context.Context, assetID, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cancelAuction(ctx, assetID, caller)
	metrics.RecordOperation("cancel_auction", err)
	return err
}

func (s *Service) cancelAuction(ctx context.Context, assetID, caller string) error {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return err
	}

	auc, ok, err := s.activeAuction(ctx, assetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrAuctionNotActive)
	}
	if caller != auc.Seller {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotAuthorized)
	}

	if auc.HasBids() {
		if err := s.custodian.PayOut(ctx, auc.HighestBidder, assetID, auc.HighestBidder, auc.HighestBid); err != nil {
			return classify(fmt.Errorf("refund bidder %s for asset %s: %w", auc.HighestBidder, assetID, err), ErrPayoutFailed)
		}
		metrics.RecordRefund()
	}

	auc.Active = false
	if _, err := s.store.PutAuction(ctx, auc); err != nil {
		return err
	}

	s.events.Emit(events.Event{Type: events.TypeAuctionCancelled, AssetID: assetID})
	s.log.WithField("asset_id", assetID).Info("auction cancelled")
	return nil
}
