package market

import (
	"context"
	"fmt"
	"time"

	"github.com/openasset/market-engine/internal/app/metrics"
)

// settle pairs the ownership transfer with the payment release. Ownership
// moves first; if it fails the operation aborts with no payment movement.
// If the payout to the seller then fails, the transfer is reverted by a
// compensating transfer so the operation nets to zero. When that revert also
// fails the asset stays with the buyer and the error carries errUnreverted:
// the caller must then leave the buyer's escrow in place. The buyer must hold
// amount in escrow for the asset before settle is invoked.
func (s *Service) settle(ctx context.Context, assetID, seller, buyer string, amount uint64) error {
	start := time.Now()
	err := s.settleOnce(ctx, assetID, seller, buyer, amount)
	metrics.RecordSettlement(time.Since(start), err)
	return err
}

func (s *Service) settleOnce(ctx context.Context, assetID, seller, buyer string, amount uint64) error {
	approved, err := s.registry.IsTransferApproved(ctx, seller, s.operator, assetID)
	if err != nil {
		return fmt.Errorf("approval check for asset %s: %w", assetID, err)
	}
	if !approved {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotApproved)
	}

	if err := s.registry.TransferOwnership(ctx, seller, buyer, assetID); err != nil {
		return classify(fmt.Errorf("transfer asset %s from %s to %s: %w", assetID, seller, buyer, err), ErrTransferDenied)
	}

	if err := s.custodian.PayOut(ctx, buyer, assetID, seller, amount); err != nil {
		if rerr := s.registry.TransferOwnership(ctx, buyer, seller, assetID); rerr != nil {
			s.log.WithError(rerr).
				WithField("asset_id", assetID).
				WithField("seller", seller).
				WithField("buyer", buyer).
				Error("compensating ownership revert failed; manual reconciliation required")
			return classify(fmt.Errorf("payout for asset %s failed and %w: %w", assetID, errUnreverted, err), ErrPayoutFailed)
		}
		return classify(fmt.Errorf("release payment for asset %s to %s: %w", assetID, seller, err), ErrPayoutFailed)
	}

	s.log.WithField("asset_id", assetID).
		WithField("seller", seller).
		WithField("buyer", buyer).
		WithField("amount", amount).
		Info("settlement complete")
	return nil
}
