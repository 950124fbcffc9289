package market

import (
	"errors"
	"fmt"
)

// Precondition failures surfaced by the engine. All are synchronous and
// non-retryable: the caller must correct the condition and resubmit. Every
// failed operation aborts with no state mutation and no net value movement.
var (
	ErrAssetNotFound       = errors.New("asset not found")
	ErrNotOwner            = errors.New("caller is not the asset owner")
	ErrAlreadyListed       = errors.New("asset already has an active listing")
	ErrAlreadyAuctioning   = errors.New("asset already has an active auction")
	ErrNotApproved         = errors.New("engine not approved to transfer asset")
	ErrNotListed           = errors.New("asset has no active listing")
	ErrNotSeller           = errors.New("caller is not the seller")
	ErrSellerCannotBuy     = errors.New("seller cannot buy their own listing")
	ErrInsufficientPayment = errors.New("payment below listing price")
	ErrAuctionNotActive    = errors.New("asset has no active auction")
	ErrAuctionEnded        = errors.New("auction has ended")
	ErrBidTooLow           = errors.New("bid does not exceed current high bid or meet starting price")
	ErrRepeatBidder        = errors.New("caller already holds the high bid")
	ErrNotAuthorized       = errors.New("caller is not authorized")
	ErrNoBids              = errors.New("auction has no bids")
	ErrTransferDenied      = errors.New("ownership transfer denied")
	ErrPayoutFailed        = errors.New("payout failed")
)

// errUnreverted marks the double-failure settlement outcome: the payout to
// the seller failed and the compensating ownership revert also failed, so the
// asset stayed with the buyer. Callers must keep the buyer's payment escrowed
// so the seller retains a claim to reconcile against.
var errUnreverted = errors.New("ownership revert failed")

// classify wraps err with sentinel unless err already carries it, so callers
// can always match the taxonomy with errors.Is even when a collaborator
// returns its own error type.
func classify(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
