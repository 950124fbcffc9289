// Package market implements the custody-and-matching engine for unique
// assets: fixed-price listings, time-boxed ascending auctions, bid escrow
// rotation, and atomic settlement of asset transfer against payment release.
//
// Every state-mutating entry point runs under a single non-reentrant
// execution lock. While one operation is in flight no other mutating
// operation may begin, even on a different asset; this rules out all forms
// of reentrancy, including escrow-refund reentrancy during a bid. Price
// queries are read-only and bypass the lock.
package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openasset/market-engine/internal/app/domain/market"
	"github.com/openasset/market-engine/internal/app/events"
	"github.com/openasset/market-engine/internal/app/metrics"
	"github.com/openasset/market-engine/internal/app/storage"
	"github.com/openasset/market-engine/pkg/logger"
)

// AssetRegistry is the source of truth for asset ownership and transfer
// permission. The engine never assumes ownership state; it asks the registry
// on every operation.
type AssetRegistry interface {
	// OwnerOf returns the current owner of an asset. A lookup failure means
	// the asset does not exist from the engine's point of view.
	OwnerOf(ctx context.Context, assetID string) (string, error)

	// IsTransferApproved reports whether operator may move the asset on the
	// owner's behalf.
	IsTransferApproved(ctx context.Context, owner, operator, assetID string) (bool, error)

	// TransferOwnership moves the asset from its current owner to a new one.
	TransferOwnership(ctx context.Context, from, to, assetID string) error
}

// ValueCustodian moves settlement value. Escrow is attributed per
// (holder, asset) so a failed payout never loses value: the amount stays
// attributable to its holder for later retry.
type ValueCustodian interface {
	// Hold takes amount from holder's funds into escrow for assetID.
	Hold(ctx context.Context, holder, assetID string, amount uint64) error

	// PayOut releases amount of the escrow attributed to (holder, assetID)
	// to recipient. On failure nothing moves.
	PayOut(ctx context.Context, holder, assetID, recipient string, amount uint64) error
}

// Service is the marketplace engine.
type Service struct {
	store     storage.MarketStore
	registry  AssetRegistry
	custodian ValueCustodian
	events    *events.Log
	log       *logger.Logger

	operator string
	now      func() time.Time

	// mu is the global execution lock. It guards every mutating operation
	// across all assets, not per asset.
	mu sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithOperator sets the identity the engine presents to the asset registry
// for approval checks.
func WithOperator(operator string) Option {
	return func(s *Service) {
		if trimmed := strings.TrimSpace(operator); trimmed != "" {
			s.operator = trimmed
		}
	}
}

// WithClock overrides the engine's time source. Used by tests to drive
// auction expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the marketplace engine.
func New(store storage.MarketStore, registry AssetRegistry, custodian ValueCustodian, eventLog *events.Log, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("market")
	}
	if eventLog == nil {
		eventLog = events.NewLog(0)
	}
	s := &Service{
		store:     store,
		registry:  registry,
		custodian: custodian,
		events:    eventLog,
		log:       log,
		operator:  "marketd",
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Operator returns the identity the engine uses for approval checks. Owners
// must grant this identity transfer approval before listing or auctioning.
func (s *Service) Operator() string { return s.operator }

// Events returns the engine's observable event log.
func (s *Service) Events() *events.Log { return s.events }

// normalizeIDs trims the caller-supplied identifiers every entry point
// receives, so a whitespace variant of an identity or asset id cannot act as
// a distinct principal in ownership and seller checks.
func normalizeIDs(assetID, caller string) (string, string, error) {
	assetID = strings.TrimSpace(assetID)
	caller = strings.TrimSpace(caller)
	if assetID == "" || caller == "" {
		return "", "", fmt.Errorf("asset id and caller are required")
	}
	return assetID, caller, nil
}

// List creates a fixed-price listing for an asset owned by caller.
func (s *Service) List(ctx context.Context, assetID, caller string, price uint64) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lst, err := s.list(ctx, assetID, caller, price)
	metrics.RecordOperation("list", err)
	return lst, err
}

func (s *Service) list(ctx context.Context, assetID, caller string, price uint64) (market.Listing, error) {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return market.Listing{}, err
	}
	if price == 0 {
		return market.Listing{}, fmt.Errorf("price must be positive")
	}

	owner, err := s.registry.OwnerOf(ctx, assetID)
	if err != nil {
		return market.Listing{}, classify(fmt.Errorf("asset %s: %w", assetID, err), ErrAssetNotFound)
	}
	if owner != caller {
		return market.Listing{}, fmt.Errorf("asset %s: %w", assetID, ErrNotOwner)
	}

	if err := s.requireIdle(ctx, assetID); err != nil {
		return market.Listing{}, err
	}

	approved, err := s.registry.IsTransferApproved(ctx, owner, s.operator, assetID)
	if err != nil {
		return market.Listing{}, fmt.Errorf("approval check for asset %s: %w", assetID, err)
	}
	if !approved {
		return market.Listing{}, fmt.Errorf("asset %s: %w", assetID, ErrNotApproved)
	}

	lst, err := s.store.PutListing(ctx, market.Listing{
		AssetID: assetID,
		Seller:  caller,
		Price:   price,
		Active:  true,
	})
	if err != nil {
		return market.Listing{}, err
	}
	if err := s.store.RegisterAsset(ctx, assetID); err != nil {
		return market.Listing{}, err
	}

	s.events.Emit(events.Event{Type: events.TypeListed, AssetID: assetID, Actor: caller, Amount: price})
	s.log.WithField("asset_id", assetID).
		WithField("seller", caller).
		WithField("price", price).
		Info("asset listed")
	return lst, nil
}

// Unlist withdraws the caller's active listing.
func (s *Service) Unlist(ctx context.Context, assetID, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.unlist(ctx, assetID, caller)
	metrics.RecordOperation("unlist", err)
	return err
}

func (s *Service) unlist(ctx context.Context, assetID, caller string) error {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return err
	}

	lst, ok, err := s.activeListing(ctx, assetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotListed)
	}
	if lst.Seller != caller {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotSeller)
	}

	lst.Active = false
	if _, err := s.store.PutListing(ctx, lst); err != nil {
		return err
	}

	s.events.Emit(events.Event{Type: events.TypeUnlisted, AssetID: assetID})
	s.log.WithField("asset_id", assetID).Info("asset unlisted")
	return nil
}

// Buy executes a purchase against an active listing. The listing price is
// released to the seller; any excess payment is returned to the buyer.
func (s *Service) Buy(ctx context.Context, assetID, caller string, payment uint64) (market.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.buy(ctx, assetID, caller, payment)
	metrics.RecordOperation("buy", err)
	return rec, err
}

func (s *Service) buy(ctx context.Context, assetID, caller string, payment uint64) (market.SaleRecord, error) {
	assetID, caller, err := normalizeIDs(assetID, caller)
	if err != nil {
		return market.SaleRecord{}, err
	}

	lst, ok, err := s.activeListing(ctx, assetID)
	if err != nil {
		return market.SaleRecord{}, err
	}
	if !ok {
		return market.SaleRecord{}, fmt.Errorf("asset %s: %w", assetID, ErrNotListed)
	}
	if caller == lst.Seller {
		return market.SaleRecord{}, fmt.Errorf("asset %s: %w", assetID, ErrSellerCannotBuy)
	}
	if payment < lst.Price {
		return market.SaleRecord{}, fmt.Errorf("asset %s: payment %d below price %d: %w", assetID, payment, lst.Price, ErrInsufficientPayment)
	}

	if err := s.custodian.Hold(ctx, caller, assetID, payment); err != nil {
		return market.SaleRecord{}, fmt.Errorf("take payment into escrow for asset %s: %w", assetID, err)
	}

	if err := s.settle(ctx, assetID, lst.Seller, caller, lst.Price); err != nil {
		if errors.Is(err, errUnreverted) {
			// The buyer kept the asset. Returning the payment here would hand
			// them both sides of the trade; the escrow stays in place as the
			// seller's claim until reconciliation.
			s.log.WithField("asset_id", assetID).WithField("buyer", caller).
				Error("settlement unreverted; payment remains escrowed for reconciliation")
			return market.SaleRecord{}, err
		}
		if rerr := s.custodian.PayOut(ctx, caller, assetID, caller, payment); rerr != nil {
			s.log.WithError(rerr).WithField("asset_id", assetID).
				Error("returning payment after failed settlement; funds remain escrowed for buyer")
		}
		return market.SaleRecord{}, err
	}

	if excess := payment - lst.Price; excess > 0 {
		if err := s.custodian.PayOut(ctx, caller, assetID, caller, excess); err != nil {
			// Sale already settled; change stays attributable to the buyer.
			s.log.WithError(err).WithField("asset_id", assetID).
				Warn("returning change failed; excess remains escrowed for buyer")
		}
	}

	lst.Active = false
	if _, err := s.store.PutListing(ctx, lst); err != nil {
		return market.SaleRecord{}, err
	}
	rec, err := s.store.PutSaleRecord(ctx, market.SaleRecord{AssetID: assetID, Price: lst.Price, SoldAt: s.now()})
	if err != nil {
		return market.SaleRecord{}, err
	}

	s.events.Emit(events.Event{Type: events.TypePurchased, AssetID: assetID, Actor: caller, Amount: lst.Price})
	s.log.WithField("asset_id", assetID).
		WithField("buyer", caller).
		WithField("price", lst.Price).
		Info("asset purchased")
	return rec, nil
}

// Listing returns the listing record for an asset, active or not.
func (s *Service) Listing(ctx context.Context, assetID string) (market.Listing, error) {
	return s.store.GetListing(ctx, assetID)
}

// Auction returns the auction record for an asset, active or not.
func (s *Service) Auction(ctx context.Context, assetID string) (market.Auction, error) {
	return s.store.GetAuction(ctx, assetID)
}

// Bids returns the bid ledger for an asset.
func (s *Service) Bids(ctx context.Context, assetID string) ([]market.Bid, error) {
	return s.store.ListBids(ctx, assetID)
}

// requireIdle verifies the asset has neither an active listing nor an active
// auction.
func (s *Service) requireIdle(ctx context.Context, assetID string) error {
	if _, ok, err := s.activeListing(ctx, assetID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrAlreadyListed)
	}
	if _, ok, err := s.activeAuction(ctx, assetID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrAlreadyAuctioning)
	}
	return nil
}

func (s *Service) activeListing(ctx context.Context, assetID string) (market.Listing, bool, error) {
	lst, err := s.store.GetListing(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return market.Listing{}, false, nil
	}
	if err != nil {
		return market.Listing{}, false, err
	}
	return lst, lst.Active, nil
}

func (s *Service) activeAuction(ctx context.Context, assetID string) (market.Auction, bool, error) {
	auc, err := s.store.GetAuction(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return market.Auction{}, false, nil
	}
	if err != nil {
		return market.Auction{}, false, err
	}
	return auc, auc.Active, nil
}
