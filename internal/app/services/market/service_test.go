package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openasset/market-engine/internal/app/events"
	"github.com/openasset/market-engine/internal/app/storage"
)

func TestListRequiresOwnership(t *testing.T) {
	svc, reg, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	mintApproved(reg, "asset-1", "alice")
	_, err = svc.List(ctx, "asset-1", "bob", 100)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestListRequiresApproval(t *testing.T) {
	svc, reg, _, _ := newTestEngine(t)
	ctx := context.Background()

	reg.mint("asset-1", "alice")
	_, err := svc.List(ctx, "asset-1", "alice", 100)
	assert.ErrorIs(t, err, ErrNotApproved)

	reg.approve("engine", "asset-1")
	lst, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, "alice", lst.Seller)
	assert.Equal(t, uint64(100), lst.Price)
	assert.True(t, lst.Active)
	assert.Equal(t, events.TypeListed, lastEventType(svc))
}

func TestListRejectsCompetingSaleModes(t *testing.T) {
	svc, reg, _, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	mintApproved(reg, "asset-2", "alice")

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.List(ctx, "asset-1", "alice", 150)
	assert.ErrorIs(t, err, ErrAlreadyListed)
	_, err = svc.StartAuction(ctx, "asset-1", "alice", 10, time.Hour)
	assert.ErrorIs(t, err, ErrAlreadyListed)

	_, err = svc.StartAuction(ctx, "asset-2", "alice", 10, time.Hour)
	require.NoError(t, err)
	_, err = svc.List(ctx, "asset-2", "alice", 100)
	assert.ErrorIs(t, err, ErrAlreadyAuctioning)
}

func TestUnlistLifecycle(t *testing.T) {
	svc, reg, _, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")

	assert.ErrorIs(t, svc.Unlist(ctx, "asset-1", "alice"), ErrNotListed)

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Unlist(ctx, "asset-1", "bob"), ErrNotSeller)

	require.NoError(t, svc.Unlist(ctx, "asset-1", "alice"))
	assert.Equal(t, events.TypeUnlisted, lastEventType(svc))

	// Deactivation is not repeatable.
	assert.ErrorIs(t, svc.Unlist(ctx, "asset-1", "alice"), ErrNotListed)

	// The asset returns to the idle state and can be listed again.
	_, err = svc.List(ctx, "asset-1", "alice", 200)
	require.NoError(t, err)
}

func TestBuyTransfersAssetAndPayment(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 100)

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)

	rec, err := svc.Buy(ctx, "asset-1", "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rec.Price)

	owner, err := reg.OwnerOf(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, uint64(100), cust.balance("alice"))
	assert.Equal(t, uint64(0), cust.balance("bob"))
	assert.Equal(t, uint64(0), cust.escrowTotal())

	lst, err := svc.Listing(ctx, "asset-1")
	require.NoError(t, err)
	assert.False(t, lst.Active)
	assert.Equal(t, events.TypePurchased, lastEventType(svc))
}

func TestBuyReturnsOverpaymentAsChange(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 120)

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)

	// The sale settles at the list price, not the payment tendered.
	rec, err := svc.Buy(ctx, "asset-1", "bob", 120)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rec.Price)

	assert.Equal(t, uint64(100), cust.balance("alice"))
	assert.Equal(t, uint64(20), cust.balance("bob"))
	assert.Equal(t, uint64(0), cust.escrowTotal())
}

func TestBuyValidation(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 200)

	_, err := svc.Buy(ctx, "asset-1", "bob", 100)
	assert.ErrorIs(t, err, ErrNotListed)

	_, err = svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.Buy(ctx, "asset-1", "alice", 100)
	assert.ErrorIs(t, err, ErrSellerCannotBuy)
	_, err = svc.Buy(ctx, "asset-1", "bob", 99)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	// Failed attempts leave the listing and the buyer's funds untouched.
	lst, err := svc.Listing(ctx, "asset-1")
	require.NoError(t, err)
	assert.True(t, lst.Active)
	assert.Equal(t, uint64(200), cust.balance("bob"))
}

func TestBuyAbortsWhenTransferDenied(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 100)

	_, err := svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)
	reg.transferErr = errors.New("title system offline")

	_, err = svc.Buy(ctx, "asset-1", "bob", 100)
	assert.ErrorIs(t, err, ErrTransferDenied)

	// Ownership is unchanged, the payment returned, and the listing live.
	owner, regErr := reg.OwnerOf(ctx, "asset-1")
	require.NoError(t, regErr)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, uint64(100), cust.balance("bob"))
	assert.Equal(t, uint64(0), cust.escrowTotal())

	lst, err := svc.Listing(ctx, "asset-1")
	require.NoError(t, err)
	assert.True(t, lst.Active)

	_, err = svc.store.GetSaleRecord(ctx, "asset-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIdentifiersTrimmedAtEveryEntryPoint(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 100)

	_, err := svc.List(ctx, " asset-1 ", " alice ", 100)
	require.NoError(t, err)

	// A padded seller identity is the seller, not a third party.
	_, err = svc.Buy(ctx, "asset-1", " alice ", 100)
	assert.ErrorIs(t, err, ErrSellerCannotBuy)
	err = svc.Unlist(ctx, " asset-1 ", " alice ")
	require.NoError(t, err)

	_, err = svc.List(ctx, "asset-1", "alice", 100)
	require.NoError(t, err)

	// A padded buyer settles as the plain identity: escrow, ownership, and
	// change all land on the trimmed name.
	_, err = svc.Buy(ctx, " asset-1 ", " bob ", 100)
	require.NoError(t, err)
	owner, regErr := reg.OwnerOf(ctx, "asset-1")
	require.NoError(t, regErr)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, uint64(100), cust.balance("alice"))
	assert.Equal(t, uint64(0), cust.escrowTotal())

	_, err = svc.Buy(ctx, "asset-1", "   ", 100)
	assert.Error(t, err)
}

func TestAuctionIdentifiersTrimmed(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()
	mintApproved(reg, "asset-1", "alice")
	cust.deposit("bob", 20)

	_, err := svc.StartAuction(ctx, " asset-1 ", " alice ", 10, time.Hour)
	require.NoError(t, err)

	auc, err := svc.PlaceBid(ctx, " asset-1 ", " bob ", 20)
	require.NoError(t, err)
	assert.Equal(t, "bob", auc.HighestBidder)
	assert.Equal(t, uint64(20), cust.escrowed("bob", "asset-1"))

	// The padded bidder is still the standing high bidder.
	cust.deposit("bob", 30)
	_, err = svc.PlaceBid(ctx, "asset-1", " bob ", 30)
	assert.ErrorIs(t, err, ErrRepeatBidder)

	_, err = svc.EndAuction(ctx, " asset-1 ", " alice ")
	require.NoError(t, err)
	owner, regErr := reg.OwnerOf(ctx, "asset-1")
	require.NoError(t, regErr)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, uint64(20), cust.balance("alice"))
}
