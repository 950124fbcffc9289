package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sell(t *testing.T, svc *Service, reg *fakeRegistry, cust *fakeCustodian, assetID, seller, buyer string, price uint64) {
	t.Helper()
	mintApproved(reg, assetID, seller)
	cust.deposit(buyer, price)
	_, err := svc.List(context.Background(), assetID, seller, price)
	require.NoError(t, err)
	_, err = svc.Buy(context.Background(), assetID, buyer, price)
	require.NoError(t, err)
}

func TestSalePricesExcludeUnsoldAssets(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()

	prices, err := svc.SalePrices(ctx)
	require.NoError(t, err)
	assert.Empty(t, prices)

	sell(t, svc, reg, cust, "asset-1", "alice", "bob", 100)

	// Listed but never sold; must not appear.
	mintApproved(reg, "asset-2", "alice")
	_, err = svc.List(ctx, "asset-2", "alice", 500)
	require.NoError(t, err)

	prices, err = svc.SalePrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "asset-1", prices[0].AssetID)
	assert.Equal(t, uint64(100), prices[0].Price)
}

func TestSalePricesSortedAscending(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()

	sell(t, svc, reg, cust, "asset-1", "alice", "bob", 300)
	sell(t, svc, reg, cust, "asset-2", "alice", "carol", 100)
	sell(t, svc, reg, cust, "asset-3", "alice", "dave", 200)

	prices, err := svc.SalePrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, []uint64{100, 200, 300}, []uint64{prices[0].Price, prices[1].Price, prices[2].Price})
}

func TestSalePricesTieBreakByRegistrationOrder(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()

	sell(t, svc, reg, cust, "asset-c", "alice", "bob", 50)
	sell(t, svc, reg, cust, "asset-a", "alice", "carol", 50)
	sell(t, svc, reg, cust, "asset-b", "alice", "dave", 50)

	prices, err := svc.SalePrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, "asset-c", prices[0].AssetID)
	assert.Equal(t, "asset-a", prices[1].AssetID)
	assert.Equal(t, "asset-b", prices[2].AssetID)
}

func TestResaleReplacesRecordedPrice(t *testing.T) {
	svc, reg, cust, _ := newTestEngine(t)
	ctx := context.Background()

	sell(t, svc, reg, cust, "asset-1", "alice", "bob", 100)

	// bob resells; only the latest realized price is reported.
	reg.approve("engine", "asset-1")
	cust.deposit("carol", 250)
	_, err := svc.List(ctx, "asset-1", "bob", 250)
	require.NoError(t, err)
	_, err = svc.Buy(ctx, "asset-1", "carol", 250)
	require.NoError(t, err)

	prices, err := svc.SalePrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, uint64(250), prices[0].Price)
}
