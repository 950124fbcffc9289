package market

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openasset/market-engine/internal/app/events"
	"github.com/openasset/market-engine/internal/app/storage/memory"
	"github.com/openasset/market-engine/pkg/logger"
)

// fakeRegistry mimics an external title system. It returns plain errors, not
// the engine's sentinels, so the tests also cover error classification.
type fakeRegistry struct {
	owners       map[string]string
	approvals    map[string]map[string]bool
	transferErr  error
	failTransfer func(from, to string) bool
	transfers    int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		owners:    make(map[string]string),
		approvals: make(map[string]map[string]bool),
	}
}

func (r *fakeRegistry) mint(assetID, owner string) {
	r.owners[assetID] = owner
}

func (r *fakeRegistry) approve(operator, assetID string) {
	if r.approvals[assetID] == nil {
		r.approvals[assetID] = make(map[string]bool)
	}
	r.approvals[assetID][operator] = true
}

func (r *fakeRegistry) OwnerOf(_ context.Context, assetID string) (string, error) {
	owner, ok := r.owners[assetID]
	if !ok {
		return "", fmt.Errorf("unknown asset %s", assetID)
	}
	return owner, nil
}

func (r *fakeRegistry) IsTransferApproved(_ context.Context, owner, operator, assetID string) (bool, error) {
	if current, ok := r.owners[assetID]; !ok || current != owner {
		return false, nil
	}
	return r.approvals[assetID][operator], nil
}

func (r *fakeRegistry) TransferOwnership(_ context.Context, from, to, assetID string) error {
	if r.transferErr != nil {
		return r.transferErr
	}
	if r.failTransfer != nil && r.failTransfer(from, to) {
		return fmt.Errorf("transfer from %s to %s rejected", from, to)
	}
	if current, ok := r.owners[assetID]; !ok || current != from {
		return fmt.Errorf("%s does not own %s", from, assetID)
	}
	r.owners[assetID] = to
	delete(r.approvals, assetID)
	r.transfers++
	return nil
}

type payoutCall struct {
	holder    string
	assetID   string
	recipient string
	amount    uint64
}

// fakeCustodian mimics an external payment system with per-(holder, asset)
// escrow attribution. failPayout injects payout failures.
type fakeCustodian struct {
	mu         sync.Mutex
	balances   map[string]uint64
	escrow     map[string]uint64
	holdErr    error
	failPayout func(p payoutCall) bool
	payouts    []payoutCall
}

func newFakeCustodian() *fakeCustodian {
	return &fakeCustodian{
		balances: make(map[string]uint64),
		escrow:   make(map[string]uint64),
	}
}

func escrowRef(holder, assetID string) string { return holder + "/" + assetID }

func (c *fakeCustodian) deposit(holder string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[holder] += amount
}

func (c *fakeCustodian) Hold(_ context.Context, holder, assetID string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdErr != nil {
		return c.holdErr
	}
	if c.balances[holder] < amount {
		return fmt.Errorf("holder %s has %d, needs %d", holder, c.balances[holder], amount)
	}
	c.balances[holder] -= amount
	c.escrow[escrowRef(holder, assetID)] += amount
	return nil
}

func (c *fakeCustodian) PayOut(_ context.Context, holder, assetID, recipient string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := payoutCall{holder: holder, assetID: assetID, recipient: recipient, amount: amount}
	if c.failPayout != nil && c.failPayout(call) {
		return fmt.Errorf("payout rejected")
	}
	ref := escrowRef(holder, assetID)
	if c.escrow[ref] < amount {
		return fmt.Errorf("escrow %s holds %d, needs %d", ref, c.escrow[ref], amount)
	}
	c.escrow[ref] -= amount
	if c.escrow[ref] == 0 {
		delete(c.escrow, ref)
	}
	c.balances[recipient] += amount
	c.payouts = append(c.payouts, call)
	return nil
}

func (c *fakeCustodian) balance(holder string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[holder]
}

func (c *fakeCustodian) escrowed(holder, assetID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escrow[escrowRef(holder, assetID)]
}

func (c *fakeCustodian) escrowTotal() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, amount := range c.escrow {
		total += amount
	}
	return total
}

// refunds counts payouts that returned escrow to its own holder.
func (c *fakeCustodian) refunds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.payouts {
		if p.recipient == p.holder {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, opts ...Option) (*Service, *fakeRegistry, *fakeCustodian, *fakeClock) {
	t.Helper()
	reg := newFakeRegistry()
	cust := newFakeCustodian()
	clk := newFakeClock()
	opts = append([]Option{WithOperator("engine"), WithClock(clk.Now)}, opts...)
	svc := New(memory.New(), reg, cust, events.NewLog(64), logger.NewDefault("market-test"), opts...)
	return svc, reg, cust, clk
}

// mintApproved mints an asset and grants the engine transfer approval.
func mintApproved(reg *fakeRegistry, assetID, owner string) {
	reg.mint(assetID, owner)
	reg.approve("engine", assetID)
}

func lastEventType(svc *Service) events.Type {
	recent := svc.Events().Recent(1)
	if len(recent) == 0 {
		return ""
	}
	return recent[0].Type
}
