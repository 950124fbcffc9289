// Package custodian provides an in-process value custodian: a balance
// ledger with per-(holder, asset) escrow attribution. It satisfies the
// engine's ValueCustodian contract; deployments integrating an external
// payment system substitute their own implementation.
package custodian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openasset/market-engine/internal/app/services/market"
	"github.com/openasset/market-engine/pkg/logger"
)

// ErrInsufficientFunds is returned when a holder lacks the free balance for
// an escrow hold.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger tracks free balances and escrowed amounts. A failed payout moves
// nothing: escrow stays attributable to its holder.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	escrow   map[escrowKey]uint64
	log      *logger.Logger
}

type escrowKey struct {
	holder  string
	assetID string
}

var _ market.ValueCustodian = (*Ledger)(nil)

// New creates an empty ledger.
func New(log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewDefault("custodian")
	}
	return &Ledger{
		balances: make(map[string]uint64),
		escrow:   make(map[escrowKey]uint64),
		log:      log,
	}
}

// Deposit credits a holder's free balance.
func (l *Ledger) Deposit(holder string, amount uint64) error {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return fmt.Errorf("holder is required")
	}
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[holder] += amount
	return nil
}

// Hold moves amount of holder's free balance into escrow for assetID.
func (l *Ledger) Hold(_ context.Context, holder, assetID string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[holder] < amount {
		return fmt.Errorf("holder %s has %d, needs %d: %w", holder, l.balances[holder], amount, ErrInsufficientFunds)
	}
	l.balances[holder] -= amount
	l.escrow[escrowKey{holder, assetID}] += amount
	return nil
}

// PayOut releases amount of the escrow attributed to (holder, assetID) to
// recipient's free balance. On failure nothing moves.
func (l *Ledger) PayOut(_ context.Context, holder, assetID, recipient string, amount uint64) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := escrowKey{holder, assetID}
	held := l.escrow[key]
	if held < amount {
		return fmt.Errorf("escrow for %s/%s holds %d, needs %d", holder, assetID, held, amount)
	}

	if held == amount {
		delete(l.escrow, key)
	} else {
		l.escrow[key] = held - amount
	}
	l.balances[recipient] += amount

	l.log.WithField("holder", holder).
		WithField("asset_id", assetID).
		WithField("recipient", recipient).
		WithField("amount", amount).
		Debug("escrow released")
	return nil
}

// Balance returns a holder's free balance.
func (l *Ledger) Balance(holder string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[holder]
}

// Escrowed returns the amount held in escrow for (holder, assetID).
func (l *Ledger) Escrowed(holder, assetID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.escrow[escrowKey{holder, assetID}]
}

// EscrowTotalFor returns the sum of a holder's escrowed value across assets.
func (l *Ledger) EscrowTotalFor(holder string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for key, amount := range l.escrow {
		if key.holder == holder {
			total += amount
		}
	}
	return total
}

// EscrowTotal returns the sum of all escrowed value.
func (l *Ledger) EscrowTotal() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, amount := range l.escrow {
		total += amount
	}
	return total
}
