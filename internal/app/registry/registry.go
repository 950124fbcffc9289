// Package registry provides an in-process asset registry: the source of
// truth for asset ownership and transfer approvals. It satisfies the
// engine's AssetRegistry contract; deployments integrating an external title
// system substitute their own implementation.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openasset/market-engine/internal/app/services/market"
	"github.com/openasset/market-engine/pkg/logger"
)

// Ledger tracks asset ownership and per-asset operator approvals.
type Ledger struct {
	mu        sync.RWMutex
	owners    map[string]string
	approvals map[string]map[string]bool // assetID -> operator -> approved
	log       *logger.Logger
}

var _ market.AssetRegistry = (*Ledger)(nil)

// New creates an empty registry.
func New(log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Ledger{
		owners:    make(map[string]string),
		approvals: make(map[string]map[string]bool),
		log:       log,
	}
}

// Mint records a new asset with its initial owner.
func (l *Ledger) Mint(assetID, owner string) error {
	assetID = strings.TrimSpace(assetID)
	owner = strings.TrimSpace(owner)
	if assetID == "" || owner == "" {
		return fmt.Errorf("asset id and owner are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.owners[assetID]; exists {
		return fmt.Errorf("asset %s already minted", assetID)
	}
	l.owners[assetID] = owner
	l.log.WithField("asset_id", assetID).WithField("owner", owner).Info("asset minted")
	return nil
}

// SetTransferApproval grants or revokes an operator's permission to move the
// asset. Only the current owner may change approvals.
func (l *Ledger) SetTransferApproval(owner, operator, assetID string, approved bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, exists := l.owners[assetID]
	if !exists {
		return fmt.Errorf("asset %s: %w", assetID, market.ErrAssetNotFound)
	}
	if current != owner {
		return fmt.Errorf("asset %s: %w", assetID, market.ErrNotOwner)
	}

	if approved {
		if l.approvals[assetID] == nil {
			l.approvals[assetID] = make(map[string]bool)
		}
		l.approvals[assetID][operator] = true
	} else {
		delete(l.approvals[assetID], operator)
	}
	return nil
}

// OwnerOf returns the current owner of an asset.
func (l *Ledger) OwnerOf(_ context.Context, assetID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owner, exists := l.owners[assetID]
	if !exists {
		return "", fmt.Errorf("asset %s: %w", assetID, market.ErrAssetNotFound)
	}
	return owner, nil
}

// IsTransferApproved reports whether operator may move the asset on the
// owner's behalf.
func (l *Ledger) IsTransferApproved(_ context.Context, owner, operator, assetID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	current, exists := l.owners[assetID]
	if !exists {
		return false, fmt.Errorf("asset %s: %w", assetID, market.ErrAssetNotFound)
	}
	if current != owner {
		return false, nil
	}
	return l.approvals[assetID][operator], nil
}

// TransferOwnership moves an asset to a new owner. Approvals for the asset
// are cleared on transfer.
func (l *Ledger) TransferOwnership(_ context.Context, from, to, assetID string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("asset %s: empty recipient: %w", assetID, market.ErrTransferDenied)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, exists := l.owners[assetID]
	if !exists {
		return fmt.Errorf("asset %s: %w", assetID, market.ErrAssetNotFound)
	}
	if current != from {
		return fmt.Errorf("asset %s owned by %s, not %s: %w", assetID, current, from, market.ErrTransferDenied)
	}

	l.owners[assetID] = to
	delete(l.approvals, assetID)
	l.log.WithField("asset_id", assetID).
		WithField("from", from).
		WithField("to", to).
		Info("ownership transferred")
	return nil
}
