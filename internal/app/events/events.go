// Package events provides the observable event log of the marketplace
// engine. Every state transition that external parties care about (listing,
// sale, auction lifecycle, bids) is recorded here and fanned out to
// subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a market event.
type Type string

const (
	TypeListed           Type = "market.listed"
	TypeUnlisted         Type = "market.unlisted"
	TypePurchased        Type = "market.purchased"
	TypeAuctionStarted   Type = "market.auction_started"
	TypeNewBid           Type = "market.new_bid"
	TypeAuctionEnded     Type = "market.auction_ended"
	TypeAuctionCancelled Type = "market.auction_cancelled"
)

// Event is a single observable market occurrence.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	AssetID   string    `json:"asset_id"`
	Actor     string    `json:"actor,omitempty"`  // seller, buyer, bidder, or winner
	Amount    uint64    `json:"amount,omitempty"` // price, payment, or bid
	EndTime   time.Time `json:"end_time,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes events as they occur.
type Handler func(Event)

// Log is a thread-safe circular buffer of market events with subscriber
// fan-out.
type Log struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

// NewLog creates an event log holding up to size events.
func NewLog(size int) *Log {
	if size <= 0 {
		size = 1000
	}
	return &Log{
		events: make([]Event, size),
		size:   size,
	}
}

// Emit records an event and notifies subscribers.
func (l *Log) Emit(event Event) {
	l.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	l.events[l.head] = event
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}

	handlers := make([]handlerEntry, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		h.handler(event)
	}
}

// Subscribe registers a handler for all events and returns an unsubscribe
// function.
func (l *Log) Subscribe(handler Handler) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers = append(l.handlers, handlerEntry{id: id, handler: handler})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, h := range l.handlers {
			if h.id == id {
				l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent n events in reverse chronological order.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + l.size) % l.size
		result[i] = l.events[idx]
	}
	return result
}

// RecentByAsset returns the most recent n events for one asset.
func (l *Log) RecentByAsset(assetID string, n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < l.count && len(result) < n; i++ {
		idx := (l.head - 1 - i + l.size) % l.size
		if l.events[idx].AssetID == assetID {
			result = append(result, l.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
