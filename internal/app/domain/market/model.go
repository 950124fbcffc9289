// Package market holds the pure data model for the asset marketplace:
// fixed-price listings, ascending auctions, the bid ledger, and realized
// sale records. Business rules live in internal/app/services/market.
package market

import "time"

// Listing is an offer to sell one asset at a fixed price. At most one
// listing exists per asset; a sold or withdrawn listing is kept with
// Active=false rather than deleted.
type Listing struct {
	AssetID   string    `json:"asset_id"`
	Seller    string    `json:"seller"`
	Price     uint64    `json:"price"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Auction is a time-boxed ascending-bid sale for one asset. HighestBidder is
// empty until the first qualifying bid is accepted.
type Auction struct {
	AssetID       string    `json:"asset_id"`
	Seller        string    `json:"seller"`
	StartingPrice uint64    `json:"starting_price"`
	EndTime       time.Time `json:"end_time"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	HighestBid    uint64    `json:"highest_bid"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasBids reports whether at least one bid has been accepted.
func (a Auction) HasBids() bool { return a.HighestBidder != "" }

// Expired reports whether the auction's end time has passed at the given
// instant. Expiry is advisory until a mutating call observes it.
func (a Auction) Expired(now time.Time) bool { return !now.Before(a.EndTime) }

// Bid records the last amount a bidder offered for an asset. The bid ledger
// is an audit trail; the Auction record is authoritative for the current
// high bid.
type Bid struct {
	AssetID  string    `json:"asset_id"`
	Bidder   string    `json:"bidder"`
	Amount   uint64    `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// SaleRecord captures the realized settlement price of an asset. It is
// written only when an ownership transfer has been confirmed.
type SaleRecord struct {
	AssetID string    `json:"asset_id"`
	Price   uint64    `json:"price"`
	SoldAt  time.Time `json:"sold_at"`
}
