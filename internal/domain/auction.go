package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionState is the current-state projection of an auction.
type AuctionState struct {
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	StartPrice    decimal.Decimal `json:"startPrice"`
	HighestBidder string          `json:"highestBidder,omitempty"`
	Owner         string          `json:"owner,omitempty"`
	TauntMessage  string          `json:"tauntMessage"`
	StartTime     time.Time       `json:"startTime"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	// OwnershipDuration is derived on read and never persisted.
	OwnershipDuration time.Duration `json:"-"`
}

// HasOwner reports whether any bid has been accepted yet.
func (s AuctionState) HasOwner() bool {
	return s.Owner != ""
}

// Bid is an accepted, immutable auction bid.
type Bid struct {
	ID                   string          `json:"id"`
	Bidder               string          `json:"bidder"`
	Amount               decimal.Decimal `json:"amount"`
	Taunt                string          `json:"taunt,omitempty"`
	Timestamp            time.Time       `json:"timestamp"`
	TransactionSignature string          `json:"transactionSignature,omitempty"`
}

// AuctionDocument is the persisted unit for one auction: state plus bounded
// history, most recent bid first.
type AuctionDocument struct {
	State   AuctionState `json:"state"`
	History []Bid        `json:"bidHistory"`
}

// ArchivedBid is a bid pruned from an auction's retained history.
type ArchivedBid struct {
	AuctionID  string    `json:"auctionId"`
	Bid        Bid       `json:"bid"`
	ArchivedAt time.Time `json:"archivedAt"`
}
