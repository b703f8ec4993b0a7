package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Event types emitted after a ledger write commits.
const (
	EventBidAccepted       = "bid_accepted"
	EventBetPlaced         = "bet_placed"
	EventMarketDistributed = "market_distributed"
)

// Event is a committed ledger change. Aggregate is the auction or market id
// the change belongs to.
type Event struct {
	Type       string          `json:"type"`
	Aggregate  string          `json:"aggregate"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType, aggregate string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Aggregate: aggregate, Payload: raw, OccurredAt: at}, nil
}

// EventPublisher delivers committed events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PayoutInstruction asks the external transfer service to move Amount to
// Wallet. IdempotencyKey is stable across retries of the same payout.
type PayoutInstruction struct {
	IdempotencyKey string `json:"idempotencyKey"`
	MarketID       string `json:"marketId"`
	DistributionRecord
	CreatedAt time.Time `json:"createdAt"`
}

// PayoutSink receives the records of a committed distribution.
type PayoutSink interface {
	Dispatch(ctx context.Context, marketID string, records []DistributionRecord) error
}
