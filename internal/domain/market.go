package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a binary prediction market.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// Valid reports whether d is YES or NO.
func (d Direction) Valid() bool {
	return d == DirectionYes || d == DirectionNo
}

// BetStatus tracks a bet through distribution.
type BetStatus string

const (
	BetStatusPending BetStatus = "PENDING"
	BetStatusWon     BetStatus = "WON"
	BetStatusLost    BetStatus = "LOST"
)

// PlatformFeeBetID marks the fee record in a market's distributions.
const PlatformFeeBetID = "platform-fee"

// Bet is a stake on one side of a market.
type Bet struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	MarketID      string          `json:"marketId"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	Signature     string          `json:"signature,omitempty"`
	Status        BetStatus       `json:"status"`
	PlacedAt      time.Time       `json:"placedAt"`
}

// DistributionRecord is a single payout line. Its presence in a market
// document means the payout has been recorded.
type DistributionRecord struct {
	BetID  string          `json:"betId"`
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

// IsFee reports whether r is the platform fee line.
func (r DistributionRecord) IsFee() bool {
	return r.BetID == PlatformFeeBetID
}

// PayoutStatus tracks the handoff of a distribution's records to the
// payout sink.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutDispatched PayoutStatus = "DISPATCHED"
	PayoutFailed     PayoutStatus = "FAILED"
)

// Market is the persisted unit for one prediction market.
type Market struct {
	ID             string               `json:"id"`
	Bets           []Bet                `json:"bets"`
	TotalPool      decimal.Decimal      `json:"totalPool"`
	Distributed    bool                 `json:"distributed"`
	WinningOutcome Direction            `json:"winningOutcome,omitempty"`
	DistributedAt  *time.Time           `json:"distributedAt,omitempty"`
	Distributions  []DistributionRecord `json:"distributions,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`

	// Payout handoff state; empty when no payout sink is configured.
	PayoutStatus    PayoutStatus `json:"payoutStatus,omitempty"`
	PayoutError     string       `json:"payoutError,omitempty"`
	PayoutAttempts  int          `json:"payoutAttempts,omitempty"`
	PayoutAttemptAt *time.Time   `json:"payoutAttemptAt,omitempty"`
}

// FindBetBySignature returns the bet carrying sig, if any.
func (m *Market) FindBetBySignature(sig string) (Bet, bool) {
	if sig == "" {
		return Bet{}, false
	}
	for _, b := range m.Bets {
		if b.Signature == sig {
			return b, true
		}
	}
	return Bet{}, false
}

// DistributionStatus is the outcome of a distribution request.
type DistributionStatus string

const (
	DistributionDone               DistributionStatus = "distributed"
	DistributionAlreadyDistributed DistributionStatus = "already_distributed"
)

// DistributionResult is returned by a distribution request. A repeat request
// for a distributed market carries no records.
type DistributionResult struct {
	MarketID           string               `json:"marketId"`
	Success            bool                 `json:"success"`
	AlreadyDistributed bool                 `json:"alreadyDistributed"`
	Status             DistributionStatus   `json:"status"`
	WinningOutcome     Direction            `json:"winningOutcome,omitempty"`
	TotalPool          decimal.Decimal      `json:"totalPool"`
	WinningPool        decimal.Decimal      `json:"winningPool"`
	LosingPool         decimal.Decimal      `json:"losingPool"`
	PlatformFee        decimal.Decimal      `json:"platformFee"`
	Distributions      []DistributionRecord `json:"distributions"`
	PayoutStatus       PayoutStatus         `json:"payoutStatus,omitempty"`
}
