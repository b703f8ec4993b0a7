// Package settlement implements pooled prediction markets: bets accumulate
// on YES or NO until an administrator distributes the pool on the winning
// outcome. A market is distributed at most once.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/crypto"
	"github.com/alanyoungcy/ledgerd/internal/domain"
	"github.com/alanyoungcy/ledgerd/internal/ledger"
)

// DefaultPlatformWallet receives the platform fee unless configured.
const DefaultPlatformWallet = "JBuwuVzAFDZWVW4o63PtYfLvPGHbSNnRMv5hPzcstyK6"

// Config holds settlement parameters.
type Config struct {
	FeeRate         decimal.Decimal
	PlatformWallet  string
	AmountPrecision int32

	// PayoutRetryAfter is how long a PENDING payout handoff may stay
	// unrecorded before a Distribute replay sends it again.
	PayoutRetryAfter time.Duration
}

// DefaultConfig returns a 5% fee and six decimal places.
func DefaultConfig() Config {
	return Config{
		FeeRate:          decimal.RequireFromString("0.05"),
		PlatformWallet:   DefaultPlatformWallet,
		AmountPrecision:  6,
		PayoutRetryAfter: 2 * time.Minute,
	}
}

// BetRequest places a stake on a market.
type BetRequest struct {
	WalletAddress string
	MarketID      string
	Direction     string
	Amount        decimal.Decimal
	Signature     string
}

// DistributeRequest settles a market on WinningOutcome. Credential is
// checked by the engine's AdminGate.
type DistributeRequest struct {
	MarketID       string
	WinningOutcome string
	Credential     string
}

// Engine places bets and distributes markets.
type Engine struct {
	cfg    Config
	ledger *ledger.Ledger
	gate   crypto.AdminGate
	now    func() time.Time
	payout domain.PayoutSink
	events domain.EventPublisher
	audit  domain.AuditStore
	logger *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPayoutSink hands committed distribution records to s.
func WithPayoutSink(s domain.PayoutSink) Option {
	return func(e *Engine) { e.payout = s }
}

// WithEvents publishes bet and distribution events.
func WithEvents(p domain.EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithAudit records bets and distributions in the audit log.
func WithAudit(a domain.AuditStore) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine. gate must not be nil.
func NewEngine(l *ledger.Ledger, gate crypto.AdminGate, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		cfg.FeeRate = def.FeeRate
	}
	if cfg.PlatformWallet == "" {
		cfg.PlatformWallet = def.PlatformWallet
	}
	if cfg.AmountPrecision <= 0 {
		cfg.AmountPrecision = def.AmountPrecision
	}
	if cfg.PayoutRetryAfter <= 0 {
		cfg.PayoutRetryAfter = def.PayoutRetryAfter
	}

	e := &Engine{
		cfg:    cfg,
		ledger: l,
		gate:   gate,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "settlement")
	return e
}

func marketKey(id string) string {
	return "market:" + id
}

// GetMarket returns the stored market.
func (e *Engine) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return domain.Market{}, fmt.Errorf("settlement: market id is required: %w", domain.ErrInvalidInput)
	}
	m, exists, err := ledger.ReadJSON[domain.Market](ctx, e.ledger, marketKey(marketID))
	if err != nil {
		return domain.Market{}, fmt.Errorf("settlement: get market: %w", err)
	}
	if !exists {
		return domain.Market{}, fmt.Errorf("settlement: market %s: %w", marketID, domain.ErrMarketNotFound)
	}
	return m, nil
}

// PlaceBet appends a bet to its market, creating the market on first use.
// A request whose signature is already recorded on the market returns the
// recorded bet without writing.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (domain.Bet, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.MarketID = strings.TrimSpace(req.MarketID)
	dir := domain.Direction(strings.ToUpper(strings.TrimSpace(req.Direction)))

	switch {
	case req.WalletAddress == "":
		return domain.Bet{}, fmt.Errorf("settlement: wallet address is required: %w", domain.ErrInvalidInput)
	case req.MarketID == "":
		return domain.Bet{}, fmt.Errorf("settlement: market id is required: %w", domain.ErrInvalidInput)
	case !dir.Valid():
		return domain.Bet{}, fmt.Errorf("settlement: direction must be YES or NO, got %q: %w", req.Direction, domain.ErrInvalidInput)
	case !req.Amount.IsPositive():
		return domain.Bet{}, fmt.Errorf("settlement: amount must be positive, got %s: %w", req.Amount, domain.ErrInvalidInput)
	}

	var (
		bet       domain.Bet
		duplicate bool
	)
	err := ledger.UpdateJSON(ctx, e.ledger, marketKey(req.MarketID), func(m *domain.Market, exists bool) error {
		bet, duplicate = domain.Bet{}, false
		now := e.now().UTC()
		if !exists {
			*m = domain.Market{ID: req.MarketID, Bets: []domain.Bet{}, CreatedAt: now}
		}

		if existing, ok := m.FindBetBySignature(req.Signature); ok {
			bet, duplicate = existing, true
			return ledger.ErrSkipWrite
		}
		if m.Distributed {
			return fmt.Errorf("settlement: market %s: %w", req.MarketID, domain.ErrMarketClosed)
		}

		bet = domain.Bet{
			ID:            uuid.NewString(),
			WalletAddress: req.WalletAddress,
			MarketID:      req.MarketID,
			Direction:     dir,
			Amount:        req.Amount,
			Signature:     req.Signature,
			Status:        domain.BetStatusPending,
			PlacedAt:      now,
		}
		m.Bets = append(m.Bets, bet)
		m.TotalPool = m.TotalPool.Add(bet.Amount)
		return nil
	})
	if err != nil {
		return domain.Bet{}, err
	}
	if duplicate {
		e.logger.InfoContext(ctx, "bet already recorded",
			slog.String("market_id", req.MarketID),
			slog.String("bet_id", bet.ID),
		)
		return bet, nil
	}

	e.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", bet.MarketID),
		slog.String("bet_id", bet.ID),
		slog.String("direction", string(bet.Direction)),
		slog.String("amount", bet.Amount.String()),
	)
	e.publish(ctx, domain.EventBetPlaced, bet.MarketID, bet, bet.PlacedAt)
	e.auditLog(ctx, domain.EventBetPlaced, map[string]any{
		"marketId": bet.MarketID,
		"betId":    bet.ID,
		"wallet":   bet.WalletAddress,
		"amount":   bet.Amount.String(),
	})
	return bet, nil
}

// Distribute settles a market. The credential is checked before anything
// else. A market that is already distributed yields a result with
// AlreadyDistributed set and no records. Its stored distribution is never
// recomputed, but a payout handoff that failed (or went stale while
// PENDING) is sent to the payout sink again.
func (e *Engine) Distribute(ctx context.Context, req DistributeRequest) (domain.DistributionResult, error) {
	if e.gate == nil || !e.gate.Authorize(ctx, req.Credential) {
		return domain.DistributionResult{}, fmt.Errorf("settlement: distribute: %w", domain.ErrUnauthorized)
	}

	marketID := strings.TrimSpace(req.MarketID)
	outcome := domain.Direction(strings.ToUpper(strings.TrimSpace(req.WinningOutcome)))
	if marketID == "" {
		return domain.DistributionResult{}, fmt.Errorf("settlement: market id is required: %w", domain.ErrInvalidInput)
	}
	if !outcome.Valid() {
		return domain.DistributionResult{}, fmt.Errorf("settlement: winning outcome must be YES or NO, got %q: %w",
			req.WinningOutcome, domain.ErrInvalidInput)
	}

	var (
		result   domain.DistributionResult
		pending  []domain.DistributionRecord
		dispatch bool
	)
	err := ledger.UpdateJSON(ctx, e.ledger, marketKey(marketID), func(m *domain.Market, exists bool) error {
		result, pending, dispatch = domain.DistributionResult{MarketID: marketID}, nil, false
		now := e.now().UTC()
		if !exists {
			return fmt.Errorf("settlement: market %s: %w", marketID, domain.ErrMarketNotFound)
		}
		if m.Distributed {
			result.AlreadyDistributed = true
			result.Status = domain.DistributionAlreadyDistributed
			result.WinningOutcome = m.WinningOutcome
			result.TotalPool = m.TotalPool
			result.Distributions = []domain.DistributionRecord{}
			result.PayoutStatus = m.PayoutStatus
			if e.payout == nil || !payoutRetryDue(m, now, e.cfg.PayoutRetryAfter) {
				return ledger.ErrSkipWrite
			}
			// Claim the retry so concurrent replays do not send it twice.
			claimPayout(m, now)
			pending, dispatch = slices.Clone(m.Distributions), true
			result.PayoutStatus = domain.PayoutPending
			return nil
		}

		p := ComputePayouts(m.Bets, outcome, e.cfg.FeeRate, e.cfg.AmountPrecision, e.cfg.PlatformWallet)

		for i := range m.Bets {
			if m.Bets[i].Direction == outcome {
				m.Bets[i].Status = domain.BetStatusWon
			} else {
				m.Bets[i].Status = domain.BetStatusLost
			}
		}
		m.Distributed = true
		m.WinningOutcome = outcome
		m.DistributedAt = &now
		m.Distributions = p.Records
		m.TotalPool = p.TotalPool
		if e.payout != nil {
			claimPayout(m, now)
			pending, dispatch = p.Records, true
			result.PayoutStatus = domain.PayoutPending
		}

		result.Success = true
		result.Status = domain.DistributionDone
		result.WinningOutcome = outcome
		result.TotalPool = p.TotalPool
		result.WinningPool = p.WinningPool
		result.LosingPool = p.LosingPool
		result.PlatformFee = p.Fee
		result.Distributions = p.Records
		return nil
	})
	if err != nil {
		return domain.DistributionResult{}, err
	}

	if result.AlreadyDistributed {
		e.logger.InfoContext(ctx, "market already distributed",
			slog.String("market_id", marketID),
			slog.String("payout_status", string(result.PayoutStatus)),
		)
		if dispatch {
			result.PayoutStatus = e.dispatchPayouts(ctx, marketID, pending)
		}
		return result, nil
	}

	e.logger.InfoContext(ctx, "market distributed",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.String("losing_pool", result.LosingPool.String()),
		slog.String("fee", result.PlatformFee.String()),
		slog.Int("records", len(result.Distributions)),
	)

	if dispatch {
		result.PayoutStatus = e.dispatchPayouts(ctx, marketID, pending)
	}
	e.publish(ctx, domain.EventMarketDistributed, marketID, result, e.now().UTC())
	e.auditLog(ctx, domain.EventMarketDistributed, map[string]any{
		"marketId":       marketID,
		"winningOutcome": string(outcome),
		"losingPool":     result.LosingPool.String(),
		"platformFee":    result.PlatformFee.String(),
		"records":        len(result.Distributions),
	})
	return result, nil
}

// dispatchPayouts hands records to the payout sink and stores the outcome on
// the market. A FAILED market is retried by the next authorized Distribute.
func (e *Engine) dispatchPayouts(ctx context.Context, marketID string, records []domain.DistributionRecord) domain.PayoutStatus {
	status, errMsg := domain.PayoutDispatched, ""
	if err := e.payout.Dispatch(ctx, marketID, records); err != nil {
		status, errMsg = domain.PayoutFailed, err.Error()
		e.logger.ErrorContext(ctx, "dispatch payouts failed",
			slog.String("market_id", marketID),
			slog.String("error", errMsg),
		)
	}

	err := ledger.UpdateJSON(ctx, e.ledger, marketKey(marketID), func(m *domain.Market, exists bool) error {
		if !exists || m.PayoutStatus == domain.PayoutDispatched {
			return ledger.ErrSkipWrite
		}
		m.PayoutStatus = status
		m.PayoutError = errMsg
		return nil
	})
	if err != nil {
		// The market stays PENDING and becomes retryable once stale.
		e.logger.ErrorContext(ctx, "record payout status failed",
			slog.String("market_id", marketID),
			slog.String("payout_status", string(status)),
			slog.String("error", err.Error()),
		)
	}
	return status
}

func claimPayout(m *domain.Market, now time.Time) {
	m.PayoutStatus = domain.PayoutPending
	m.PayoutError = ""
	m.PayoutAttempts++
	m.PayoutAttemptAt = &now
}

// payoutRetryDue reports whether a distributed market's payouts should be
// sent again: the last attempt failed, or it has been PENDING longer than
// staleAfter (the process died between commit and handoff).
func payoutRetryDue(m *domain.Market, now time.Time, staleAfter time.Duration) bool {
	switch m.PayoutStatus {
	case domain.PayoutFailed:
		return true
	case domain.PayoutPending:
		return m.PayoutAttemptAt != nil && now.Sub(*m.PayoutAttemptAt) >= staleAfter
	}
	return false
}

func (e *Engine) publish(ctx context.Context, eventType, aggregate string, payload any, at time.Time) {
	if e.events == nil {
		return
	}
	ev, err := domain.NewEvent(eventType, aggregate, payload, at)
	if err == nil {
		err = e.events.Publish(ctx, ev)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
