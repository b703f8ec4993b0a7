// Package executor turns committed distributions into payout instructions
// for the external transfer service.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// PayoutStream is the Redis stream the transfer worker consumes.
const PayoutStream = "stream:payouts"

// PayoutExecutor implements domain.PayoutSink by appending one instruction
// per distribution record to a durable stream. Each instruction carries
// "<marketId>:<betId>" as its idempotency key, which the transfer worker
// uses to ignore replays. Zero-amount records are skipped.
//
// Without a bus the executor runs in simulation mode and only logs.
type PayoutExecutor struct {
	bus    domain.SignalBus
	stream string
	dedup  *Dedup
	now    func() time.Time
	logger *slog.Logger

	cleanupInterval time.Duration
}

// NewPayoutExecutor creates a PayoutExecutor. bus may be nil.
func NewPayoutExecutor(bus domain.SignalBus, logger *slog.Logger) *PayoutExecutor {
	return &PayoutExecutor{
		bus:             bus,
		stream:          PayoutStream,
		dedup:           NewDedup(10 * time.Minute),
		now:             time.Now,
		logger:          logger.With(slog.String("component", "payout_executor")),
		cleanupInterval: time.Minute,
	}
}

// Dispatch implements domain.PayoutSink.
func (p *PayoutExecutor) Dispatch(ctx context.Context, marketID string, records []domain.DistributionRecord) error {
	if p.dedup.IsDuplicate(marketID) {
		p.logger.WarnContext(ctx, "duplicate payout dispatch ignored", slog.String("market_id", marketID))
		return nil
	}

	now := p.now().UTC()
	for _, r := range records {
		if !r.Amount.IsPositive() {
			continue
		}
		ins := domain.PayoutInstruction{
			IdempotencyKey:     marketID + ":" + r.BetID,
			MarketID:           marketID,
			DistributionRecord: r,
			CreatedAt:          now,
		}

		if p.bus == nil {
			p.logger.InfoContext(ctx, "simulated payout",
				slog.String("key", ins.IdempotencyKey),
				slog.String("wallet", r.Wallet),
				slog.String("amount", r.Amount.String()),
			)
			continue
		}

		payload, err := json.Marshal(ins)
		if err != nil {
			p.dedup.Forget(marketID)
			return fmt.Errorf("executor: marshal payout %s: %w", ins.IdempotencyKey, err)
		}
		if err := p.bus.StreamAppend(ctx, p.stream, payload); err != nil {
			// Records already appended are safe to append again; the
			// worker drops them by idempotency key.
			p.dedup.Forget(marketID)
			return fmt.Errorf("executor: append payout %s: %w", ins.IdempotencyKey, err)
		}
	}

	p.logger.InfoContext(ctx, "payouts dispatched",
		slog.String("market_id", marketID),
		slog.Int("records", len(records)),
	)
	return nil
}

// QueuedPayout is a payout instruction read back from the stream.
type QueuedPayout struct {
	StreamID string
	domain.PayoutInstruction
}

// ErrNoPayoutStream is returned by Queued in simulation mode.
var ErrNoPayoutStream = errors.New("executor: no payout stream configured")

// Queued reads up to count stream entries after afterID ("0" reads from the
// start) and returns their instructions with the ID of the last entry read,
// which is afterID when the stream holds nothing newer. Entries that do not
// decode are logged and skipped.
func (p *PayoutExecutor) Queued(ctx context.Context, afterID string, count int) ([]QueuedPayout, string, error) {
	if p.bus == nil {
		return nil, afterID, ErrNoPayoutStream
	}
	if afterID == "" {
		afterID = "0"
	}

	msgs, err := p.bus.StreamRead(ctx, p.stream, afterID, count)
	if err != nil {
		return nil, afterID, fmt.Errorf("executor: read payouts after %s: %w", afterID, err)
	}
	next := afterID
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}

	out := make([]QueuedPayout, 0, len(msgs))
	for _, m := range msgs {
		q := QueuedPayout{StreamID: m.ID}
		if err := json.Unmarshal(m.Payload, &q.PayoutInstruction); err != nil {
			p.logger.WarnContext(ctx, "undecodable payout entry",
				slog.String("stream_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, q)
	}
	return out, next, nil
}

// Run periodically expires dedup entries until ctx is done.
func (p *PayoutExecutor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.dedup.Cleanup()
		}
	}
}
