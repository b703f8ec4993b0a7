package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

type fakeBus struct {
	mu      sync.Mutex
	streams map[string][][]byte
	failN   int
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failN > 0 {
		b.failN--
		return errors.New("redis unavailable")
	}
	if b.streams == nil {
		b.streams = make(map[string][][]byte)
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

// StreamRead treats the 1-based position in the stream as the message ID.
func (b *fakeBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	after, err := strconv.Atoi(lastID)
	if err != nil {
		return nil, err
	}
	var out []domain.StreamMessage
	for i := after; i < len(b.streams[stream]) && len(out) < count; i++ {
		out = append(out, domain.StreamMessage{ID: strconv.Itoa(i + 1), Payload: b.streams[stream][i]})
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func records() []domain.DistributionRecord {
	return []domain.DistributionRecord{
		{BetID: "bet-a", Wallet: "A", Amount: decimal.NewFromInt(190)},
		{BetID: domain.PlatformFeeBetID, Wallet: "treasury", Amount: decimal.NewFromInt(10)},
	}
}

func TestPayoutExecutor_AppendsInstructions(t *testing.T) {
	bus := &fakeBus{}
	p := NewPayoutExecutor(bus, discardLogger())

	require.NoError(t, p.Dispatch(context.Background(), "m1", records()))

	msgs := bus.streams[PayoutStream]
	require.Len(t, msgs, 2)

	var ins domain.PayoutInstruction
	require.NoError(t, json.Unmarshal(msgs[0], &ins))
	assert.Equal(t, "m1:bet-a", ins.IdempotencyKey)
	assert.Equal(t, "A", ins.Wallet)
	assert.True(t, decimal.NewFromInt(190).Equal(ins.Amount))

	require.NoError(t, json.Unmarshal(msgs[1], &ins))
	assert.Equal(t, "m1:platform-fee", ins.IdempotencyKey)
}

func TestPayoutExecutor_DeduplicatesMarket(t *testing.T) {
	bus := &fakeBus{}
	p := NewPayoutExecutor(bus, discardLogger())
	ctx := context.Background()

	require.NoError(t, p.Dispatch(ctx, "m1", records()))
	require.NoError(t, p.Dispatch(ctx, "m1", records()))
	assert.Len(t, bus.streams[PayoutStream], 2)
}

func TestPayoutExecutor_SkipsZeroAmounts(t *testing.T) {
	bus := &fakeBus{}
	p := NewPayoutExecutor(bus, discardLogger())

	recs := []domain.DistributionRecord{
		{BetID: "bet-a", Wallet: "A", Amount: decimal.NewFromInt(5)},
		{BetID: domain.PlatformFeeBetID, Wallet: "treasury", Amount: decimal.Zero},
	}
	require.NoError(t, p.Dispatch(context.Background(), "m1", recs))
	assert.Len(t, bus.streams[PayoutStream], 1)
}

func TestPayoutExecutor_FailureAllowsRetry(t *testing.T) {
	bus := &fakeBus{failN: 1}
	p := NewPayoutExecutor(bus, discardLogger())
	ctx := context.Background()

	assert.Error(t, p.Dispatch(ctx, "m1", records()))
	require.NoError(t, p.Dispatch(ctx, "m1", records()))
	assert.Len(t, bus.streams[PayoutStream], 2)
}

func TestPayoutExecutor_SimulationWithoutBus(t *testing.T) {
	p := NewPayoutExecutor(nil, discardLogger())
	assert.NoError(t, p.Dispatch(context.Background(), "m1", records()))
}

func TestDedup_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Zero(t, d.len())
	assert.False(t, d.IsDuplicate("k"))
}

func TestPayoutExecutor_QueuedPagesThroughStream(t *testing.T) {
	bus := &fakeBus{}
	p := NewPayoutExecutor(bus, discardLogger())
	ctx := context.Background()

	require.NoError(t, p.Dispatch(ctx, "m1", records()))
	require.NoError(t, bus.StreamAppend(ctx, PayoutStream, []byte("not json")))
	require.NoError(t, p.Dispatch(ctx, "m2", records()[:1]))

	page, next, err := p.Queued(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2", next)
	assert.Equal(t, "m1:bet-a", page[0].IdempotencyKey)
	assert.Equal(t, "m1:platform-fee", page[1].IdempotencyKey)
	assert.True(t, decimal.NewFromInt(10).Equal(page[1].Amount))

	// The malformed entry is skipped, not fatal.
	page, next, err = p.Queued(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m2:bet-a", page[0].IdempotencyKey)
	assert.Equal(t, "4", page[0].StreamID)
	assert.Equal(t, "4", next)

	page, next, err = p.Queued(ctx, next, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, "4", next)
}

func TestPayoutExecutor_QueuedWithoutBus(t *testing.T) {
	p := NewPayoutExecutor(nil, discardLogger())
	_, _, err := p.Queued(context.Background(), "0", 10)
	assert.ErrorIs(t, err, ErrNoPayoutStream)
}
