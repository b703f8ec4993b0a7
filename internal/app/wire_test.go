package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/config"
	"github.com/alanyoungcy/ledgerd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_MemoryBackendWithoutRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Settlement.AdminSecret = "s3cret"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Documents)
	assert.Nil(t, deps.AuditStore)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Events)
	require.NotNil(t, deps.LocalLimiter)
	assert.Equal(t, deps.LocalLimiter, deps.RateLimiter)
	assert.NotNil(t, deps.Payouts)
	assert.Empty(t, deps.HealthChecks)

	assert.True(t, deps.AdminGate.Authorize(context.Background(), "s3cret"))
	assert.False(t, deps.AdminGate.Authorize(context.Background(), "guess"))
}

func TestWire_FileBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Settlement.AdminSecret = "s3cret"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, deps.Documents)
}

func TestWire_RedisBackedCoordination(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Storage.LockBackend = "redis"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Settlement.AdminSecret = "s3cret"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.LockManager)
	assert.NotNil(t, deps.SignalBus)
	assert.NotNil(t, deps.Events)
	assert.Nil(t, deps.LocalLimiter)
	assert.NotNil(t, deps.RateLimiter)

	check, ok := deps.HealthChecks["redis"]
	require.True(t, ok)
	assert.NoError(t, check(context.Background()))
}

func TestWire_RejectsUnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "floppy"
	cfg.Settlement.AdminSecret = "s3cret"

	_, _, err := Wire(context.Background(), &cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestMigrateMode_RequiresPostgres(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "migrate"

	err := New(&cfg, testLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestPayoutsMode_ListsQueuedInstructions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Mode = "payouts"
	cfg.Storage.Backend = "memory"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, deps.Payouts.Dispatch(ctx, "m1", []domain.DistributionRecord{
		{BetID: "bet-a", Wallet: "A", Amount: decimal.NewFromInt(190)},
		{BetID: domain.PlatformFeeBetID, Wallet: "treasury", Amount: decimal.NewFromInt(10)},
	}))

	var out bytes.Buffer
	a := New(&cfg, slog.New(slog.NewJSONHandler(&out, nil)))
	require.NoError(t, a.PayoutsMode(ctx, deps))

	assert.Contains(t, out.String(), `"key":"m1:bet-a"`)
	assert.Contains(t, out.String(), `"key":"m1:platform-fee"`)
	assert.Contains(t, out.String(), `"instructions":2`)
}

func TestPayoutsMode_RequiresStream(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	err = New(&cfg, testLogger()).PayoutsMode(context.Background(), deps)
	assert.Error(t, err)
}
