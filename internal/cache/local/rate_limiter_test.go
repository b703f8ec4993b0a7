package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:a", 3, 3*time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "ip:a", 3, 3*time.Second)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "ip:b", 3, 3*time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = rl.Allow(ctx, "ip:a", 3, 3*time.Second)
	assert.True(t, ok, "one token refilled")
}

func TestRateLimiter_ZeroLimitDenies(t *testing.T) {
	rl := NewRateLimiter()
	ok, err := rl.Allow(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	_, _ = rl.Allow(context.Background(), "old", 1, time.Second)
	now = now.Add(5 * time.Minute)
	_, _ = rl.Allow(context.Background(), "fresh", 1, time.Second)

	rl.Cleanup()
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_LimitChangeReshapesBucket(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := rl.Allow(ctx, "k", 1, time.Minute)
	require.True(t, ok)
	ok, _ = rl.Allow(ctx, "k", 1, time.Minute)
	assert.False(t, ok)

	// A larger limit on the same key refills at the new rate.
	now = now.Add(time.Minute)
	ok, _ = rl.Allow(ctx, "k", 60, time.Minute)
	require.True(t, ok)
	now = now.Add(time.Second)
	ok, _ = rl.Allow(ctx, "k", 60, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 1, rl.size())
}
