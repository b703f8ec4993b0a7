package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockManager_ExclusiveUntilReleased(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c, 0)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "ledger:auction:main", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:ledger:auction:main"))

	_, err = lm.Acquire(ctx, "ledger:auction:main", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:ledger:auction:main"))

	unlock2, err := lm.Acquire(ctx, "ledger:auction:main", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_UnlockKeepsForeignToken(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c, 0)

	unlock, err := lm.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the lock.
	require.NoError(t, mr.Set("lock:k", "someone-else"))
	unlock()

	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLockManager_WaitsForRelease(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c, 2*time.Second)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		unlock()
	}()

	unlock2, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_ContextCancelled(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c, time.Minute)

	unlock, err := lm.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Allow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "ip:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := rl.Allow(ctx, "k", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, "k", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = rl.Allow(ctx, "k", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "ch:auction")
	require.NoError(t, err)

	// The subscription is confirmed before Subscribe returns.
	require.NoError(t, bus.Publish(ctx, "ch:auction", []byte(`{"type":"bid_accepted"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"bid_accepted"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalBus_Stream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 100)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, "stream:payouts", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "stream:payouts", []byte("b")))

	msgs, err := bus.StreamRead(ctx, "stream:payouts", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)
	assert.Equal(t, []byte("b"), msgs[1].Payload)
}
