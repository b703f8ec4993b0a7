package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyMutex_SameKeyIsExclusive(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()
	var inside, maxInside int32

	finished := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			unlock, err := km.Lock(ctx, "k")
			if err != nil {
				finished <- struct{}{}
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
			finished <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-finished
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	assert.Zero(t, km.size())
}

func TestKeyMutex_UnlockIsIdempotent(t *testing.T) {
	km := NewKeyMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Zero(t, km.size())
}
