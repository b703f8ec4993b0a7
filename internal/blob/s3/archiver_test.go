package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// memBucket is an in-memory BlobWriter and BlobReader.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemBucket() *memBucket {
	return &memBucket{objects: make(map[string][]byte)}
}

func (b *memBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	b.puts++
	return nil
}

func (b *memBucket) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BlobInfo
	for p, raw := range b.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(raw))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *memBucket) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

func TestBidArchiver_RoundTrip(t *testing.T) {
	bucket := newMemBucket()
	a := NewBidArchiver(bucket, bucket)
	now := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for batch := 0; batch < 2; batch++ {
		var bids []domain.Bid
		for i := 0; i < 3; i++ {
			n := batch*3 + i
			bids = append(bids, domain.Bid{
				ID:        fmt.Sprintf("bid-%d", n),
				Bidder:    "b",
				Amount:    decimal.NewFromInt(int64(1000 + n)),
				Timestamp: base.Add(time.Duration(n) * time.Minute),
			})
		}
		now = now.Add(time.Second)
		require.NoError(t, a.Archive(ctx, "main", bids))
	}
	assert.Equal(t, 2, bucket.puts)
	for p := range bucket.objects {
		assert.True(t, strings.HasPrefix(p, "archive/bids/main/2025-01/"), p)
	}

	got, err := a.ListArchived(ctx, "main", domain.ListOpts{Limit: 4, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "bid-4", got[0].Bid.ID)
	assert.Equal(t, "bid-1", got[3].Bid.ID)
	assert.Equal(t, "main", got[0].AuctionID)

	since := base.Add(4 * time.Minute)
	got, err = a.ListArchived(ctx, "main", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = a.ListArchived(ctx, "other", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBidArchiver_FindBySignature(t *testing.T) {
	bucket := newMemBucket()
	a := NewBidArchiver(bucket, bucket)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, a.Archive(ctx, "main", []domain.Bid{
		{ID: "bid-1", Bidder: "a", Amount: decimal.NewFromInt(1100), Timestamp: at},
		{ID: "bid-2", Bidder: "b", Amount: decimal.NewFromInt(1200), Timestamp: at, TransactionSignature: "sig-2"},
	}))

	got, ok, err := a.FindBySignature(ctx, "main", "sig-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bid-2", got.Bid.ID)

	_, ok, err = a.FindBySignature(ctx, "main", "sig-9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = NewBidArchiver(bucket, nil).FindBySignature(ctx, "main", "sig-2")
	assert.Error(t, err)
}

func TestBidArchiver_EmptyBatch(t *testing.T) {
	bucket := newMemBucket()
	require.NoError(t, NewBidArchiver(bucket, nil).Archive(context.Background(), "main", nil))
	assert.Zero(t, bucket.puts)
}

func TestReceiptPublisher_WritesOnce(t *testing.T) {
	bucket := newMemBucket()
	p := NewReceiptPublisher(bucket, bucket)
	ctx := context.Background()

	ev := domain.Event{Type: domain.EventMarketDistributed, Aggregate: "m1", Payload: []byte(`{"marketId":"m1"}`)}
	require.NoError(t, p.Publish(ctx, ev))

	ev.Payload = []byte(`{"marketId":"m1","tampered":true}`)
	require.NoError(t, p.Publish(ctx, ev))

	assert.Equal(t, 1, bucket.puts)
	assert.JSONEq(t, `{"marketId":"m1"}`, string(bucket.objects[ReceiptPath("m1")]))

	require.NoError(t, p.Publish(ctx, domain.Event{Type: domain.EventBidAccepted, Aggregate: "main"}))
	assert.Equal(t, 1, bucket.puts)
}
