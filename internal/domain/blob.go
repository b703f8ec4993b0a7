package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter stores objects such as archived bid batches and settlement
// receipts. Paths are slash-separated keys relative to the bucket.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart uploads in parts of partSize bytes; large archive
	// batches go through here.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads objects back.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// List returns every object under prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobInfo is the listing metadata of one object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}
