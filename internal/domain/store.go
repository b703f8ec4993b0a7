package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Document is the unit of persistence: an opaque JSON body under a key,
// guarded by a monotonically increasing version. Version 0 means the
// document does not exist yet.
type Document struct {
	Key       string
	Version   int64
	Body      []byte
	UpdatedAt time.Time
}

// DocumentStore loads and saves whole documents.
//
// Load returns ErrNotFound when the key has never been written. Save writes
// doc only if the stored version still equals doc.Version and returns the
// stored document with the incremented version; otherwise it returns
// ErrVersionConflict and leaves the stored document untouched.
type DocumentStore interface {
	Load(ctx context.Context, key string) (Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// BidArchive receives bids pruned from an auction's retained history.
type BidArchive interface {
	Archive(ctx context.Context, auctionID string, bids []Bid) error
}

// BidArchiveReader lists archived bids, newest first, and looks one up by
// transaction signature.
type BidArchiveReader interface {
	ListArchived(ctx context.Context, auctionID string, opts ListOpts) ([]ArchivedBid, error)
	FindBySignature(ctx context.Context, auctionID, signature string) (ArchivedBid, bool, error)
}
