// Package ledger runs read-modify-write cycles against a DocumentStore so
// that updates to the same key are linearizable.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// ErrSkipWrite may be returned by an UpdateFunc to end the critical section
// without writing. Update then returns the current document and a nil error.
var ErrSkipWrite = errors.New("ledger: skip write")

// UpdateFunc computes the next body from the current one. exists is false
// when the key has never been written; current is then nil.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Options configures a Ledger.
type Options struct {
	// MaxRetries bounds how many times a version conflict is retried.
	MaxRetries int
	// Locks, when set, is acquired around every update in addition to the
	// in-process lock.
	Locks   domain.LockManager
	LockTTL time.Duration
	// Now is the clock used to stamp documents.
	Now    func() time.Time
	Logger *slog.Logger
}

// Ledger serializes updates per document key.
type Ledger struct {
	store      domain.DocumentStore
	keys       *KeyMutex
	locks      domain.LockManager
	lockTTL    time.Duration
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Ledger over store.
func New(store domain.DocumentStore, opts Options) *Ledger {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:      store,
		keys:       NewKeyMutex(),
		locks:      opts.Locks,
		lockTTL:    opts.LockTTL,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "ledger"),
	}
}

// Read returns the stored document without taking the key lock. The
// returned bool is false when the key does not exist.
func (l *Ledger) Read(ctx context.Context, key string) (domain.Document, bool, error) {
	doc, err := l.store.Load(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Document{Key: key}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, storageErr("read", key, err)
	}
	return doc, true, nil
}

// Update runs fn inside the critical section for key and persists its
// result with a compare-and-swap on the document version. fn may be called
// more than once if another writer commits first, so it must not keep
// state across calls.
func (l *Ledger) Update(ctx context.Context, key string, fn UpdateFunc) (domain.Document, error) {
	unlock, err := l.keys.Lock(ctx, key)
	if err != nil {
		return domain.Document{}, fmt.Errorf("ledger: lock %s: %w", key, err)
	}
	defer unlock()

	if l.locks != nil {
		release, err := l.locks.Acquire(ctx, "ledger:"+key, l.lockTTL)
		if err != nil {
			return domain.Document{}, storageErr("acquire lock", key, err)
		}
		defer release()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Document{}, err
		}

		current, exists, err := l.Read(ctx, key)
		if err != nil {
			return domain.Document{}, err
		}

		var body []byte
		if exists {
			body = current.Body
		}
		next, err := fn(body, exists)
		if errors.Is(err, ErrSkipWrite) {
			return current, nil
		}
		if err != nil {
			return domain.Document{}, err
		}

		saved, err := l.store.Save(ctx, domain.Document{
			Key:       key,
			Version:   current.Version,
			Body:      next,
			UpdatedAt: l.now().UTC(),
		})
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Document{}, storageErr("save", key, err)
		}
		if attempt >= l.maxRetries {
			return domain.Document{}, storageErr("save", key, err)
		}
		l.logger.DebugContext(ctx, "version conflict, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt+1),
		)
	}
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("ledger: %s %s: %w: %w", op, key, domain.ErrStorageFailure, err)
}
