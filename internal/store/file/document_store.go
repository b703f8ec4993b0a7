// Package file persists ledger documents as one JSON file per key.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// envelope is the on-disk layout of a document.
type envelope struct {
	Key       string          `json:"key"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Body      json.RawMessage `json:"body"`
}

// DocumentStore writes each document to <dir>/<escaped key>.json. Writes go
// to a temp file that is synced and renamed over the target, so a reader
// sees either the previous or the new document.
type DocumentStore struct {
	dir string
	mu  sync.Mutex
}

// NewDocumentStore creates dir if needed and returns a store rooted there.
func NewDocumentStore(dir string) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create data dir: %w", err)
	}
	return &DocumentStore{dir: dir}, nil
}

func (s *DocumentStore) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+".json")
}

// Load implements domain.DocumentStore.
func (s *DocumentStore) Load(_ context.Context, key string) (domain.Document, error) {
	return s.load(key)
}

func (s *DocumentStore) load(key string) (domain.Document, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Document{}, fmt.Errorf("file: load %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("file: load %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Document{}, fmt.Errorf("file: decode %s: %w", key, err)
	}
	return domain.Document{
		Key:       key,
		Version:   env.Version,
		Body:      []byte(env.Body),
		UpdatedAt: env.UpdatedAt,
	}, nil
}

// Save implements domain.DocumentStore.
func (s *DocumentStore) Save(_ context.Context, doc domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	current, err := s.load(doc.Key)
	switch {
	case err == nil:
		stored = current.Version
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.Document{}, err
	}
	if stored != doc.Version {
		return domain.Document{}, fmt.Errorf("file: save %s at version %d (stored %d): %w",
			doc.Key, doc.Version, stored, domain.ErrVersionConflict)
	}

	doc.Version++
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(envelope{
		Key:       doc.Key,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
		Body:      json.RawMessage(doc.Body),
	}, "", "  ")
	if err != nil {
		return domain.Document{}, fmt.Errorf("file: encode %s: %w", doc.Key, err)
	}
	if err := writeAtomic(s.path(doc.Key), data); err != nil {
		return domain.Document{}, fmt.Errorf("file: save %s: %w", doc.Key, err)
	}
	return doc, nil
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}
