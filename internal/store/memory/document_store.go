// Package memory provides an in-process DocumentStore.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// DocumentStore keeps documents in a map. Bodies are copied on the way in
// and out so callers cannot alias stored state.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]domain.Document)}
}

// Load implements domain.DocumentStore.
func (s *DocumentStore) Load(_ context.Context, key string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return domain.Document{}, fmt.Errorf("memory: load %s: %w", key, domain.ErrNotFound)
	}
	return clone(doc), nil
}

// Save implements domain.DocumentStore.
func (s *DocumentStore) Save(_ context.Context, doc domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.docs[doc.Key]
	if stored.Version != doc.Version {
		return domain.Document{}, fmt.Errorf("memory: save %s at version %d (stored %d): %w",
			doc.Key, doc.Version, stored.Version, domain.ErrVersionConflict)
	}

	doc.Version++
	doc = clone(doc)
	s.docs[doc.Key] = doc
	return clone(doc), nil
}

func clone(doc domain.Document) domain.Document {
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)
	doc.Body = body
	return doc
}
