package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

func TestDocumentStore_LoadMissing(t *testing.T) {
	s := NewDocumentStore()
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveCompareAndSwap(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, domain.Document{Key: "k", Body: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = s.Save(ctx, domain.Document{Key: "k", Version: 0, Body: []byte(`{"a":2}`)})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	saved, err = s.Save(ctx, domain.Document{Key: "k", Version: 1, Body: []byte(`{"a":3}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3}`, string(got.Body))
}

func TestDocumentStore_BodiesAreCopied(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	body := []byte(`{"a":1}`)

	_, err := s.Save(ctx, domain.Document{Key: "k", Body: body})
	require.NoError(t, err)
	body[5] = '9'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Body))
}
