package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

func TestDocumentStore_RoundTripSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s, err := NewDocumentStore(dir)
	require.NoError(t, err)
	saved, err := s.Save(ctx, domain.Document{Key: "market:m1", Body: []byte(`{"id":"m1"}`), UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	reopened, err := NewDocumentStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "market:m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.JSONEq(t, `{"id":"m1"}`, string(got.Body))
	assert.True(t, at.Equal(got.UpdatedAt))
}

func TestDocumentStore_VersionConflict(t *testing.T) {
	s, err := NewDocumentStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Save(ctx, domain.Document{Key: "k", Body: []byte(`{}`)})
	require.NoError(t, err)
	_, err = s.Save(ctx, domain.Document{Key: "k", Version: 0, Body: []byte(`{"x":1}`)})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.Body))
}

func TestDocumentStore_LoadMissing(t *testing.T) {
	s, err := NewDocumentStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDocumentStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	var version int64
	for i := 0; i < 3; i++ {
		doc, err := s.Save(ctx, domain.Document{Key: "auction:main", Version: version, Body: []byte(`{}`)})
		require.NoError(t, err)
		version = doc.Version
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "auction%3Amain.json", entries[0].Name())
	_, err = os.Stat(filepath.Join(dir, entries[0].Name()))
	assert.NoError(t, err)
}
