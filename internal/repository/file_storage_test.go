package repository

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStorage(t *testing.T) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(t.TempDir(), "test")
	require.NoError(t, err)
	return s.(*FileStorage)
}

func TestFileStorageSaveLoad(t *testing.T) {
	s := newTestFileStorage(t)
	ctx := context.Background()

	listings := []models.ListingRecord{{Symbol: "ACME"}, {Symbol: "BETA"}}
	require.NoError(t, s.Save(ctx, models.NamespaceListings, "current/2026-10-16", listings))

	doc, err := s.Load(ctx, models.NamespaceListings, "current/2026-10-16", 0)
	require.NoError(t, err)
	assert.Equal(t, "test", doc.Source)
	assert.Equal(t, models.DocumentVersion, doc.Version)
	assert.Equal(t, 2, doc.Count)

	var got []models.ListingRecord
	require.NoError(t, doc.Decode(&got))
	assert.Equal(t, listings, got)
}

func TestFileStorageLoadIsIdempotent(t *testing.T) {
	s := newTestFileStorage(t)
	ctx := context.Background()

	pred := models.ConsensusPrediction{Symbol: "ACME", Date: "2026-10-16", Recommendation: models.RecBuy}
	require.NoError(t, s.Save(ctx, models.NamespacePredictions, "2026-10-16/ACME", pred))

	first, err := s.Load(ctx, models.NamespacePredictions, "2026-10-16/ACME", 0)
	require.NoError(t, err)
	second, err := s.Load(ctx, models.NamespacePredictions, "2026-10-16/ACME", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.Count)
}

func TestFileStorageMissingAndStale(t *testing.T) {
	s := newTestFileStorage(t)
	ctx := context.Background()

	_, err := s.Load(ctx, models.NamespaceRuns, "2026-10-16", 0)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Save(ctx, models.NamespaceRuns, "2026-10-16", map[string]string{"id": "r1"}))

	now = now.Add(2 * time.Hour)
	_, err = s.Load(ctx, models.NamespaceRuns, "2026-10-16", time.Hour)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.Load(ctx, models.NamespaceRuns, "2026-10-16", 3*time.Hour)
	assert.NoError(t, err)
}

func TestFileStorageRejectsBadKeys(t *testing.T) {
	s := newTestFileStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a//b", "a/./b"} {
		err := s.Save(ctx, models.NamespaceListings, key, 1)
		assert.ErrorIs(t, err, errs.ErrInvalid, "key %q", key)
	}
	assert.ErrorIs(t, s.Save(ctx, "../x", "k", 1), errs.ErrInvalid)
}

func TestFileStorageOverwriteLeavesNoTempFiles(t *testing.T) {
	s := newTestFileStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Save(ctx, models.NamespacePredictions, "2026-10-16/ACME", map[string]int{"n": i})
		}(i)
	}
	wg.Wait()

	doc, err := s.Load(ctx, models.NamespacePredictions, "2026-10-16/ACME", 0)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, doc.Decode(&got))
	assert.Contains(t, got, "n")

	entries, err := os.ReadDir(filepath.Join(s.dir, models.NamespacePredictions, "2026-10-16"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
