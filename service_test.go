package raadsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/index"
	"github.com/poiesic/raadsync/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()

	svc, err := NewService(filepath.Join(dir, "raadsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNewServiceCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(filepath.Join(dir, "raadsync.db"))
	require.NoError(t, err)
	defer svc.Close()

	_, err = os.Stat(filepath.Join(dir, "raadsync.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "images", "shared"))
	assert.NoError(t, err)
}

func TestGetProgressUnknownSync(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetProgress(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(t)

	hits, err := svc.Search(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, index.ErrEmptyQuery)
	assert.Empty(t, hits)
}

func TestReleaseImagesForDocumentEmpty(t *testing.T) {
	svc := newTestService(t)

	removed, err := svc.ReleaseImagesForDocument(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
