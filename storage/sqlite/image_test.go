package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

func seedDocument(t *testing.T, backend *Backend, providerID string) int64 {
	t.Helper()
	id, err := backend.Documents().UpsertDocument(context.Background(), &core.Document{
		ProviderID: providerID,
		Title:      "doc " + providerID,
	})
	require.NoError(t, err)
	return id
}

func TestImageDedupLifecycle(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.ImageRows()
	docA := seedDocument(t, backend, "doc-a")
	docB := seedDocument(t, backend, "doc-b")

	img := &core.UniqueImage{
		Hash:     "a1b2c3d4e5f60718",
		FilePath: "shared/a1b2c3d4e5f60718.png",
		Width:    640,
		Height:   480,
		FileSize: 12345,
	}
	refA := &core.ImageRef{DocumentID: docA, ImageIndex: 0}
	require.NoError(t, repo.InsertUniqueWithRef(ctx, img, refA))
	assert.NotZero(t, img.ID)
	assert.Equal(t, 1, img.ReferenceCount)
	assert.Equal(t, img.ID, refA.UniqueImageID)

	// Second document carries the same image: count goes up, no new file.
	refB := &core.ImageRef{DocumentID: docB, ImageIndex: 3}
	updated, err := repo.AddRef(ctx, img.Hash, refB)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ReferenceCount)
	assert.Equal(t, img.FilePath, refB.FilePath)

	found, err := repo.FindUniqueByHash(ctx, img.Hash)
	require.NoError(t, err)
	assert.Equal(t, 2, found.ReferenceCount)

	// First release: the unique image survives, no path to delete.
	path, err := repo.ReleaseRef(ctx, refA.ID)
	require.NoError(t, err)
	assert.Empty(t, path)

	// Last release: the row is gone and the file path comes back.
	path, err = repo.ReleaseRef(ctx, refB.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared/a1b2c3d4e5f60718.png", path)

	_, err = repo.FindUniqueByHash(ctx, img.Hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStandaloneRefLifecycle(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.ImageRows()
	doc := seedDocument(t, backend, "doc-s")

	ref := &core.ImageRef{
		DocumentID: doc,
		ImageIndex: 1,
		FilePath:   "doc_7/image_1.png",
	}
	require.NoError(t, repo.InsertStandaloneRef(ctx, ref))
	assert.True(t, ref.Standalone())

	refs, err := repo.RefsForDocument(ctx, doc)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Zero(t, refs[0].UniqueImageID)

	// Standalone files belong to their single ref.
	path, err := repo.ReleaseRef(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc_7/image_1.png", path)
}

func TestRefsForDocumentOrdered(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.ImageRows()
	doc := seedDocument(t, backend, "doc-o")

	for _, idx := range []int{2, 0, 1} {
		require.NoError(t, repo.InsertStandaloneRef(ctx, &core.ImageRef{
			DocumentID: doc,
			ImageIndex: idx,
			FilePath:   "x",
		}))
	}

	refs, err := repo.RefsForDocument(ctx, doc)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	for i, ref := range refs {
		assert.Equal(t, i, ref.ImageIndex)
	}
}

func TestAddRefUnknownHash(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	_, err = backend.ImageRows().AddRef(context.Background(), "deadbeef00000000", &core.ImageRef{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOCRQueue(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.ImageRows()
	doc := seedDocument(t, backend, "doc-ocr")

	first := &core.UniqueImage{Hash: "1111111111111111", FilePath: "shared/1.png", Width: 10, Height: 10, FileSize: 100}
	require.NoError(t, repo.InsertUniqueWithRef(ctx, first, &core.ImageRef{DocumentID: doc, ImageIndex: 0}))
	second := &core.UniqueImage{Hash: "2222222222222222", FilePath: "shared/2.png", Width: 10, Height: 10, FileSize: 100}
	require.NoError(t, repo.InsertUniqueWithRef(ctx, second, &core.ImageRef{DocumentID: doc, ImageIndex: 1}))

	pending, err := repo.PendingOCR(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, repo.SetUniqueOCR(ctx, first.ID, "besluitenlijst", core.OCRStatusDone))

	pending, err = repo.PendingOCR(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	done, err := repo.FindUniqueByHash(ctx, first.Hash)
	require.NoError(t, err)
	assert.Equal(t, "besluitenlijst", done.OCRText)
	assert.Equal(t, core.OCRStatusDone, done.OCRStatus)

	err = repo.SetUniqueOCR(ctx, 9999, "", core.OCRStatusFailed)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
