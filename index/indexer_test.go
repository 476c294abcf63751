package index

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/ai/mock"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage/sqlite"
)

const testModel = "test-embedder"

func newTestIndexer(t *testing.T) (*Indexer, *sqlite.Backend, *mock.MockEmbedder) {
	t.Helper()
	backend, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	ix, err := NewIndexer(backend.Documents(), backend.Embeddings(), embedder, testModel)
	require.NoError(t, err)
	return ix, backend, embedder
}

func seedTextDocument(t *testing.T, backend *sqlite.Backend, providerID, text string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := backend.Documents().UpsertDocument(ctx, &core.Document{
		ProviderID: providerID,
		Title:      "Stuk " + providerID,
		URL:        "https://example.test/" + providerID,
	})
	require.NoError(t, err)
	if text != "" {
		require.NoError(t, backend.Documents().UpdateContent(ctx, id, text))
	}
	return id
}

func TestIndexDocument(t *testing.T) {
	ix, backend, _ := newTestIndexer(t)
	ctx := context.Background()

	longText := strings.Repeat("De raad besluit over het bestemmingsplan voor de binnenstad. ", 20)
	doc := seedTextDocument(t, backend, "d1", longText)

	n, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	count, err := backend.Embeddings().CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestIndexDocumentWithoutText(t *testing.T) {
	ix, backend, embedder := newTestIndexer(t)
	doc := seedTextDocument(t, backend, "empty", "")

	n, err := ix.IndexDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}

func TestIndexDocumentReplacesOldChunks(t *testing.T) {
	ix, backend, _ := newTestIndexer(t)
	ctx := context.Background()

	doc := seedTextDocument(t, backend, "d2", strings.Repeat("Eerste versie van de tekst. ", 30))
	first, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)
	require.Greater(t, first, 1)

	require.NoError(t, backend.Documents().UpdateContent(ctx, doc, "Korte tweede versie."))
	second, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, second)

	count, err := backend.Embeddings().CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexAllSkipsIndexed(t *testing.T) {
	ix, backend, embedder := newTestIndexer(t)
	ctx := context.Background()

	seedTextDocument(t, backend, "a", "Verslag over de begroting van het komende jaar.")
	seedTextDocument(t, backend, "b", "Motie over het groenbeheer in de wijk.")
	seedTextDocument(t, backend, "c", "")

	docs, chunks, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
	assert.Equal(t, 2, chunks)

	// Second run without reindex leaves everything alone.
	calls := embedder.CallCount()
	docs, chunks, err = ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
	assert.Equal(t, calls, embedder.CallCount())
}

func TestIndexAllReindexSkipsUnchangedContent(t *testing.T) {
	ix, backend, embedder := newTestIndexer(t)
	ctx := context.Background()

	changed := seedTextDocument(t, backend, "x", "Oorspronkelijke tekst over de jaarrekening.")
	seedTextDocument(t, backend, "y", "Stabiele tekst over het subsidiebeleid.")

	_, _, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)

	require.NoError(t, backend.Documents().UpdateContent(ctx, changed, "Gewijzigde tekst over de jaarrekening."))

	calls := embedder.CallCount()
	docs, _, err := ix.IndexAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, calls+1, embedder.CallCount())
}

func TestNewIndexerValidation(t *testing.T) {
	backend, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewIndexer(nil, backend.Embeddings(), mock.NewMockEmbedder(), testModel)
	assert.ErrorIs(t, err, ErrDocumentStoreRequired)
	_, err = NewIndexer(backend.Documents(), nil, mock.NewMockEmbedder(), testModel)
	assert.ErrorIs(t, err, ErrEmbeddingStoreRequired)
	_, err = NewIndexer(backend.Documents(), backend.Embeddings(), nil, testModel)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
