package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/core"
)

const testModel = "nomic-embed-text"

func TestReplaceChunksRoundTrip(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Embeddings()
	doc := seedDocument(t, backend, "doc-emb")
	require.NoError(t, backend.Documents().UpdateContent(ctx, doc, "inhoud van het stuk"))

	chunks := []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "inhoud van", Vector: []float32{0.1, 0.2, 0.3}},
		{ChunkIndex: 1, ChunkText: "het stuk", Vector: []float32{-0.4, 0.5, 0.6}},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, chunks))

	stored, err := repo.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, stored[0].Vector)
	assert.Equal(t, "het stuk", stored[1].ChunkText)
	assert.Equal(t, testModel, stored[0].Model)

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReplaceChunksIsAtomicSwap(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Embeddings()
	doc := seedDocument(t, backend, "doc-swap")

	old := []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "old 0", Vector: []float32{1}},
		{ChunkIndex: 1, ChunkText: "old 1", Vector: []float32{2}},
		{ChunkIndex: 2, ChunkText: "old 2", Vector: []float32{3}},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, old))

	// A shorter replacement must not leave stale tail chunks behind.
	require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "new 0", Vector: []float32{9}},
	}))

	stored, err := repo.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "new 0", stored[0].ChunkText)
}

func TestIndexedDocumentIDsTracksContentHash(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Embeddings()
	doc := seedDocument(t, backend, "doc-hash")
	require.NoError(t, backend.Documents().UpdateContent(ctx, doc, "eerste versie"))

	require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "eerste versie", Vector: []float32{1, 2}},
	}))

	indexed, err := repo.IndexedDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.HashContent("eerste versie"), indexed[doc])

	// When the document text changes the recorded hash diverges until a
	// reindex runs.
	require.NoError(t, backend.Documents().UpdateContent(ctx, doc, "tweede versie"))
	loaded, err := backend.Documents().GetDocument(ctx, doc)
	require.NoError(t, err)
	assert.NotEqual(t, indexed[doc], loaded.ContentHash)

	require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "tweede versie", Vector: []float32{3, 4}},
	}))
	indexed, err = repo.IndexedDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded.ContentHash, indexed[doc])
}

func TestDeleteChunks(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	repo := backend.Embeddings()

	var docs []int64
	for i := 0; i < 3; i++ {
		doc := seedDocument(t, backend, fmt.Sprintf("doc-del-%d", i))
		docs = append(docs, doc)
		require.NoError(t, repo.ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
			{ChunkIndex: 0, ChunkText: "tekst", Vector: []float32{float32(i)}},
		}))
	}

	require.NoError(t, repo.DeleteChunks(ctx, docs[1]))

	indexed, err := repo.IndexedDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, indexed, 2)
	_, ok := indexed[docs[1]]
	assert.False(t, ok)
}

func TestReplaceChunksRejectsInvalid(t *testing.T) {
	backend, err := NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	doc := seedDocument(t, backend, "doc-bad")

	err = backend.Embeddings().ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "", Vector: []float32{1}},
	})
	assert.ErrorIs(t, err, core.ErrEmptyChunk)

	err = backend.Embeddings().ReplaceChunks(ctx, doc, testModel, []*core.EmbeddingChunk{
		{ChunkIndex: 0, ChunkText: "x", Vector: nil},
	})
	assert.ErrorIs(t, err, core.ErrEmptyVector)
}
