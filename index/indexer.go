// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/poiesic/raadsync/ai"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// Indexer chunks document text and stores embedding vectors. Embedding calls
// go through a mutex: local embedding backends are stateful and serve one
// request well, many requests badly.
type Indexer struct {
	docs       storage.DocumentStore
	embeddings storage.EmbeddingStore
	embedder   ai.Embedder
	model      string
	logger     *slog.Logger

	embedMu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer) error

// WithIndexerLogger sets a custom logger.
// Default is slog.Default().
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates an indexer writing chunks for the given embedding model.
func NewIndexer(docs storage.DocumentStore, embeddings storage.EmbeddingStore, embedder ai.Embedder, model string, opts ...IndexerOption) (*Indexer, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	ix := &Indexer{
		docs:       docs,
		embeddings: embeddings,
		embedder:   embedder,
		model:      model,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// IndexDocument chunks and embeds one document's text, replacing any chunks
// it had before. Returns the number of chunks written. Documents without text
// index to zero chunks without error.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID int64) (int, error) {
	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if doc.TextContent == "" {
		ix.logger.Debug("no text content, skipping", "document_id", documentID)
		return 0, nil
	}

	chunks := Chunk(doc.TextContent)
	if len(chunks) == 0 {
		if err := ix.embeddings.DeleteChunks(ctx, documentID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	vectors, err := ix.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, ErrEmbeddingCountMismatch
	}

	records := make([]*core.EmbeddingChunk, len(chunks))
	for i, text := range chunks {
		records[i] = &core.EmbeddingChunk{
			ChunkIndex: i,
			ChunkText:  text,
			Vector:     vectors[i],
		}
	}
	if err := ix.embeddings.ReplaceChunks(ctx, documentID, ix.model, records); err != nil {
		return 0, err
	}

	ix.logger.Info("indexed document", "document_id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// IndexAll indexes every document with text content. Already-indexed
// documents are skipped; with reindex set, only documents whose content hash
// is unchanged since their last indexing are skipped.
func (ix *Indexer) IndexAll(ctx context.Context, reindex bool) (int, int, error) {
	docs, err := ix.docs.DocumentsWithText(ctx)
	if err != nil {
		return 0, 0, err
	}
	indexed, err := ix.embeddings.IndexedDocumentIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	var totalDocs, totalChunks int
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return totalDocs, totalChunks, err
		}

		if hash, ok := indexed[doc.ID]; ok {
			if !reindex {
				continue
			}
			if hash != "" && hash == doc.ContentHash {
				ix.logger.Debug("content unchanged, skipping", "document_id", doc.ID)
				continue
			}
		}

		n, err := ix.IndexDocument(ctx, doc.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return totalDocs, totalChunks, err
		}
		if n > 0 {
			totalDocs++
			totalChunks += n
		}
	}

	ix.logger.Info("indexing complete", "documents", totalDocs, "chunks", totalChunks)
	return totalDocs, totalChunks, nil
}

func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ix.embedMu.Lock()
	defer ix.embedMu.Unlock()
	return ix.embedder.EmbedTexts(ctx, texts)
}
