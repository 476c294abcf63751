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
	"sort"
	"strings"

	"github.com/poiesic/raadsync/ai"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// DefaultSearchLimit caps results when the caller passes no limit.
const DefaultSearchLimit = 10

// Searcher runs semantic queries over the stored chunks. Search is a full
// linear scan; the corpus is one municipality's council records, which fits
// in memory with room to spare.
type Searcher struct {
	docs       storage.DocumentStore
	embeddings storage.EmbeddingStore
	embedder   ai.Embedder
	logger     *slog.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher) error

// WithSearcherLogger sets a custom logger.
// Default is slog.Default().
func WithSearcherLogger(logger *slog.Logger) SearcherOption {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a semantic searcher.
func NewSearcher(docs storage.DocumentStore, embeddings storage.EmbeddingStore, embedder ai.Embedder, opts ...SearcherOption) (*Searcher, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		docs:       docs,
		embeddings: embeddings,
		embedder:   embedder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search embeds the query once, scores every stored chunk by cosine
// similarity and returns the top hits enriched with document title and
// meeting date. Equal similarities keep insertion order.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]core.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := s.embeddings.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	hits := make([]core.SearchHit, 0, len(chunks))
	for _, chunk := range chunks {
		hits = append(hits, core.SearchHit{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			ChunkText:  chunk.ChunkText,
			Similarity: CosineSimilarity(queryVec, chunk.Vector),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	s.enrich(ctx, hits)
	s.logger.Debug("search complete", "query_len", len(query), "hits", len(hits))
	return hits, nil
}

// enrich resolves document titles and meeting dates for the top hits.
// Metadata gaps degrade the hit, not the search.
func (s *Searcher) enrich(ctx context.Context, hits []core.SearchHit) {
	docCache := make(map[int64]*core.Document)

	for i := range hits {
		doc, ok := docCache[hits[i].DocumentID]
		if !ok {
			var err error
			doc, err = s.docs.GetDocument(ctx, hits[i].DocumentID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				s.logger.Warn("failed to enrich hit", "document_id", hits[i].DocumentID, "err", err)
				continue
			}
			docCache[hits[i].DocumentID] = doc
		}

		hits[i].DocumentTitle = doc.Title
		if doc.MeetingID != 0 {
			if meeting, err := s.docs.GetMeeting(ctx, doc.MeetingID); err == nil {
				hits[i].MeetingDate = meeting.Date
			}
		}
	}
}
