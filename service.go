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


package raadsync

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/raadsync/ai"
	"github.com/poiesic/raadsync/ai/openai"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/imagestore"
	"github.com/poiesic/raadsync/index"
	"github.com/poiesic/raadsync/storage"
	"github.com/poiesic/raadsync/storage/sqlite"
	"github.com/poiesic/raadsync/syncer"
)

// Service wires the SQLite store, the image store and the AI provider
// together and is the entry point for embedding applications.
type Service struct {
	store    *sqlite.Backend
	images   *imagestore.Store
	provider ai.Provider
	model    string
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig  *ai.Config
	imagesDir string
}

// WithAIConfig sets the embedding and OCR endpoints.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithImagesDir sets where extracted images are stored on disk.
// Default is an images directory next to the database file.
func WithImagesDir(dir string) ServiceOption {
	return func(o *serviceOptions) {
		if dir != "" {
			o.imagesDir = dir
		}
	}
}

// NewService opens the database at dbPath, creating it and running migrations
// when needed.
func NewService(dbPath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig:  ai.DefaultConfig(),
		imagesDir: filepath.Join(filepath.Dir(dbPath), "images"),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	images, err := imagestore.NewStore(backend.ImageRows(), options.imagesDir)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider, err := openai.NewProvider(options.aiConfig)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Service{
		store:    backend,
		images:   images,
		provider: provider,
		model:    options.aiConfig.EmbeddingModel,
		logger:   slog.Default(),
	}, nil
}

// Close releases the AI provider and the database.
func (s *Service) Close() error {
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing storage backend", "err", err)
		return err
	}
	return nil
}

// Store exposes the storage repositories.
func (s *Service) Store() storage.Store {
	return s.store
}

// Images exposes the content-addressed image store.
func (s *Service) Images() *imagestore.Store {
	return s.images
}

// NewSyncer builds a sync orchestrator around the service's stores. The OCR
// phase is enabled automatically when the AI provider has a recognizer.
func (s *Service) NewSyncer(fetcher syncer.Fetcher, extractor syncer.Extractor, opts ...syncer.Option) (*syncer.Syncer, error) {
	indexer, err := s.newIndexer()
	if err != nil {
		return nil, err
	}
	if recognizer := s.provider.Recognizer(); recognizer != nil {
		opts = append([]syncer.Option{syncer.WithRecognizer(recognizer)}, opts...)
	}
	return syncer.NewSyncer(s.store, s.images, indexer, fetcher, extractor, opts...)
}

// GetProgress retrieves a sync checkpoint by ID.
func (s *Service) GetProgress(ctx context.Context, syncID string) (*core.SyncProgress, error) {
	return s.store.Checkpoints().GetProgress(ctx, syncID)
}

// IndexDocument chunks and embeds one document, replacing its existing
// chunks. Returns the number of chunks stored.
func (s *Service) IndexDocument(ctx context.Context, documentID int64) (int, error) {
	indexer, err := s.newIndexer()
	if err != nil {
		return 0, err
	}
	return indexer.IndexDocument(ctx, documentID)
}

// IndexAll indexes every document with text content. With reindex set,
// documents whose content changed since indexing are re-embedded.
// Returns the number of documents indexed and chunks created.
func (s *Service) IndexAll(ctx context.Context, reindex bool) (int, int, error) {
	indexer, err := s.newIndexer()
	if err != nil {
		return 0, 0, err
	}
	return indexer.IndexAll(ctx, reindex)
}

// Search runs a semantic query over the indexed documents.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]core.SearchHit, error) {
	searcher, err := index.NewSearcher(s.store.Documents(), s.store.Embeddings(), s.provider.Embedder())
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, query, limit)
}

// GetImageByHash retrieves a unique image, with any OCR text, by its
// perceptual hash.
func (s *Service) GetImageByHash(ctx context.Context, hash string) (*core.UniqueImage, error) {
	return s.images.GetByHash(ctx, hash)
}

// ReleaseImagesForDocument drops all of a document's image references and
// removes files that no other document still points at. Returns the removed
// file paths.
func (s *Service) ReleaseImagesForDocument(ctx context.Context, documentID int64) ([]string, error) {
	return s.images.ReleaseForDocument(ctx, documentID)
}

func (s *Service) newIndexer() (*index.Indexer, error) {
	return index.NewIndexer(s.store.Documents(), s.store.Embeddings(), s.provider.Embedder(), s.model)
}
