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


// Package imagestore deduplicates extracted document images by perceptual
// hash. Visually identical images share one file under shared/ and one
// unique_images row; reference counting decides when the file can go.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// Store is a content-addressed image store. File layout under the root
// directory:
//
//	shared/<phash><ext>          deduplicated images
//	doc_<id>/image_<idx><ext>    fallback for images that failed to hash
//
// Paths recorded in storage are relative to the root, so the directory can be
// relocated without touching rows.
type Store struct {
	rows   storage.ImageRowStore
	root   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore creates an image store rooted at dir, creating it if needed.
func NewStore(rows storage.ImageRowStore, dir string, opts ...Option) (*Store, error) {
	if rows == nil {
		return nil, errors.New("image row store is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "shared"), 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}

	s := &Store{
		rows:   rows,
		root:   dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put stores one extracted image for a document and returns its reference.
// Images whose perceptual hash is already known get a new reference row and
// no file write. Images that cannot be decoded or hashed fall back to a
// per-document file with no dedup.
func (s *Store) Put(ctx context.Context, documentID int64, imageIndex int, data []byte, ext string) (*core.ImageRef, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("image decode failed, storing standalone",
			"document_id", documentID, "index", imageIndex, "err", err)
		return s.putStandalone(ctx, documentID, imageIndex, data, ext)
	}
	if ext == "" {
		ext = "." + format
	}
	ext = normalizeExt(ext)

	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		s.logger.Warn("perceptual hash failed, storing standalone",
			"document_id", documentID, "index", imageIndex, "err", err)
		return s.putStandalone(ctx, documentID, imageIndex, data, ext)
	}
	hash := fmt.Sprintf("%016x", phash.GetHash())

	ref := &core.ImageRef{DocumentID: documentID, ImageIndex: imageIndex}

	// Fast path: the hash is already stored, only rows change.
	if _, err := s.rows.AddRef(ctx, hash, ref); err == nil {
		s.logger.Debug("image deduplicated", "hash", hash, "document_id", documentID)
		return ref, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	relPath := filepath.Join("shared", hash+ext)
	if err := s.writeFile(relPath, data); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	unique := &core.UniqueImage{
		Hash:     hash,
		FilePath: relPath,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		FileSize: int64(len(data)),
	}
	if err := s.rows.InsertUniqueWithRef(ctx, unique, ref); err == nil {
		return ref, nil
	} else if _, addErr := s.rows.AddRef(ctx, hash, ref); addErr == nil {
		// Lost the insert race to a concurrent worker; the hash row exists
		// now and the file on disk is shared either way.
		return ref, nil
	} else {
		return nil, err
	}
}

func (s *Store) putStandalone(ctx context.Context, documentID int64, imageIndex int, data []byte, ext string) (*core.ImageRef, error) {
	ext = normalizeExt(ext)
	relPath := filepath.Join(fmt.Sprintf("doc_%d", documentID), fmt.Sprintf("image_%d%s", imageIndex, ext))
	if err := s.writeFile(relPath, data); err != nil {
		return nil, err
	}

	ref := &core.ImageRef{
		DocumentID: documentID,
		ImageIndex: imageIndex,
		FilePath:   relPath,
	}
	if err := s.rows.InsertStandaloneRef(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// writeFile writes data at the relative path unless a file is already there.
// Shared files are content-addressed, so the first writer wins and later
// writers of the same hash keep their hands off.
func (s *Store) writeFile(relPath string, data []byte) error {
	abs := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("write image %s: %w", relPath, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write image %s: %w", relPath, err)
	}
	return nil
}

// Release drops one reference. When it was the last reference to its file the
// file is removed from disk and its relative path returned; otherwise the
// returned path is empty.
func (s *Store) Release(ctx context.Context, refID int64) (string, error) {
	path, err := s.rows.ReleaseRef(ctx, refID)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if err := os.Remove(filepath.Join(s.root, path)); err != nil && !os.IsNotExist(err) {
		// The rows are already gone; an undeletable file is an orphan on
		// disk, not an inconsistency in the store.
		s.logger.Warn("failed to remove image file", "path", path, "err", err)
	}
	return path, nil
}

// ReleaseForDocument drops every image reference of a document and returns
// the relative paths of files that were removed.
func (s *Store) ReleaseForDocument(ctx context.Context, documentID int64) ([]string, error) {
	refs, err := s.rows.RefsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, ref := range refs {
		path, err := s.Release(ctx, ref.ID)
		if err != nil {
			return removed, fmt.Errorf("release ref %d: %w", ref.ID, err)
		}
		if path != "" {
			removed = append(removed, path)
		}
	}

	// The per-document fallback directory is empty once its refs are gone.
	_ = os.Remove(filepath.Join(s.root, fmt.Sprintf("doc_%d", documentID)))

	return removed, nil
}

// GetByHash retrieves a unique image record by perceptual hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*core.UniqueImage, error) {
	return s.rows.FindUniqueByHash(ctx, hash)
}

// PendingOCR lists unique images still waiting for text recognition.
func (s *Store) PendingOCR(ctx context.Context) ([]*core.UniqueImage, error) {
	return s.rows.PendingOCR(ctx)
}

// SetOCRResult records recognized text for a unique image. Every document
// referencing the hash sees the same text.
func (s *Store) SetOCRResult(ctx context.Context, uniqueImageID int64, text string, status core.OCRStatus) error {
	return s.rows.SetUniqueOCR(ctx, uniqueImageID, text, status)
}

// AbsolutePath resolves a stored relative path against the store root.
func (s *Store) AbsolutePath(relPath string) string {
	return filepath.Join(s.root, relPath)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return strings.ToLower(ext)
}
