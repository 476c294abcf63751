package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/storage"
)

// embeddingRepo implements storage.EmbeddingStore on SQLite.
type embeddingRepo struct {
	backend *Backend
}

var _ storage.EmbeddingStore = (*embeddingRepo)(nil)

// ReplaceChunks deletes the document's chunks for the given model and inserts
// the new set in one transaction. The document's current content hash is
// recorded on every chunk row so re-index runs can skip unchanged documents.
func (r *embeddingRepo) ReplaceChunks(ctx context.Context, documentID int64, model string, chunks []*core.EmbeddingChunk) error {
	for _, c := range chunks {
		if err := core.ValidateEmbeddingChunk(c); err != nil {
			return err
		}
	}

	return r.backend.withTx(ctx, func(tx *sql.Tx) error {
		var contentHash sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT content_hash FROM documents WHERE id = ?`, documentID).Scan(&contentHash)
		if err == sql.ErrNoRows {
			return fmt.Errorf("document %d: %w", documentID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM embeddings WHERE document_id = ? AND model = ?`, documentID, model); err != nil {
			return fmt.Errorf("delete chunks doc=%d: %w", documentID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (document_id, chunk_index, chunk_text, embedding, model, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			blob := storage.MarshalVector(c.Vector)
			res, err := stmt.ExecContext(ctx, documentID, c.ChunkIndex, c.ChunkText, blob, model, contentHash)
			if err != nil {
				return fmt.Errorf("insert chunk %d of doc %d: %w", c.ChunkIndex, documentID, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			c.ID = id
			c.DocumentID = documentID
			c.Model = model
		}
		return nil
	})
}

// DeleteChunks removes all chunks of a document, across models.
func (r *embeddingRepo) DeleteChunks(ctx context.Context, documentID int64) error {
	_, err := r.backend.db.ExecContext(ctx, `
		DELETE FROM embeddings WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks doc=%d: %w", documentID, err)
	}
	return nil
}

// AllChunks returns every stored chunk in insertion order. The semantic
// searcher scans these; the set is small enough to hold in memory.
func (r *embeddingRepo) AllChunks(ctx context.Context) ([]*core.EmbeddingChunk, error) {
	rows, err := r.backend.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, chunk_text, embedding, model, created_at
		FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.EmbeddingChunk
	for rows.Next() {
		var c core.EmbeddingChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.ChunkText, &blob, &c.Model, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Vector, err = storage.UnmarshalVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// IndexedDocumentIDs returns the documents that have chunks, mapped to the
// content hash recorded when they were indexed.
func (r *embeddingRepo) IndexedDocumentIDs(ctx context.Context) (map[int64]string, error) {
	rows, err := r.backend.db.QueryContext(ctx, `
		SELECT document_id, MAX(COALESCE(content_hash, '')) FROM embeddings GROUP BY document_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexed := make(map[int64]string)
	for rows.Next() {
		var id int64
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		indexed[id] = hash
	}
	return indexed, rows.Err()
}

// CountChunks returns the total number of stored chunks.
func (r *embeddingRepo) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := r.backend.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}
