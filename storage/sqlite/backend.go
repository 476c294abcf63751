package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/raadsync/storage"
)

const (
	// busyTimeout absorbs transient lock contention between download workers
	// instead of failing writes immediately.
	busyTimeout = 5000 * time.Millisecond

	maxOpenConns = 16
)

// Backend wraps a SQLite database and provides the repository aggregate.
// The database runs in WAL mode so readers proceed while workers write; each
// worker borrows its own connection from the pool.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*Backend)(nil)

// Open opens (creating if needed) a SQLite database at the given path.
func Open(path string) (*Backend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
	return open(dsn)
}

// OpenMemory opens a private in-memory database, for tests. The shared cache
// keeps all pooled connections on the same database instance.
func OpenMemory(name string) (*Backend, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=%d&_foreign_keys=on",
		name, busyTimeout.Milliseconds())
	return open(dsn)
}

func open(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	b := &Backend{
		db:     db,
		logger: slog.Default(),
	}

	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// migrate creates the schema. Idempotent.
func (b *Backend) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS gremia (
			id INTEGER PRIMARY KEY,
			provider_id TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			kind TEXT,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS meetings (
			id INTEGER PRIMARY KEY,
			provider_id TEXT UNIQUE NOT NULL,
			gremium_id INTEGER,
			title TEXT NOT NULL,
			date TEXT,
			location TEXT,
			status TEXT,
			FOREIGN KEY (gremium_id) REFERENCES gremia(id)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY,
			provider_id TEXT UNIQUE NOT NULL,
			meeting_id INTEGER,
			title TEXT NOT NULL,
			url TEXT,
			text_content TEXT,
			content_hash TEXT,
			download_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (meeting_id) REFERENCES meetings(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_progress (
			id INTEGER PRIMARY KEY,
			sync_id TEXT UNIQUE NOT NULL,
			sync_type TEXT NOT NULL,
			phase TEXT NOT NULL,
			date_from TEXT,
			date_to TEXT,
			total_items INTEGER NOT NULL DEFAULT 0,
			processed_items INTEGER NOT NULL DEFAULT 0,
			last_processed_id INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS unique_images (
			id INTEGER PRIMARY KEY,
			hash TEXT UNIQUE NOT NULL,
			file_path TEXT NOT NULL,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			file_size INTEGER NOT NULL DEFAULT 0,
			ocr_text TEXT,
			ocr_status TEXT NOT NULL DEFAULT 'pending',
			reference_count INTEGER NOT NULL DEFAULT 0 CHECK (reference_count >= 0),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS document_images (
			id INTEGER PRIMARY KEY,
			document_id INTEGER NOT NULL,
			image_index INTEGER NOT NULL,
			hash TEXT,
			unique_image_id INTEGER,
			file_path TEXT NOT NULL,
			ocr_text TEXT,
			ocr_status TEXT NOT NULL DEFAULT 'pending',
			FOREIGN KEY (document_id) REFERENCES documents(id),
			FOREIGN KEY (unique_image_id) REFERENCES unique_images(id)
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id INTEGER PRIMARY KEY,
			document_id INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			model TEXT NOT NULL,
			content_hash TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (document_id, chunk_index, model),
			FOREIGN KEY (document_id) REFERENCES documents(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_progress_status ON sync_progress(status)`,
		`CREATE INDEX IF NOT EXISTS idx_unique_images_hash ON unique_images(hash)`,
		`CREATE INDEX IF NOT EXISTS idx_document_images_document ON document_images(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_images_hash ON document_images(hash)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_document ON embeddings(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(download_status)`,
	}

	for _, stmt := range schema {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Error("transaction rollback failed", "err", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// Checkpoints returns the sync progress repository.
func (b *Backend) Checkpoints() storage.CheckpointStore {
	return &checkpointRepo{backend: b}
}

// Documents returns the provider metadata repository.
func (b *Backend) Documents() storage.DocumentStore {
	return &documentRepo{backend: b}
}

// ImageRows returns the image reference repository.
func (b *Backend) ImageRows() storage.ImageRowStore {
	return &imageRepo{backend: b}
}

// Embeddings returns the embedding chunk repository.
func (b *Backend) Embeddings() storage.EmbeddingStore {
	return &embeddingRepo{backend: b}
}

// VerifyIntegrity cross-checks reference counts against reference rows and
// looks for orphaned rows. Warnings are returned, not raised: committed work
// is never rolled back, but the findings indicate storage corruption risk and
// should be surfaced prominently by the caller.
func (b *Backend) VerifyIntegrity(ctx context.Context) ([]string, error) {
	var warnings []string

	rows, err := b.db.QueryContext(ctx, `
		SELECT u.id, u.hash, u.reference_count, COUNT(d.id)
		FROM unique_images u
		LEFT JOIN document_images d ON d.unique_image_id = u.id
		GROUP BY u.id
		HAVING u.reference_count != COUNT(d.id)`)
	if err != nil {
		return nil, fmt.Errorf("verify reference counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var hash string
		var counted, actual int
		if err := rows.Scan(&id, &hash, &counted, &actual); err != nil {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf(
			"unique image %d (%s): reference_count=%d but %d reference rows", id, hash, counted, actual))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var orphanRefs int
	err = b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM document_images d
		WHERE d.unique_image_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM unique_images u WHERE u.id = d.unique_image_id)`).
		Scan(&orphanRefs)
	if err != nil {
		return nil, fmt.Errorf("verify dangling references: %w", err)
	}
	if orphanRefs > 0 {
		warnings = append(warnings, fmt.Sprintf("%d document image rows reference deleted unique images", orphanRefs))
	}

	var orphanChunks int
	err = b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = e.document_id)`).
		Scan(&orphanChunks)
	if err != nil {
		return nil, fmt.Errorf("verify embedding parents: %w", err)
	}
	if orphanChunks > 0 {
		warnings = append(warnings, fmt.Sprintf("%d embedding chunks belong to missing documents", orphanChunks))
	}

	return warnings, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
