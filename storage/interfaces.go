package storage

import (
	"context"

	"github.com/poiesic/raadsync/core"
)

// CheckpointStore persists sync progress for crash recovery. The sync
// orchestrator is the only writer; implementations must be thread-safe.
type CheckpointStore interface {
	// CreateSync inserts a new sync progress row with status running.
	CreateSync(ctx context.Context, progress *core.SyncProgress) error

	// SaveProgress persists the checkpoint (phase, counts, last processed ID,
	// status). Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the sync does not exist.
	SaveProgress(ctx context.Context, progress *core.SyncProgress) error

	// FindRunning returns the most recent sync with status running.
	// Returns ErrNotFound if no sync is running.
	FindRunning(ctx context.Context) (*core.SyncProgress, error)

	// GetProgress retrieves a sync by its ID.
	// Returns ErrNotFound if the sync does not exist.
	GetProgress(ctx context.Context, syncID string) (*core.SyncProgress, error)

	// ListByStatus returns all syncs in the given state, most recent first.
	ListByStatus(ctx context.Context, status core.SyncStatus) ([]*core.SyncProgress, error)
}

// DocumentStore manages provider metadata: gremia, meetings and documents.
type DocumentStore interface {
	// UpsertGremium inserts or updates a gremium keyed by its provider ID.
	UpsertGremium(ctx context.Context, g *core.Gremium) (int64, error)

	// UpsertMeeting inserts or updates a meeting keyed by its provider ID.
	UpsertMeeting(ctx context.Context, m *core.Meeting) (int64, error)

	// UpsertDocument inserts or updates a document keyed by its provider ID.
	// New documents start with download status pending.
	UpsertDocument(ctx context.Context, d *core.Document) (int64, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document does not exist.
	GetDocument(ctx context.Context, id int64) (*core.Document, error)

	// GetMeeting retrieves a meeting by ID.
	// Returns ErrNotFound if the meeting does not exist.
	GetMeeting(ctx context.Context, id int64) (*core.Meeting, error)

	// PendingDownload returns documents with status pending and a non-empty
	// URL, ordered by ID ascending.
	PendingDownload(ctx context.Context) ([]*core.Document, error)

	// DocumentsWithText returns documents with extracted text content,
	// ordered by ID ascending.
	DocumentsWithText(ctx context.Context) ([]*core.Document, error)

	// UpdateContent stores extracted text for a document, computes its
	// content hash and marks the document text_extracted.
	UpdateContent(ctx context.Context, id int64, text string) error

	// UpdateStatus sets a document's download status.
	UpdateStatus(ctx context.Context, id int64, status core.DownloadStatus) error
}

// ImageRowStore manages the relational side of the content-addressed image
// store: unique_images and document_images rows. File I/O belongs to the
// imagestore package; row mutations here are the serialization points its
// reference counting relies on, so every mutation that touches a reference
// count runs in a single transaction.
type ImageRowStore interface {
	// FindUniqueByHash retrieves a unique image by perceptual hash.
	// Returns ErrNotFound if no image with that hash exists.
	FindUniqueByHash(ctx context.Context, hash string) (*core.UniqueImage, error)

	// InsertUniqueWithRef inserts a new unique image with reference count 1
	// and its first document reference, atomically.
	InsertUniqueWithRef(ctx context.Context, img *core.UniqueImage, ref *core.ImageRef) error

	// AddRef increments the reference count of the unique image with the
	// given hash and inserts a document reference row, atomically.
	// Returns the updated unique image, or ErrNotFound if the hash is unknown.
	AddRef(ctx context.Context, hash string, ref *core.ImageRef) (*core.UniqueImage, error)

	// InsertStandaloneRef inserts a document reference with no unique image
	// association (used when perceptual hashing failed).
	InsertStandaloneRef(ctx context.Context, ref *core.ImageRef) error

	// RefsForDocument returns all image references of a document, ordered by
	// image index.
	RefsForDocument(ctx context.Context, documentID int64) ([]*core.ImageRef, error)

	// ReleaseRef deletes a document reference and decrements the unique
	// image's reference count in one transaction. When the count reaches
	// zero the unique image row is deleted and its file path returned so the
	// caller can remove the backing file; otherwise path is empty. For
	// standalone refs the ref's own file path is returned.
	// Returns ErrNotFound if the reference does not exist.
	ReleaseRef(ctx context.Context, refID int64) (path string, err error)

	// PendingOCR returns unique images whose OCR has not run yet.
	PendingOCR(ctx context.Context) ([]*core.UniqueImage, error)

	// SetUniqueOCR stores the OCR result for a unique image. The text is
	// shared by every document referencing the hash.
	SetUniqueOCR(ctx context.Context, id int64, text string, status core.OCRStatus) error
}

// EmbeddingStore manages embedding chunks for the semantic index.
type EmbeddingStore interface {
	// ReplaceChunks deletes all chunks of a document for the given model and
	// inserts the new set in one transaction, so no partial overlap of old
	// and new chunk sets is ever visible.
	ReplaceChunks(ctx context.Context, documentID int64, model string, chunks []*core.EmbeddingChunk) error

	// DeleteChunks removes all chunks of a document.
	DeleteChunks(ctx context.Context, documentID int64) error

	// AllChunks returns every stored chunk in insertion order.
	AllChunks(ctx context.Context) ([]*core.EmbeddingChunk, error)

	// IndexedDocumentIDs returns the set of document IDs that have chunks,
	// together with the content hash recorded at indexing time.
	IndexedDocumentIDs(ctx context.Context) (map[int64]string, error)

	// CountChunks returns the total number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}

// Store aggregates all repositories backed by one database.
type Store interface {
	Checkpoints() CheckpointStore
	Documents() DocumentStore
	ImageRows() ImageRowStore
	Embeddings() EmbeddingStore

	// VerifyIntegrity runs post-sync consistency checks (reference counts
	// versus reference rows, chunks without parent documents). It returns
	// human-readable warnings and never mutates data.
	VerifyIntegrity(ctx context.Context) ([]string, error)

	// Close closes the underlying database.
	Close() error
}
