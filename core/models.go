package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// SyncType identifies the scope of a synchronization run.
type SyncType string

const (
	// SyncTypeFull synchronizes the whole configured history.
	SyncTypeFull SyncType = "full"
	// SyncTypeIncremental synchronizes only the recent window.
	SyncTypeIncremental SyncType = "incremental"
)

// Phase is one stage of the sync pipeline. Phases execute in declaration
// order; a resumed sync re-enters at the phase recorded in its checkpoint.
type Phase int

const (
	PhaseGremia Phase = iota + 1
	PhaseMeetings
	PhaseDocuments
	PhaseOCR
	PhaseIndexing
)

// phaseNames maps phases to their stored string form.
var phaseNames = map[Phase]string{
	PhaseGremia:    "gremia",
	PhaseMeetings:  "meetings",
	PhaseDocuments: "documents",
	PhaseOCR:       "ocr",
	PhaseIndexing:  "indexing",
}

// String returns the stored name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePhase converts a stored phase name back to a Phase.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, ErrUnknownPhase
}

// TerminalPhase is the last phase of the pipeline.
const TerminalPhase = PhaseIndexing

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	// SyncStatusRunning means the sync is in progress (or was interrupted by a
	// crash without writing a terminal status; such rows are resumed).
	SyncStatusRunning SyncStatus = "running"
	// SyncStatusInterrupted means the sync honored a cooperative stop request.
	SyncStatusInterrupted SyncStatus = "interrupted"
	// SyncStatusCompleted means all phases finished.
	SyncStatusCompleted SyncStatus = "completed"
	// SyncStatusFailed means a phase-level error aborted the sync. The
	// checkpoint is preserved so the run remains resumable.
	SyncStatusFailed SyncStatus = "failed"
)

// SyncProgress is the persisted checkpoint of a sync run. The orchestrator is
// its only writer.
type SyncProgress struct {
	SyncID          string
	Type            SyncType
	Phase           Phase
	DateFrom        string
	DateTo          string
	TotalItems      int
	ProcessedItems  int
	LastProcessedID int64 // numeric so resume comparison is order-preserving
	Status          SyncStatus
	Error           string
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     time.Time
}

// Resumable reports whether a run in this state can be picked up again.
func (s *SyncProgress) Resumable() bool {
	return s.Status == SyncStatusRunning ||
		s.Status == SyncStatusInterrupted ||
		s.Status == SyncStatusFailed
}

// OCRStatus tracks whether text recognition ran for an image.
type OCRStatus string

const (
	OCRStatusPending OCRStatus = "pending"
	OCRStatusDone    OCRStatus = "done"
	OCRStatusFailed  OCRStatus = "failed"
)

// UniqueImage is a deduplicated image asset addressed by its perceptual hash.
// ReferenceCount equals the number of ImageRef rows pointing at it; the row
// and its backing file are deleted exactly when the count reaches zero.
type UniqueImage struct {
	ID             int64
	Hash           string
	FilePath       string
	Width          int
	Height         int
	FileSize       int64
	OCRText        string
	OCRStatus      OCRStatus
	ReferenceCount int
	CreatedAt      time.Time
}

// ImageRef ties one extracted image occurrence in a document to its shared
// UniqueImage. UniqueImageID is zero only when perceptual hashing failed and
// the image was stored standalone; the ref then carries its own OCR fields.
type ImageRef struct {
	ID            int64
	DocumentID    int64
	ImageIndex    int
	Hash          string
	UniqueImageID int64
	FilePath      string
	OCRText       string
	OCRStatus     OCRStatus
}

// Standalone reports whether the ref is stored outside the shared pool.
func (r *ImageRef) Standalone() bool {
	return r.UniqueImageID == 0
}

// EmbeddingChunk is one embedded window of a document's text. ChunkIndex is
// unique per (document, model); a reindex replaces the whole chunk set.
type EmbeddingChunk struct {
	ID         int64
	DocumentID int64
	ChunkIndex int
	ChunkText  string
	Vector     []float32
	Model      string
	CreatedAt  time.Time
}

// Gremium is a committee or council body records are organized under.
type Gremium struct {
	ID         int64
	ProviderID string
	Name       string
	Kind       string
	Active     bool
}

// Meeting is provider meeting metadata. Kept for search enrichment and as the
// parent of documents.
type Meeting struct {
	ID         int64
	ProviderID string
	GremiumID  int64
	Title      string
	Date       string
	Location   string
	Status     string
}

// DownloadStatus tracks document retrieval state.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadExtracted DownloadStatus = "text_extracted"
	DownloadFailed    DownloadStatus = "download_failed"
	DownloadNoURL     DownloadStatus = "no_url"
)

// Document is provider document metadata plus extraction results.
type Document struct {
	ID          int64
	ProviderID  string
	MeetingID   int64
	Title       string
	URL         string
	TextContent string
	ContentHash string
	Status      DownloadStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchHit is one semantic search result, enriched with parent document
// metadata resolved at query time.
type SearchHit struct {
	DocumentID    int64
	ChunkIndex    int
	ChunkText     string
	Similarity    float32
	DocumentTitle string
	MeetingDate   string
}

// HashContent returns a deterministic hex fingerprint of text content using
// BLAKE2b. Identical content always produces the identical fingerprint; it is
// used to detect unchanged document text across re-extractions.
func HashContent(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
