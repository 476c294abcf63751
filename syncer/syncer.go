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


package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/raadsync/ai"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/imagestore"
	"github.com/poiesic/raadsync/index"
	"github.com/poiesic/raadsync/storage"
)

const (
	// checkpointInterval bounds both checkpoint I/O and the amount of work
	// redone after a crash.
	checkpointInterval = 10

	defaultWorkers    = 8
	downloadAttempts  = 3
	downloadBaseDelay = 500 * time.Millisecond
)

// Syncer drives the phased ingestion pipeline: gremia, meetings, documents,
// ocr, indexing. It is the only writer of sync progress. The run loop is
// single-threaded; only document downloads fan out onto a worker pool.
type Syncer struct {
	store      storage.Store
	images     *imagestore.Store
	indexer    *index.Indexer
	fetcher    Fetcher
	extractor  Extractor
	recognizer ai.Recognizer
	token      *Token
	workers    int
	keepDir    string
	logger     *slog.Logger

	resultMu sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithWorkers sets the download worker pool size.
// Default is 8, minimum 1.
func WithWorkers(n int) Option {
	return func(s *Syncer) error {
		if n < 1 {
			n = 1
		}
		s.workers = n
		return nil
	}
}

// WithRecognizer enables the ocr phase. Without one the phase is skipped.
func WithRecognizer(r ai.Recognizer) Option {
	return func(s *Syncer) error {
		s.recognizer = r
		return nil
	}
}

// WithDocumentDir keeps a copy of each downloaded document under dir.
// Without it downloads live only in memory for the duration of extraction.
func WithDocumentDir(dir string) Option {
	return func(s *Syncer) error {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create document directory: %w", err)
			}
		}
		s.keepDir = dir
		return nil
	}
}

// WithToken shares a cancellation token with the caller, typically wired to a
// signal handler.
func WithToken(token *Token) Option {
	return func(s *Syncer) error {
		if token != nil {
			s.token = token
		}
		return nil
	}
}

// NewSyncer creates a sync orchestrator.
func NewSyncer(store storage.Store, images *imagestore.Store, indexer *index.Indexer, fetcher Fetcher, extractor Extractor, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if images == nil {
		return nil, ErrImageStoreRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	s := &Syncer{
		store:     store,
		images:    images,
		indexer:   indexer,
		fetcher:   fetcher,
		extractor: extractor,
		token:     NewToken(),
		workers:   defaultWorkers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Token returns the cancellation token polled by the run loop.
func (s *Syncer) Token() *Token {
	return s.token
}

// StartOrResume runs a sync. When a resumable run exists (status running
// from a crashed process, or cleanly interrupted) it is resumed at its
// recorded phase and last processed ID; otherwise a new sync row is created.
// Stop via the token leaves the checkpoint intact with status interrupted,
// so invoking again continues where it left off.
func (s *Syncer) StartOrResume(ctx context.Context, syncType core.SyncType, dateFrom, dateTo string) (*Result, error) {
	progress, err := s.findResumable(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := core.ValidateSyncType(syncType); err != nil {
			return nil, err
		}
		progress = &core.SyncProgress{
			SyncID:   uuid.NewString(),
			Type:     syncType,
			Phase:    core.PhaseGremia,
			DateFrom: dateFrom,
			DateTo:   dateTo,
		}
		if err := s.store.Checkpoints().CreateSync(ctx, progress); err != nil {
			return nil, err
		}
		s.logger.Info("starting sync", "sync_id", progress.SyncID, "type", syncType,
			"from", dateFrom, "to", dateTo)
	case err != nil:
		return nil, err
	default:
		s.logger.Info("resuming sync", "sync_id", progress.SyncID, "phase", progress.Phase.String(),
			"processed", progress.ProcessedItems, "total", progress.TotalItems)
	}

	result := &Result{SyncID: progress.SyncID}

	runners := []struct {
		phase core.Phase
		run   func(context.Context, *core.SyncProgress, *Result) error
	}{
		{core.PhaseGremia, s.runGremia},
		{core.PhaseMeetings, s.runMeetings},
		{core.PhaseDocuments, s.runDocuments},
		{core.PhaseOCR, s.runOCR},
		{core.PhaseIndexing, s.runIndexing},
	}

	for _, r := range runners {
		if r.phase < progress.Phase {
			continue
		}
		if r.phase > progress.Phase {
			progress.Phase = r.phase
			progress.TotalItems = 0
			progress.ProcessedItems = 0
			progress.LastProcessedID = 0
			if err := s.checkpoint(ctx, progress); err != nil {
				return result, err
			}
		}

		s.logger.Info("entering phase", "sync_id", progress.SyncID, "phase", r.phase.String())
		if err := r.run(ctx, progress, result); err != nil {
			return s.finishAbnormal(ctx, progress, result, err)
		}
	}

	progress.Status = core.SyncStatusCompleted
	progress.CompletedAt = time.Now().UTC()
	if err := s.checkpoint(ctx, progress); err != nil {
		return result, err
	}
	result.Status = core.SyncStatusCompleted

	warnings, err := s.store.VerifyIntegrity(ctx)
	if err != nil {
		s.logger.Warn("integrity check failed to run", "err", err)
	}
	for _, w := range warnings {
		s.logger.Warn("integrity warning", "sync_id", progress.SyncID, "warning", w)
	}

	s.logger.Info("sync completed", "sync_id", progress.SyncID,
		"meetings", result.Meetings, "downloaded", result.DocumentsDownloaded,
		"failed", result.DocumentsFailed, "indexed", result.DocumentsIndexed)
	return result, nil
}

// findResumable returns the checkpoint to continue from: a run left with
// status running (crashed process) or, failing that, the most recent cleanly
// interrupted run.
func (s *Syncer) findResumable(ctx context.Context) (*core.SyncProgress, error) {
	progress, err := s.store.Checkpoints().FindRunning(ctx)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return progress, err
	}

	interrupted, err := s.store.Checkpoints().ListByStatus(ctx, core.SyncStatusInterrupted)
	if err != nil {
		return nil, err
	}
	if len(interrupted) == 0 {
		return nil, storage.ErrNotFound
	}
	resumed := interrupted[0]
	resumed.Status = core.SyncStatusRunning
	resumed.Error = ""
	if err := s.checkpoint(ctx, resumed); err != nil {
		return nil, err
	}
	return resumed, nil
}

// finishAbnormal records the terminal state for a stopped or failed run.
// The checkpoint keeps the current phase and last processed ID either way, so
// the next StartOrResume picks up the remaining work.
func (s *Syncer) finishAbnormal(ctx context.Context, progress *core.SyncProgress, result *Result, cause error) (*Result, error) {
	if errors.Is(cause, ErrStopped) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		progress.Status = core.SyncStatusInterrupted
		progress.Error = "stopped"
		result.Status = core.SyncStatusInterrupted
		if err := s.checkpoint(ctx, progress); err != nil {
			s.logger.Error("failed to checkpoint interrupted sync", "sync_id", progress.SyncID, "err", err)
		}
		s.logger.Info("sync interrupted", "sync_id", progress.SyncID,
			"phase", progress.Phase.String(), "processed", progress.ProcessedItems)
		return result, nil
	}

	progress.Status = core.SyncStatusFailed
	progress.Error = cause.Error()
	result.Status = core.SyncStatusFailed
	if err := s.checkpoint(ctx, progress); err != nil {
		s.logger.Error("failed to checkpoint failed sync", "sync_id", progress.SyncID, "err", err)
	}
	s.logger.Error("sync failed", "sync_id", progress.SyncID, "phase", progress.Phase.String(), "err", cause)
	return result, cause
}

// runGremia upserts all committee bodies. Provider IDs carry no usable order,
// so a resumed run redoes the phase; upserts make that idempotent.
func (s *Syncer) runGremia(ctx context.Context, progress *core.SyncProgress, result *Result) error {
	gremia, err := s.fetcher.Gremia(ctx)
	if err != nil {
		return fmt.Errorf("fetch gremia: %w", err)
	}

	progress.TotalItems = len(gremia)
	progress.ProcessedItems = 0
	for i, g := range gremia {
		if err := s.checkStop(); err != nil {
			return err
		}
		if _, err := s.store.Documents().UpsertGremium(ctx, g); err != nil {
			s.recordError(result, "gremium %s: %v", g.ProviderID, err)
		} else {
			result.Gremia++
		}
		progress.ProcessedItems++
		if (i+1)%checkpointInterval == 0 {
			if err := s.checkpoint(ctx, progress); err != nil {
				return err
			}
		}
	}
	return s.checkpoint(ctx, progress)
}

// runMeetings walks the events feed and upserts each meeting with its
// document metadata. Like gremia, a resume redoes the phase idempotently.
func (s *Syncer) runMeetings(ctx context.Context, progress *core.SyncProgress, result *Result) error {
	events, err := s.fetcher.Events(ctx, progress.DateFrom, progress.DateTo)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	progress.TotalItems = len(events)
	progress.ProcessedItems = 0
	for i, ev := range events {
		if err := s.checkStop(); err != nil {
			return err
		}

		var detail *MeetingDetail
		err := RetryWithBackoff(ctx, s.logger, func() error {
			var ferr error
			detail, ferr = s.fetcher.Meeting(ctx, ev.MeetingProviderID)
			return ferr
		}, downloadAttempts, downloadBaseDelay)
		if err != nil {
			s.recordError(result, "meeting %s: %v", ev.MeetingProviderID, err)
		} else if err := s.storeMeeting(ctx, detail, result); err != nil {
			s.recordError(result, "store meeting %s: %v", ev.MeetingProviderID, err)
		}

		progress.ProcessedItems++
		if (i+1)%checkpointInterval == 0 {
			if err := s.checkpoint(ctx, progress); err != nil {
				return err
			}
		}
	}
	return s.checkpoint(ctx, progress)
}

func (s *Syncer) storeMeeting(ctx context.Context, detail *MeetingDetail, result *Result) error {
	meetingID, err := s.store.Documents().UpsertMeeting(ctx, &detail.Meeting)
	if err != nil {
		return err
	}
	result.Meetings++

	for i := range detail.Documents {
		doc := detail.Documents[i]
		doc.MeetingID = meetingID
		if _, err := s.store.Documents().UpsertDocument(ctx, &doc); err != nil {
			s.recordError(result, "document %s: %v", doc.ProviderID, err)
			continue
		}
		result.DocumentsFound++
	}
	return nil
}

// runDocuments downloads and extracts pending documents on a worker pool.
// Items run in batches of pool size so the checkpoint's last processed ID
// only ever covers fully finished work.
func (s *Syncer) runDocuments(ctx context.Context, progress *core.SyncProgress, result *Result) error {
	pending, err := s.store.Documents().PendingDownload(ctx)
	if err != nil {
		return fmt.Errorf("list pending documents: %w", err)
	}

	items := make([]*core.Document, 0, len(pending))
	for _, doc := range pending {
		if doc.ID > progress.LastProcessedID {
			items = append(items, doc)
		}
	}
	growTotal(progress, len(items))
	s.logger.Info("downloading documents", "pending", len(items), "workers", s.workers)

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return fmt.Errorf("create download pool: %w", err)
	}
	defer pool.Release()

	sinceCheckpoint := 0
	for start := 0; start < len(items); start += s.workers {
		if err := s.checkStop(); err != nil {
			return err
		}

		end := start + s.workers
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		var wg sync.WaitGroup
		for _, doc := range batch {
			doc := doc
			wg.Add(1)
			task := func() {
				defer wg.Done()
				s.processDocument(ctx, doc, result)
			}
			if err := pool.Submit(task); err != nil {
				// Pool rejected the task; do the work on this goroutine.
				task()
			}
		}
		wg.Wait()

		progress.ProcessedItems += len(batch)
		progress.LastProcessedID = batch[len(batch)-1].ID
		sinceCheckpoint += len(batch)
		if sinceCheckpoint >= checkpointInterval {
			if err := s.checkpoint(ctx, progress); err != nil {
				return err
			}
			sinceCheckpoint = 0
		}
	}
	return s.checkpoint(ctx, progress)
}

// processDocument downloads one document, extracts text and images, and
// stores the results. Failures are recorded and never abort the batch.
func (s *Syncer) processDocument(ctx context.Context, doc *core.Document, result *Result) {
	var data []byte
	err := RetryWithBackoff(ctx, s.logger, func() error {
		var derr error
		data, derr = s.fetcher.Download(ctx, doc.URL)
		return derr
	}, downloadAttempts, downloadBaseDelay)
	if err != nil {
		s.failDocument(ctx, doc, result, fmt.Errorf("download: %w", err))
		return
	}

	if s.keepDir != "" {
		path := filepath.Join(s.keepDir, fmt.Sprintf("doc_%d%s", doc.ID, payloadExt(data)))
		if werr := os.WriteFile(path, data, 0644); werr != nil {
			s.logger.Warn("failed to keep document file", "document_id", doc.ID, "err", werr)
		}
	}

	text, images, err := s.extractor.Extract(ctx, data)
	if err != nil {
		s.failDocument(ctx, doc, result, fmt.Errorf("extract: %w", err))
		return
	}

	for i, img := range images {
		ref, err := s.images.Put(ctx, doc.ID, i, img.Data, img.Ext)
		if err != nil {
			s.recordError(result, "document %d image %d: %v", doc.ID, i, err)
			continue
		}
		s.countImage(ctx, ref, result)
	}

	if text != "" {
		err = s.store.Documents().UpdateContent(ctx, doc.ID, text)
	} else {
		// Nothing to index, but the document is handled; leaving it pending
		// would re-download it on every run.
		err = s.store.Documents().UpdateStatus(ctx, doc.ID, core.DownloadExtracted)
	}
	if err != nil {
		s.failDocument(ctx, doc, result, fmt.Errorf("store content: %w", err))
		return
	}

	s.resultMu.Lock()
	result.DocumentsDownloaded++
	s.resultMu.Unlock()
}

func (s *Syncer) failDocument(ctx context.Context, doc *core.Document, result *Result, cause error) {
	if err := s.store.Documents().UpdateStatus(ctx, doc.ID, core.DownloadFailed); err != nil {
		s.logger.Warn("failed to mark document failed", "document_id", doc.ID, "err", err)
	}
	s.resultMu.Lock()
	result.DocumentsFailed++
	s.resultMu.Unlock()
	s.recordError(result, "document %d (%s): %v", doc.ID, doc.ProviderID, cause)
}

func (s *Syncer) countImage(ctx context.Context, ref *core.ImageRef, result *Result) {
	dedup := false
	if !ref.Standalone() {
		if unique, err := s.images.GetByHash(ctx, ref.Hash); err == nil && unique.ReferenceCount > 1 {
			dedup = true
		}
	}
	s.resultMu.Lock()
	if dedup {
		result.ImagesDeduplicated++
	} else {
		result.ImagesStored++
	}
	s.resultMu.Unlock()
}

// runOCR recognizes text once per unique image. Without a recognizer the
// phase is skipped and images stay pending for a later configured run.
func (s *Syncer) runOCR(ctx context.Context, progress *core.SyncProgress, result *Result) error {
	if s.recognizer == nil {
		s.logger.Info("no recognizer configured, skipping ocr phase")
		return nil
	}

	pending, err := s.images.PendingOCR(ctx)
	if err != nil {
		return fmt.Errorf("list pending ocr: %w", err)
	}

	items := make([]*core.UniqueImage, 0, len(pending))
	for _, img := range pending {
		if img.ID > progress.LastProcessedID {
			items = append(items, img)
		}
	}
	growTotal(progress, len(items))

	for i, img := range items {
		if err := s.checkStop(); err != nil {
			return err
		}

		if err := s.recognizeImage(ctx, img); err != nil {
			s.recordError(result, "ocr image %d (%s): %v", img.ID, img.Hash, err)
			result.OCRFailed++
		} else {
			result.OCRProcessed++
		}

		progress.ProcessedItems++
		progress.LastProcessedID = img.ID
		if (i+1)%checkpointInterval == 0 {
			if err := s.checkpoint(ctx, progress); err != nil {
				return err
			}
		}
	}
	return s.checkpoint(ctx, progress)
}

func (s *Syncer) recognizeImage(ctx context.Context, img *core.UniqueImage) error {
	data, err := os.ReadFile(s.images.AbsolutePath(img.FilePath))
	if err != nil {
		if serr := s.images.SetOCRResult(ctx, img.ID, "", core.OCRStatusFailed); serr != nil {
			s.logger.Warn("failed to mark ocr failed", "image_id", img.ID, "err", serr)
		}
		return err
	}

	text, err := s.recognizer.RecognizeText(ctx, data, mimeForPath(img.FilePath))
	if err != nil {
		if serr := s.images.SetOCRResult(ctx, img.ID, "", core.OCRStatusFailed); serr != nil {
			s.logger.Warn("failed to mark ocr failed", "image_id", img.ID, "err", serr)
		}
		return err
	}
	return s.images.SetOCRResult(ctx, img.ID, text, core.OCRStatusDone)
}

// runIndexing embeds documents with text content, skipping those whose
// content hash has not changed since they were last indexed.
func (s *Syncer) runIndexing(ctx context.Context, progress *core.SyncProgress, result *Result) error {
	docs, err := s.store.Documents().DocumentsWithText(ctx)
	if err != nil {
		return fmt.Errorf("list documents with text: %w", err)
	}
	indexed, err := s.store.Embeddings().IndexedDocumentIDs(ctx)
	if err != nil {
		return fmt.Errorf("list indexed documents: %w", err)
	}

	items := make([]*core.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID > progress.LastProcessedID {
			items = append(items, doc)
		}
	}
	growTotal(progress, len(items))

	for i, doc := range items {
		if err := s.checkStop(); err != nil {
			return err
		}

		if hash, ok := indexed[doc.ID]; !ok || hash == "" || hash != doc.ContentHash {
			chunks, err := s.indexer.IndexDocument(ctx, doc.ID)
			if err != nil {
				s.recordError(result, "index document %d: %v", doc.ID, err)
			} else if chunks > 0 {
				result.DocumentsIndexed++
				result.ChunksCreated += chunks
			}
		}

		progress.ProcessedItems++
		progress.LastProcessedID = doc.ID
		if (i+1)%checkpointInterval == 0 {
			if err := s.checkpoint(ctx, progress); err != nil {
				return err
			}
		}
	}
	return s.checkpoint(ctx, progress)
}

func (s *Syncer) checkpoint(ctx context.Context, progress *core.SyncProgress) error {
	if err := s.store.Checkpoints().SaveProgress(ctx, progress); err != nil {
		return fmt.Errorf("checkpoint sync %s: %w", progress.SyncID, err)
	}
	return nil
}

func (s *Syncer) checkStop() error {
	if s.token.Stopped() {
		return ErrStopped
	}
	return nil
}

func (s *Syncer) recordError(result *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Warn("sync item failed", "detail", msg)
	s.resultMu.Lock()
	result.Errors = append(result.Errors, msg)
	s.resultMu.Unlock()
}

// growTotal extends the phase's item total to cover the remaining work. On a
// fresh phase this records the total; on a resume it grows the total only if
// new items appeared since the checkpoint was taken.
func growTotal(progress *core.SyncProgress, remaining int) {
	if total := progress.ProcessedItems + remaining; total > progress.TotalItems {
		progress.TotalItems = total
	}
}

func payloadExt(data []byte) string {
	if strings.HasPrefix(string(data[:min(4, len(data))]), "%PDF") {
		return ".pdf"
	}
	return ".bin"
}

func mimeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
