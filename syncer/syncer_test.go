package syncer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/raadsync/ai/mock"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/imagestore"
	"github.com/poiesic/raadsync/index"
	"github.com/poiesic/raadsync/storage"
	"github.com/poiesic/raadsync/storage/sqlite"
)

type fakeFetcher struct {
	mu         sync.Mutex
	gremia     []*core.Gremium
	events     []*Event
	meetings   map[string]*MeetingDetail
	payloads   map[string][]byte
	failURLs   map[string]bool
	downloads  int
	onDownload func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		meetings: make(map[string]*MeetingDetail),
		payloads: make(map[string][]byte),
		failURLs: make(map[string]bool),
	}
}

func (f *fakeFetcher) Gremia(ctx context.Context) ([]*core.Gremium, error) {
	return f.gremia, nil
}

func (f *fakeFetcher) Events(ctx context.Context, dateFrom, dateTo string) ([]*Event, error) {
	return f.events, nil
}

func (f *fakeFetcher) Meeting(ctx context.Context, providerID string) (*MeetingDetail, error) {
	detail, ok := f.meetings[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown meeting %s", providerID)
	}
	return detail, nil
}

func (f *fakeFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.downloads++
	hook := f.onDownload
	fail := f.failURLs[url]
	data, ok := f.payloads[url]
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if fail {
		return nil, fmt.Errorf("connection reset")
	}
	if !ok {
		return nil, fmt.Errorf("404 for %s", url)
	}
	return data, nil
}

func (f *fakeFetcher) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

// fakeExtractor treats the downloaded payload as the document text and emits
// whatever images the test registered for it.
type fakeExtractor struct {
	images map[string][]ExtractedImage
}

func (e *fakeExtractor) Extract(ctx context.Context, data []byte) (string, []ExtractedImage, error) {
	return string(data), e.images[string(data)], nil
}

type testEnv struct {
	store     *sqlite.Backend
	images    *imagestore.Store
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	syncer    *Syncer
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	images, err := imagestore.NewStore(store.ImageRows(), t.TempDir())
	require.NoError(t, err)

	indexer, err := index.NewIndexer(store.Documents(), store.Embeddings(),
		mock.NewMockEmbedder(), "test-embedder")
	require.NoError(t, err)

	fetcher := newFakeFetcher()
	extractor := &fakeExtractor{images: make(map[string][]ExtractedImage)}

	opts = append([]Option{WithWorkers(2)}, opts...)
	sy, err := NewSyncer(store, images, indexer, fetcher, extractor, opts...)
	require.NoError(t, err)

	return &testEnv{store: store, images: images, fetcher: fetcher, extractor: extractor, syncer: sy}
}

func pngBytes(t *testing.T, cell int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// seedPendingDocuments inserts a meeting with n pending documents and
// registers a payload for each, returning the document IDs in order.
func (env *testEnv) seedPendingDocuments(t *testing.T, n int) []int64 {
	t.Helper()
	ctx := context.Background()

	meetingID, err := env.store.Documents().UpsertMeeting(ctx, &core.Meeting{
		ProviderID: "m-seed", Title: "Raadsvergadering", Date: "2025-06-17",
	})
	require.NoError(t, err)

	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		url := fmt.Sprintf("https://api.test/documents/%d", i)
		id, err := env.store.Documents().UpsertDocument(ctx, &core.Document{
			ProviderID: fmt.Sprintf("d-%02d", i),
			MeetingID:  meetingID,
			Title:      fmt.Sprintf("Bijlage %d", i),
			URL:        url,
		})
		require.NoError(t, err)
		ids = append(ids, id)
		env.fetcher.payloads[url] = []byte(fmt.Sprintf(
			"De raad besluit over agendapunt %d. Het voorstel wordt aangenomen.", i))
	}
	return ids
}

func TestSyncFullRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fetcher.gremia = []*core.Gremium{
		{ProviderID: "g-1", Name: "Gemeenteraad", Kind: "council", Active: true},
		{ProviderID: "g-2", Name: "Commissie Ruimte", Kind: "committee", Active: true},
	}
	env.fetcher.events = []*Event{
		{MeetingProviderID: "m-1", Date: "2025-06-17"},
		{MeetingProviderID: "m-2", Date: "2025-06-24"},
	}
	env.fetcher.meetings["m-1"] = &MeetingDetail{
		Meeting: core.Meeting{ProviderID: "m-1", Title: "Raadsvergadering juni", Date: "2025-06-17"},
		Documents: []core.Document{
			{ProviderID: "d-1", Title: "Agenda", URL: "https://api.test/d-1"},
			{ProviderID: "d-2", Title: "Besluitenlijst", URL: "https://api.test/d-2"},
		},
	}
	env.fetcher.meetings["m-2"] = &MeetingDetail{
		Meeting: core.Meeting{ProviderID: "m-2", Title: "Commissie Ruimte juni", Date: "2025-06-24"},
		Documents: []core.Document{
			{ProviderID: "d-3", Title: "Bestemmingsplan", URL: "https://api.test/d-3"},
		},
	}
	env.fetcher.payloads["https://api.test/d-1"] = []byte("Agenda voor de raadsvergadering van 17 juni.")
	env.fetcher.payloads["https://api.test/d-2"] = []byte("De raad stelt de besluitenlijst vast.")
	env.fetcher.payloads["https://api.test/d-3"] = []byte("Het bestemmingsplan wordt gewijzigd vastgesteld.")

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	assert.Equal(t, core.SyncStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Gremia)
	assert.Equal(t, 2, result.Meetings)
	assert.Equal(t, 3, result.DocumentsFound)
	assert.Equal(t, 3, result.DocumentsDownloaded)
	assert.Equal(t, 0, result.DocumentsFailed)
	assert.Equal(t, 3, result.DocumentsIndexed)
	assert.GreaterOrEqual(t, result.ChunksCreated, 3)
	assert.Empty(t, result.Errors)

	progress, err := env.store.Checkpoints().GetProgress(ctx, result.SyncID)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusCompleted, progress.Status)
	assert.Equal(t, core.PhaseIndexing, progress.Phase)
	assert.False(t, progress.CompletedAt.IsZero())

	_, err = env.store.Checkpoints().FindRunning(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, err := env.store.Embeddings().CountChunks(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)
}

func TestSyncDownloadFailureDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ids := env.seedPendingDocuments(t, 3)
	env.fetcher.failURLs["https://api.test/documents/2"] = true

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	assert.Equal(t, core.SyncStatusCompleted, result.Status)
	assert.Equal(t, 2, result.DocumentsDownloaded)
	assert.Equal(t, 1, result.DocumentsFailed)
	assert.Len(t, result.Errors, 1)

	failed, err := env.store.Documents().GetDocument(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, core.DownloadFailed, failed.Status)

	ok, err := env.store.Documents().GetDocument(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.DownloadExtracted, ok.Status)
}

func TestSyncResumeSkipsProcessedDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ids := env.seedPendingDocuments(t, 10)

	// Checkpoint from an earlier run that got through the first 4 documents.
	require.NoError(t, env.store.Checkpoints().CreateSync(ctx, &core.SyncProgress{
		SyncID:          "resume-test",
		Type:            core.SyncTypeFull,
		Phase:           core.PhaseDocuments,
		TotalItems:      10,
		ProcessedItems:  4,
		LastProcessedID: ids[3],
	}))

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeFull, "", "")
	require.NoError(t, err)

	assert.Equal(t, "resume-test", result.SyncID)
	assert.Equal(t, core.SyncStatusCompleted, result.Status)
	assert.Equal(t, 6, result.DocumentsDownloaded)
	assert.Equal(t, 6, env.fetcher.downloadCount())

	// Documents at or below the checkpoint were not touched again.
	first, err := env.store.Documents().GetDocument(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.DownloadPending, first.Status)

	last, err := env.store.Documents().GetDocument(ctx, ids[9])
	require.NoError(t, err)
	assert.Equal(t, core.DownloadExtracted, last.Status)
}

func TestSyncStopInterruptsAndResumeCompletes(t *testing.T) {
	env := newTestEnv(t, WithWorkers(1))
	ctx := context.Background()

	env.seedPendingDocuments(t, 6)
	env.fetcher.onDownload = func(string) {
		if env.fetcher.downloadCount() >= 3 {
			env.syncer.Token().Stop()
		}
	}

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusInterrupted, result.Status)
	assert.Equal(t, 3, result.DocumentsDownloaded)

	progress, err := env.store.Checkpoints().GetProgress(ctx, result.SyncID)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusInterrupted, progress.Status)
	assert.Equal(t, core.PhaseDocuments, progress.Phase)
	assert.Equal(t, 3, progress.ProcessedItems)
	assert.True(t, progress.Resumable())

	// A fresh syncer with its own token picks up the interrupted run.
	env.fetcher.onDownload = nil
	indexer, err := index.NewIndexer(env.store.Documents(), env.store.Embeddings(),
		mock.NewMockEmbedder(), "test-embedder")
	require.NoError(t, err)
	resumed, err := NewSyncer(env.store, env.images, indexer, env.fetcher, env.extractor, WithWorkers(1))
	require.NoError(t, err)

	result2, err := resumed.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, result.SyncID, result2.SyncID)
	assert.Equal(t, core.SyncStatusCompleted, result2.Status)
	assert.Equal(t, 3, result2.DocumentsDownloaded)
	assert.Equal(t, 6, env.fetcher.downloadCount())
}

func TestSyncDeduplicatesImagesAndRunsOCR(t *testing.T) {
	env := newTestEnv(t, WithWorkers(1), WithRecognizer(mock.NewMockRecognizer("Plattegrond centrum")))
	ctx := context.Background()

	ids := env.seedPendingDocuments(t, 2)
	logo := pngBytes(t, 8)
	for url := range env.fetcher.payloads {
		text := string(env.fetcher.payloads[url])
		env.extractor.images[text] = []ExtractedImage{{Data: logo, Ext: ".png"}}
	}

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	assert.Equal(t, core.SyncStatusCompleted, result.Status)
	assert.Equal(t, 1, result.ImagesStored)
	assert.Equal(t, 1, result.ImagesDeduplicated)
	assert.Equal(t, 1, result.OCRProcessed)
	assert.Equal(t, 0, result.OCRFailed)

	refs, err := env.store.ImageRows().RefsForDocument(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, refs, 1)

	unique, err := env.images.GetByHash(ctx, refs[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, 2, unique.ReferenceCount)
	assert.Equal(t, core.OCRStatusDone, unique.OCRStatus)
	assert.Equal(t, "Plattegrond centrum", unique.OCRText)

	pending, err := env.images.PendingOCR(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncKeepsDocumentFiles(t *testing.T) {
	keepDir := filepath.Join(t.TempDir(), "documents")
	env := newTestEnv(t, WithDocumentDir(keepDir))
	ctx := context.Background()

	ids := env.seedPendingDocuments(t, 2)

	_, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(keepDir, fmt.Sprintf("doc_%d.bin", id)))
		require.NoError(t, err)
		assert.Contains(t, string(data), "De raad besluit")
	}
}

func TestSyncWithoutRecognizerSkipsOCR(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedPendingDocuments(t, 1)
	for url := range env.fetcher.payloads {
		text := string(env.fetcher.payloads[url])
		env.extractor.images[text] = []ExtractedImage{{Data: pngBytes(t, 4), Ext: ".png"}}
	}

	result, err := env.syncer.StartOrResume(ctx, core.SyncTypeIncremental, "2025-06-01", "2025-06-30")
	require.NoError(t, err)

	assert.Equal(t, core.SyncStatusCompleted, result.Status)
	assert.Equal(t, 0, result.OCRProcessed)

	pending, err := env.images.PendingOCR(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSyncRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.syncer.StartOrResume(context.Background(), core.SyncType("weekly"), "", "")
	assert.ErrorIs(t, err, core.ErrInvalidSyncType)
}
