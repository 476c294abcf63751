package syncer

import "errors"

var (
	// ErrStoreRequired indicates a nil store was passed to NewSyncer.
	ErrStoreRequired = errors.New("store is required")

	// ErrImageStoreRequired indicates a nil image store was passed to NewSyncer.
	ErrImageStoreRequired = errors.New("image store is required")

	// ErrIndexerRequired indicates a nil indexer was passed to NewSyncer.
	ErrIndexerRequired = errors.New("indexer is required")

	// ErrFetcherRequired indicates a nil fetcher was passed to NewSyncer.
	ErrFetcherRequired = errors.New("fetcher is required")

	// ErrExtractorRequired indicates a nil extractor was passed to NewSyncer.
	ErrExtractorRequired = errors.New("extractor is required")

	// ErrStopped signals cooperative cancellation inside a phase. It never
	// escapes StartOrResume; the run ends with status interrupted instead.
	ErrStopped = errors.New("sync stopped")

	// ErrInvalidMaxAttempts indicates RetryWithBackoff was called with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
