package index

import "errors"

var (
	// ErrDocumentStoreRequired indicates a nil document store was passed.
	ErrDocumentStoreRequired = errors.New("document store is required")

	// ErrEmbeddingStoreRequired indicates a nil embedding store was passed.
	ErrEmbeddingStoreRequired = errors.New("embedding store is required")

	// ErrEmbedderRequired indicates a nil embedder was passed.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmptyQuery indicates a search was attempted with a blank query.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrEmbeddingCountMismatch indicates the embedder returned a different
	// number of vectors than texts submitted.
	ErrEmbeddingCountMismatch = errors.New("embedder returned wrong number of vectors")
)
