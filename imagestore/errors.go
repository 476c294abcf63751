package imagestore

import "errors"

var (
	// ErrEmptyImage indicates Put was called with no image bytes.
	ErrEmptyImage = errors.New("empty image data")
)
