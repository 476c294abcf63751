package syncer

import (
	"context"

	"github.com/poiesic/raadsync/core"
)

// Event is one paginated entry from the provider's events feed. It carries
// just enough to fetch the full meeting.
type Event struct {
	MeetingProviderID string
	Date              string
}

// MeetingDetail is a meeting with its document metadata as delivered by the
// provider. Document bytes are fetched separately in the documents phase.
type MeetingDetail struct {
	Meeting   core.Meeting
	Documents []core.Document
}

// Fetcher retrieves records from the external provider. Implementations must
// be safe for concurrent Download calls; the metadata methods are called from
// a single goroutine.
type Fetcher interface {
	// Gremia lists all committee bodies of the organisation.
	Gremia(ctx context.Context) ([]*core.Gremium, error)

	// Events walks the paginated events feed for the date range and returns
	// every meeting event in it.
	Events(ctx context.Context, dateFrom, dateTo string) ([]*Event, error)

	// Meeting fetches full meeting metadata including its document list.
	Meeting(ctx context.Context, providerID string) (*MeetingDetail, error)

	// Download retrieves raw document bytes.
	Download(ctx context.Context, url string) ([]byte, error)
}

// ExtractedImage is one image pulled out of a document.
type ExtractedImage struct {
	Data []byte
	Ext  string
}

// Extractor turns raw document bytes into text and embedded images.
// A document with no extractable text yields an empty string, not an error.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, []ExtractedImage, error)
}
