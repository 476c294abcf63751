package syncer

import "github.com/poiesic/raadsync/core"

// Result reports what one sync run accomplished. Counts cover only work done
// in this run; a resumed sync does not re-report items from before the
// interruption.
type Result struct {
	SyncID string
	Status core.SyncStatus

	Gremia              int
	Meetings            int
	DocumentsFound      int
	DocumentsDownloaded int
	DocumentsFailed     int
	ImagesStored        int
	ImagesDeduplicated  int
	OCRProcessed        int
	OCRFailed           int
	DocumentsIndexed    int
	ChunksCreated       int

	// Errors holds item-level failures that did not abort the run.
	Errors []string
}
