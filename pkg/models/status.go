package models

// RunStatus is the crawl controller's lifecycle state.
// Transitions: Idle -> Running -> {Completed, QuotaExceeded, Failed}.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "Idle"
	RunStatusRunning   RunStatus = "Running"
	RunStatusCompleted RunStatus = "Completed"
	// RunStatusQuotaExceeded is a clean early stop, not a failure.
	RunStatusQuotaExceeded RunStatus = "QuotaExceeded"
	// RunStatusFailed is reached only on unrecoverable conditions,
	// in practice an archive write failure.
	RunStatusFailed RunStatus = "Failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusQuotaExceeded, RunStatusFailed:
		return true
	}
	return false
}

// Page outcome status values stored in the visited store.
const (
	PageStatusFetched  = "fetched"
	PageStatusRejected = "rejected"
)

// CrawlSummary is the user-visible result of a crawl run.
type CrawlSummary struct {
	Status        RunStatus
	Fetched       int
	Rejected      int
	CapturedBytes int64
	Segments      int
}

// ExtractSummary is the user-visible result of an extraction run.
type ExtractSummary struct {
	Segments         int
	SegmentsFailed   int
	Extracted        int
	ExtractionFailed int
	Accepted         int
	Rejected         int
}
