package models

import "time"

// FrontierEntry is a URL and its depth awaiting processing by the controller.
type FrontierEntry struct {
	URL   string
	Depth int
}

// RecordKind tags a CaptureRecord as crawl content or writer bookkeeping.
type RecordKind string

const (
	KindContent     RecordKind = "content"     // A fetched response body
	KindBookkeeping RecordKind = "bookkeeping" // Writer metadata (warcinfo etc.)
)

// CaptureRecord is one fetched request/response pair. It is owned by the
// archive writer from Append until the containing segment is sealed, and is
// never mutated after append.
type CaptureRecord struct {
	ID         string     // Record UUID (WARC-Record-ID)
	Kind       RecordKind // content or bookkeeping
	TargetURI  string     // Fetched URL (empty for bookkeeping records)
	Status     int        // HTTP status code (0 for bookkeeping records)
	Headers    map[string]string
	Body       []byte
	FetchedAt  time.Time
}

// Size returns the payload byte size counted against quota and rotation.
func (r *CaptureRecord) Size() int64 {
	return int64(len(r.Body))
}

// DocumentMetadata carries the metadata extracted alongside document text.
type DocumentMetadata struct {
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	Date       string `json:"date,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
}

// ExtractedDocument is derived from exactly one content CaptureRecord.
// ID is a deterministic function of the record's target URI and body, so
// re-extracting the same sealed segment yields identical documents.
type ExtractedDocument struct {
	ID       string           `json:"id"`
	URL      string           `json:"url"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Decision is the outcome of the repetition filter for one document.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// FilterVerdict records the accept/reject decision for a document.
// Computed once; never revisited.
type FilterVerdict struct {
	DocumentID string
	Decision   Decision
	Reason     string // Empty when accepted
}

// PageDBEntry stores the per-URL outcome in the visited store.
type PageDBEntry struct {
	Status      string    `json:"status"`               // "fetched" or "rejected"
	ErrorType   string    `json:"error_type,omitempty"` // Error category (on rejection)
	Depth       int       `json:"depth"`
	LastAttempt time.Time `json:"last_attempt"`
}
