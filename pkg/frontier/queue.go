package frontier

import (
	"github.com/sirupsen/logrus"

	"webharvest/pkg/models"
	"webharvest/pkg/parse"
)

// Queue is the crawl frontier: a FIFO of (URL, depth) entries, deduplicated
// by normalized URL through the visited store. The controller is sequential,
// so the queue needs no locking; the store provides the persistence.
type Queue struct {
	entries []models.FrontierEntry
	store   *VisitedStore
	log     *logrus.Entry
}

// NewQueue creates an empty frontier backed by the given visited store.
func NewQueue(store *VisitedStore, log *logrus.Entry) *Queue {
	return &Queue{store: store, log: log}
}

// Push enqueues a URL at the given depth if its normalized form has not been
// seen before. Returns true when the entry was enqueued.
func (q *Queue) Push(rawURL string, depth int) (bool, error) {
	normalized, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		q.log.WithField("url", rawURL).Debugf("Not enqueueing unparseable URL: %v", err)
		return false, nil
	}

	added, err := q.store.MarkVisited(normalized)
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil // Already seen this run
	}

	q.entries = append(q.entries, models.FrontierEntry{URL: rawURL, Depth: depth})
	return true, nil
}

// Pop dequeues the oldest entry. ok is false when the frontier is empty.
func (q *Queue) Pop() (entry models.FrontierEntry, ok bool) {
	if len(q.entries) == 0 {
		return models.FrontierEntry{}, false
	}
	entry = q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}
