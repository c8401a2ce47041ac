package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"webharvest/pkg/log"
	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

const (
	urlKeyPrefix = "url:"       // Prefix for normalized URL keys in DB
	visitedDBDir = "visited_db" // Subdirectory name within stateDir for Badger files
)

// VisitedStore persists the visited-set and per-URL outcomes for one run.
// Together with the depth bound it guarantees crawl termination on cyclic
// link graphs. Each run owns its store exclusively.
type VisitedStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) VisitedCount
}

// NewVisitedStore initializes a BadgerDB-backed visited store under stateDir.
// Any state left over from a previous run with the same prefix is removed:
// runs do not resume each other.
func NewVisitedStore(stateDir, prefix string, logger *logrus.Entry) (*VisitedStore, error) {
	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(prefix)+"_"+visitedDBDir)

	if err := os.RemoveAll(dbPath); err != nil {
		logger.Errorf("Failed to remove previous state directory %s: %v", dbPath, err)
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	logger.Infof("Initializing visited URL database at: %s", dbPath)

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest outcome matters

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	return &VisitedStore{db: db, log: logger}, nil
}

// MarkVisited records a normalized URL as seen.
// Returns true if the URL was newly added, false if it was already present.
func (s *VisitedStore) MarkVisited(normalizedURL string) (bool, error) {
	if s.db == nil {
		return false, errors.New("visited store not initialized")
	}
	added := false
	key := []byte(urlKeyPrefix + normalizedURL)

	err := s.db.Update(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, []byte{}))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		return errGet // nil if the key exists
	})
	if err != nil {
		return false, fmt.Errorf("%w: marking key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// RecordOutcome stores the final per-URL outcome entry.
func (s *VisitedStore) RecordOutcome(normalizedURL string, entry *models.PageDBEntry) error {
	if s.db == nil {
		return errors.New("visited store not initialized")
	}
	key := []byte(urlKeyPrefix + normalizedURL)

	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		return fmt.Errorf("%w: marshal outcome for key '%s': %w", utils.ErrParsing, string(key), errJSON)
	}

	isNew := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		return fmt.Errorf("%w: setting outcome for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// Outcome retrieves a previously recorded outcome.
// Returns nil with no error when the URL was seen but has no outcome yet,
// or was never seen.
func (s *VisitedStore) Outcome(normalizedURL string) (*models.PageDBEntry, error) {
	var entry *models.PageDBEntry
	key := []byte(urlKeyPrefix + normalizedURL)

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return nil // Seen but no outcome recorded yet
			}
			var decoded models.PageDBEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal outcome for key '%s': %v", string(key), errJSON)
				return nil
			}
			entry = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// VisitedCount returns the number of URLs marked visited this run.
func (s *VisitedStore) VisitedCount() int64 {
	return s.keyCount.Load()
}

// RunGC runs periodic BadgerDB value-log garbage collection until ctx is done.
// Should be run in a goroutine.
func (s *VisitedStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debugf("Badger GC: %v", err)
			}
		}
	}
}

// Close cleanly closes the database.
func (s *VisitedStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
