package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/utils"
)

// OutputManager streams per-URL crawl outcomes to two tab-separated logs
// alongside the archive segments: one line per successful capture, one per
// rejected or failed URL with its reason. The controller is sequential so no
// locking is needed; handles are opened lazily and flushed on Close.
type OutputManager struct {
	dir    string
	prefix string
	log    *logrus.Entry

	fetchedFile  *os.File
	rejectedFile *os.File
}

func NewOutputManager(dir, prefix string, log *logrus.Entry) *OutputManager {
	return &OutputManager{
		dir:    dir,
		prefix: utils.SanitizeFilename(prefix),
		log:    log,
	}
}

// RecordFetched appends a capture line: timestamp, URL, HTTP status, depth,
// body size, and the segment sequence it landed in.
func (om *OutputManager) RecordFetched(rawURL string, status, depth int, size int64, segment int) error {
	f, err := om.file(&om.fetchedFile, om.prefix+"_fetched.log")
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s\t%s\t%d\t%d\t%d\t%d\n",
		time.Now().UTC().Format(time.RFC3339), rawURL, status, depth, size, segment)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("writing fetched log: %w", err)
	}
	return nil
}

// RecordRejected appends a rejection line: timestamp, URL, depth, and the
// reason category (trap rule, robots, scope, or a categorized fetch error).
func (om *OutputManager) RecordRejected(rawURL string, depth int, reason string) error {
	f, err := om.file(&om.rejectedFile, om.prefix+"_rejected.log")
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s\t%s\t%d\t%s\n",
		time.Now().UTC().Format(time.RFC3339), rawURL, depth, reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("writing rejected log: %w", err)
	}
	return nil
}

func (om *OutputManager) file(slot **os.File, name string) (*os.File, error) {
	if *slot != nil {
		return *slot, nil
	}
	if err := os.MkdirAll(om.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", om.dir, err)
	}
	path := filepath.Join(om.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output log %s: %w", path, err)
	}
	om.log.WithField("path", path).Debug("Opened outcome log")
	*slot = f
	return f, nil
}

// Close flushes and closes any open log handles. Safe to call when no line
// was ever written.
func (om *OutputManager) Close() error {
	var firstErr error
	for _, f := range []*os.File{om.fetchedFile, om.rejectedFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	om.fetchedFile = nil
	om.rejectedFile = nil
	return firstErr
}
