package archive

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

const (
	// MetaSubdir is where segments holding only bookkeeping records end up.
	MetaSubdir = "meta"

	segmentSuffix = ".warc.gz"
)

// WriterConfig configures a segment Writer.
type WriterConfig struct {
	Dir            string // Primary output location for sealed content segments
	Prefix         string // Output scope name; part of every segment filename
	MaxSegmentSize int64  // Rotation threshold in accumulated payload bytes
	KeepStaging    bool   // Persist the staging area for debugging
	Software       string // Recorded in each segment's warcinfo record
}

// Writer buffers CaptureRecords into a growing segment and rotates to a new
// one once the size threshold is reached. Records are assembled in a scoped
// staging directory and renamed into the output directory only when sealed;
// Close removes the staging area on every exit path unless configured to
// keep it. A Writer must only be used by one run (single-writer invariant).
type Writer struct {
	cfg        WriterConfig
	log        *logrus.Entry
	stagingDir string
	seq        int // Sequence number of the next segment to open
	cur        *openSegment
	sealed     []sealedSegment
	closed     bool
}

type openSegment struct {
	stagingPath  string
	file         *os.File
	gz           *gzip.Writer
	payloadBytes int64
	records      int
	contentRecs  int
}

type sealedSegment struct {
	path        string
	contentRecs int
}

// NewWriter creates the output and staging directories and returns a Writer
// ready for the first Append.
func NewWriter(cfg WriterConfig, log *logrus.Entry) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating output dir '%s': %w", utils.ErrArchiveWrite, cfg.Dir, err)
	}
	stagingDir, err := os.MkdirTemp(cfg.Dir, ".staging-"+utils.SanitizeFilename(cfg.Prefix)+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: creating staging dir under '%s': %w", utils.ErrArchiveWrite, cfg.Dir, err)
	}
	log.WithField("staging_dir", stagingDir).Debug("Archive staging area created")

	return &Writer{
		cfg:        cfg,
		log:        log,
		stagingDir: stagingDir,
	}, nil
}

// Append adds a record to the current segment, opening a fresh segment when
// none is open, and seals + rotates once the accumulated payload size reaches
// the threshold. A segment may exceed the threshold by at most the final
// record's size. Records are never mutated after append.
func (w *Writer) Append(rec *models.CaptureRecord) error {
	if w.closed {
		return fmt.Errorf("%w: append after Close", utils.ErrArchiveWrite)
	}

	if w.cur == nil {
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	if err := writeRecord(w.cur.gz, rec); err != nil {
		return fmt.Errorf("%w: appending record for '%s': %w", utils.ErrArchiveWrite, rec.TargetURI, err)
	}
	w.cur.payloadBytes += rec.Size()
	w.cur.records++
	if rec.Kind == models.KindContent {
		w.cur.contentRecs++
	}

	if w.cur.payloadBytes >= w.cfg.MaxSegmentSize {
		return w.sealCurrent()
	}
	return nil
}

// openSegment starts a new segment in the staging area, beginning with its
// warcinfo bookkeeping record.
func (w *Writer) openSegment() error {
	name := fmt.Sprintf("%s-%05d%s", utils.SanitizeFilename(w.cfg.Prefix), w.seq, segmentSuffix)
	stagingPath := filepath.Join(w.stagingDir, name)

	file, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening segment '%s': %w", utils.ErrArchiveWrite, stagingPath, err)
	}

	w.cur = &openSegment{
		stagingPath: stagingPath,
		file:        file,
		gz:          gzip.NewWriter(file),
	}
	w.seq++
	w.log.WithField("segment", name).Debug("Opened new archive segment")

	software := w.cfg.Software
	if software == "" {
		software = "webharvest"
	}
	info := &models.CaptureRecord{
		ID:        uuid.NewString(),
		Kind:      models.KindBookkeeping,
		Body:      []byte(fmt.Sprintf("software: %s\r\nformat: WARC File Format 1.0\r\n", software)),
		FetchedAt: time.Now(),
	}
	// Written directly, bypassing the rotation check: the warcinfo record
	// must never seal the segment before its first content record arrives,
	// no matter how small the rotation threshold is.
	if err := writeRecord(w.cur.gz, info); err != nil {
		return fmt.Errorf("%w: writing warcinfo record for '%s': %w", utils.ErrArchiveWrite, name, err)
	}
	w.cur.payloadBytes += info.Size()
	w.cur.records++
	return nil
}

// sealCurrent finalizes the open segment and moves it into the output dir.
// Sealed segments are immutable.
func (w *Writer) sealCurrent() error {
	seg := w.cur
	if seg == nil {
		return nil
	}
	w.cur = nil

	if err := seg.gz.Close(); err != nil {
		seg.file.Close()
		return fmt.Errorf("%w: finalizing segment '%s': %w", utils.ErrArchiveWrite, seg.stagingPath, err)
	}
	if err := seg.file.Close(); err != nil {
		return fmt.Errorf("%w: closing segment '%s': %w", utils.ErrArchiveWrite, seg.stagingPath, err)
	}

	finalPath := filepath.Join(w.cfg.Dir, filepath.Base(seg.stagingPath))
	if err := os.Rename(seg.stagingPath, finalPath); err != nil {
		return fmt.Errorf("%w: sealing segment to '%s': %w", utils.ErrArchiveWrite, finalPath, err)
	}

	w.sealed = append(w.sealed, sealedSegment{path: finalPath, contentRecs: seg.contentRecs})
	w.log.WithFields(logrus.Fields{
		"segment":       filepath.Base(finalPath),
		"payload_bytes": seg.payloadBytes,
		"records":       seg.records,
	}).Info("Sealed archive segment")
	return nil
}

// SegmentCount returns the number of sealed segments so far.
func (w *Writer) SegmentCount() int {
	return len(w.sealed)
}

// CurrentSegment returns the sequence number of the open segment, or -1 when
// no segment is open.
func (w *Writer) CurrentSegment() int {
	if w.cur == nil {
		return -1
	}
	return w.seq - 1
}

// Close seals the open segment regardless of size, relocates bookkeeping-only
// segments to the metadata location, and removes the staging area. Safe to
// call on every exit path; only the first call does work.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if err := w.sealCurrent(); err != nil {
		firstErr = err
	}

	if err := w.relocateBookkeepingSegments(); err != nil && firstErr == nil {
		firstErr = err
	}

	if w.cfg.KeepStaging {
		w.log.WithField("staging_dir", w.stagingDir).Warn("Keeping staging area as configured")
	} else if err := os.RemoveAll(w.stagingDir); err != nil {
		w.log.Errorf("Failed to remove staging area '%s': %v", w.stagingDir, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: removing staging area: %w", utils.ErrArchiveWrite, err)
		}
	}
	return firstErr
}

// relocateBookkeepingSegments moves segments with no content records into
// the metadata subdirectory, keeping the primary location content-only.
func (w *Writer) relocateBookkeepingSegments() error {
	metaDir := filepath.Join(w.cfg.Dir, MetaSubdir)
	for _, seg := range w.sealed {
		if seg.contentRecs > 0 {
			continue
		}
		if err := os.MkdirAll(metaDir, 0o755); err != nil {
			return fmt.Errorf("%w: creating metadata dir '%s': %w", utils.ErrArchiveWrite, metaDir, err)
		}
		target := filepath.Join(metaDir, filepath.Base(seg.path))
		if err := os.Rename(seg.path, target); err != nil {
			return fmt.Errorf("%w: relocating bookkeeping segment to '%s': %w", utils.ErrArchiveWrite, target, err)
		}
		w.log.WithField("segment", filepath.Base(seg.path)).Info("Relocated bookkeeping-only segment to metadata location")
	}
	return nil
}
