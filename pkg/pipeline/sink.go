package pipeline

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/models"
)

const (
	acceptedSubdir = "data"
	rejectedSubdir = "rejected"
	shardSuffix    = ".jsonl.gz"
)

// DocumentSink owns the extraction output tree: accepted documents under
// data/, rejected ones under rejected/, both as gzipped JSONL shards named
// after the archive segment they came from. Each segment task writes its own
// shard, so shards need no locking.
type DocumentSink struct {
	root string
	log  *logrus.Entry
}

// rejectedDocument is an accepted-shape document plus the filter reason.
type rejectedDocument struct {
	models.ExtractedDocument
	Reason string `json:"reason"`
}

func NewDocumentSink(root string, log *logrus.Entry) (*DocumentSink, error) {
	for _, sub := range []string{acceptedSubdir, rejectedSubdir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir '%s': %w", filepath.Join(root, sub), err)
		}
	}
	return &DocumentSink{root: root, log: log}, nil
}

// NewShard opens the output pair for one archive segment. Files are created
// lazily on first write, so a segment with no documents of a given kind
// leaves no empty shard behind.
func (s *DocumentSink) NewShard(segmentPath string) *Shard {
	base := strings.TrimSuffix(filepath.Base(segmentPath), ".warc.gz")
	return &Shard{
		acceptedPath: filepath.Join(s.root, acceptedSubdir, base+shardSuffix),
		rejectedPath: filepath.Join(s.root, rejectedSubdir, base+shardSuffix),
		log:          s.log.WithField("shard", base),
	}
}

// Shard is the accepted/rejected output pair for one segment. Not safe for
// concurrent use; each segment task owns exactly one.
type Shard struct {
	acceptedPath string
	rejectedPath string
	log          *logrus.Entry

	accepted *shardFile
	rejected *shardFile
}

func (sh *Shard) WriteAccepted(doc *models.ExtractedDocument) error {
	f, err := openShardFile(&sh.accepted, sh.acceptedPath)
	if err != nil {
		return err
	}
	return f.encode(doc)
}

func (sh *Shard) WriteRejected(doc *models.ExtractedDocument, reason string) error {
	f, err := openShardFile(&sh.rejected, sh.rejectedPath)
	if err != nil {
		return err
	}
	return f.encode(&rejectedDocument{ExtractedDocument: *doc, Reason: reason})
}

// Close finalizes both shard files. Must be called even when no document was
// written; it is a no-op then.
func (sh *Shard) Close() error {
	var firstErr error
	for _, f := range []*shardFile{sh.accepted, sh.rejected} {
		if f == nil {
			continue
		}
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sh.accepted, sh.rejected = nil, nil
	return firstErr
}

type shardFile struct {
	path string
	file *os.File
	gz   *gzip.Writer
	enc  *json.Encoder
}

func openShardFile(slot **shardFile, path string) (*shardFile, error) {
	if *slot != nil {
		return *slot, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating shard '%s': %w", path, err)
	}
	gz := gzip.NewWriter(file)
	sf := &shardFile{path: path, file: file, gz: gz, enc: json.NewEncoder(gz)}
	*slot = sf
	return sf, nil
}

func (f *shardFile) encode(v any) error {
	if err := f.enc.Encode(v); err != nil {
		return fmt.Errorf("writing shard '%s': %w", f.path, err)
	}
	return nil
}

func (f *shardFile) close() error {
	if err := f.gz.Close(); err != nil {
		f.file.Close()
		return fmt.Errorf("finalizing shard '%s': %w", f.path, err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing shard '%s': %w", f.path, err)
	}
	return nil
}
