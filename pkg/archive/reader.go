package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

// Reader iterates one sealed segment's records lazily, in original write
// order. Re-opening the segment restarts the sequence; the segment itself is
// never mutated.
type Reader struct {
	path string
	file *os.File
	gz   *gzip.Reader
	br   *bufio.Reader
}

// OpenSegment opens a sealed segment for reading.
func OpenSegment(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening segment '%s': %w", utils.ErrArchiveRead, path, err)
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: segment '%s' is not valid gzip: %w", utils.ErrArchiveRead, path, err)
	}
	return &Reader{
		path: path,
		file: file,
		gz:   gz,
		br:   bufio.NewReader(gz),
	}, nil
}

// Next returns the next record, or io.EOF at the end of the segment.
func (r *Reader) Next() (*models.CaptureRecord, error) {
	return readRecord(r.br)
}

// Path returns the segment file path.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	gzErr := r.gz.Close()
	fileErr := r.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}

// ListSegments returns the sealed content segments in dir, sorted by name.
// Segment names embed the sequence number, so name order is write order.
// The metadata subdirectory is not descended into.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing segment dir '%s': %w", utils.ErrArchiveRead, dir, err)
	}
	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		segments = append(segments, filepath.Join(dir, name))
	}
	sort.Strings(segments)
	return segments, nil
}
