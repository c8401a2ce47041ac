package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestWriter(t *testing.T, maxSize int64, keepStaging bool) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{
		Dir:            dir,
		Prefix:         "crawl",
		MaxSegmentSize: maxSize,
		KeepStaging:    keepStaging,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w, dir
}

func contentRecord(id, uri string, body []byte) *models.CaptureRecord {
	return &models.CaptureRecord{
		ID:        id,
		Kind:      models.KindContent,
		TargetURI: uri,
		Status:    200,
		Headers: map[string]string{
			"Content-Type": "text/html",
			"Server":       "test",
		},
		Body:      body,
		FetchedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func readSegment(t *testing.T, path string) []*models.CaptureRecord {
	t.Helper()
	r, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("OpenSegment(%s): %v", path, err)
	}
	defer r.Close()

	var recs []*models.CaptureRecord
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		recs = append(recs, rec)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	w, dir := newTestWriter(t, 1<<20, false)

	in := contentRecord("11111111-1111-1111-1111-111111111111", "https://example.com/page?a=1", []byte("<html><body>hello</body></html>"))
	if err := w.Append(in); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}

	recs := readSegment(t, segments[0])
	if len(recs) != 2 {
		t.Fatalf("records = %d, want warcinfo + response", len(recs))
	}
	if recs[0].Kind != models.KindBookkeeping {
		t.Error("first record is not the warcinfo record")
	}

	got := recs[1]
	if got.Kind != models.KindContent {
		t.Fatal("second record is not content")
	}
	if got.ID != in.ID {
		t.Errorf("ID = %q, want %q", got.ID, in.ID)
	}
	if got.TargetURI != in.TargetURI {
		t.Errorf("TargetURI = %q, want %q", got.TargetURI, in.TargetURI)
	}
	if got.Status != in.Status {
		t.Errorf("Status = %d, want %d", got.Status, in.Status)
	}
	if string(got.Body) != string(in.Body) {
		t.Errorf("Body = %q, want %q", got.Body, in.Body)
	}
	if got.Headers["Content-Type"] != "text/html" || got.Headers["Server"] != "test" {
		t.Errorf("Headers = %v", got.Headers)
	}
	if !got.FetchedAt.Equal(in.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, in.FetchedAt)
	}
}

func TestRotationOverrunsByAtMostOneRecord(t *testing.T) {
	w, dir := newTestWriter(t, 1000, false)

	body := make([]byte, 600)
	for i := 0; i < 5; i++ {
		if err := w.Append(contentRecord("id", "https://example.com/p", body)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}
	for i, wantContent := range []int{2, 2, 1} {
		content := 0
		for _, rec := range readSegment(t, segments[i]) {
			if rec.Kind == models.KindContent {
				content++
			}
		}
		if content != wantContent {
			t.Errorf("segment %d content records = %d, want %d", i, content, wantContent)
		}
	}
}

func TestThresholdSmallerThanWarcinfoRecord(t *testing.T) {
	// A rotation threshold below the size of the warcinfo record must not
	// seal the segment before the first content record is written.
	w, dir := newTestWriter(t, 10, false)

	for i := 0; i < 3; i++ {
		if err := w.Append(contentRecord("id", "https://example.com/p", []byte("payload"))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want one per content record", len(segments))
	}
	for i, p := range segments {
		content := 0
		for _, rec := range readSegment(t, p) {
			if rec.Kind == models.KindContent {
				content++
			}
		}
		if content != 1 {
			t.Errorf("segment %d content records = %d, want 1", i, content)
		}
	}
}

func TestSegmentNaming(t *testing.T) {
	w, dir := newTestWriter(t, 100, false)
	for i := 0; i < 3; i++ {
		if err := w.Append(contentRecord("id", "https://example.com/p", make([]byte, 200))); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"crawl-00000.warc.gz", "crawl-00001.warc.gz", "crawl-00002.warc.gz"}
	if len(segments) != len(want) {
		t.Fatalf("segments = %v", segments)
	}
	for i, p := range segments {
		if filepath.Base(p) != want[i] {
			t.Errorf("segment %d = %s, want %s", i, filepath.Base(p), want[i])
		}
	}
}

func TestEmptyRunYieldsNoContentSegments(t *testing.T) {
	w, dir := newTestWriter(t, 1000, false)
	// Nothing appended at all: no segment is ever opened.
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 0 {
		t.Errorf("segments = %v, want none", segments)
	}
}

func TestBookkeepingOnlySegmentMovesToMeta(t *testing.T) {
	w, dir := newTestWriter(t, 1<<20, false)
	// Force a segment open without any content record.
	if err := w.Append(&models.CaptureRecord{
		ID:        "extra-info",
		Kind:      models.KindBookkeeping,
		Body:      []byte("operator: test\r\n"),
		FetchedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 0 {
		t.Errorf("content segment list = %v, want none", segments)
	}

	metaSegments, err := ListSegments(filepath.Join(dir, MetaSubdir))
	if err != nil {
		t.Fatal(err)
	}
	if len(metaSegments) != 1 {
		t.Fatalf("meta segments = %v, want 1", metaSegments)
	}
	recs := readSegment(t, metaSegments[0])
	for _, rec := range recs {
		if rec.Kind != models.KindBookkeeping {
			t.Error("meta segment contains a content record")
		}
	}
}

func TestStagingCleanup(t *testing.T) {
	for _, keep := range []bool{false, true} {
		w, dir := newTestWriter(t, 1<<20, keep)
		if err := w.Append(contentRecord("id", "https://example.com/p", []byte("x"))); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".staging-") {
				found = true
			}
		}
		if found != keep {
			t.Errorf("keepStaging=%v: staging dir present = %v", keep, found)
		}
	}
}

func TestAppendAfterClose(t *testing.T) {
	w, _ := newTestWriter(t, 1000, false)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	err := w.Append(contentRecord("id", "https://example.com/p", []byte("x")))
	if !errors.Is(err, utils.ErrArchiveWrite) {
		t.Errorf("err = %v, want ErrArchiveWrite", err)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad-00000.warc.gz")
	if err := os.WriteFile(path, []byte("definitely not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenSegment(path)
	if !errors.Is(err, utils.ErrArchiveRead) {
		t.Errorf("err = %v, want ErrArchiveRead", err)
	}
}

func TestListSegmentsSkipsUnrelatedEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"crawl-00000.warc.gz", "notes.txt", ".hidden.warc.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, MetaSubdir), 0o755); err != nil {
		t.Fatal(err)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || filepath.Base(segments[0]) != "crawl-00000.warc.gz" {
		t.Errorf("segments = %v", segments)
	}
}
