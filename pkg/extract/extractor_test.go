package extract

import (
	"errors"
	"strings"
	"testing"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Raw Title</title>
	<meta property="og:title" content="Understanding Frontiers">
	<meta name="author" content="A. Crawler">
	<meta property="article:published_time" content="2026-03-01T09:00:00Z">
</head>
<body>
	<nav><a href="/">Home</a><a href="/docs">Docs</a></nav>
	<article>
		<h1>Understanding Frontiers</h1>
		<p>A frontier is the set of URLs a crawler has discovered but not yet
		fetched. Keeping it host-bound makes the crawl polite and predictable,
		and makes the visited set cheap to maintain over long runs.</p>
		<p>Sequential processing trades throughput for fairness: at most one
		request is in flight, and the delay between requests is enforced
		before every fetch rather than after.</p>
		<p>Archives produced this way are deterministic enough to re-extract:
		the same sealed segment always yields the same documents, which is
		what makes downstream filtering reproducible.</p>
	</article>
	<footer>Copyright 2026 - all rights reserved</footer>
</body>
</html>`

func contentRecord(uri string, body []byte) *models.CaptureRecord {
	return &models.CaptureRecord{
		ID:        "rec-1",
		Kind:      models.KindContent,
		TargetURI: uri,
		Status:    200,
		Body:      body,
	}
}

func TestExtractArticle(t *testing.T) {
	e := NewExtractor()
	rec := contentRecord("https://example.com/docs/frontiers", []byte(articleHTML))

	doc, err := e.Extract(rec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if doc.URL != rec.TargetURI {
		t.Errorf("URL = %q, want %q", doc.URL, rec.TargetURI)
	}
	if doc.ID != DocumentID(rec) {
		t.Error("document ID does not match DocumentID(rec)")
	}
	if !strings.Contains(doc.Text, "host-bound") {
		t.Errorf("main content missing from text:\n%s", doc.Text)
	}
	// The precision bias: navigation and footer never reach the output.
	for _, noise := range []string{"Home", "all rights reserved"} {
		if strings.Contains(doc.Text, noise) {
			t.Errorf("boilerplate %q leaked into text", noise)
		}
	}

	if doc.Metadata.Title != "Understanding Frontiers" {
		t.Errorf("title = %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "A. Crawler" {
		t.Errorf("author = %q", doc.Metadata.Author)
	}
	if doc.Metadata.Date != "2026-03-01T09:00:00Z" {
		t.Errorf("date = %q", doc.Metadata.Date)
	}
}

func TestExtractUsesKnownContainer(t *testing.T) {
	page := `<!DOCTYPE html>
<html data-docusaurus><head><title>API Guide</title></head><body>
<div class="sidebar">Version picker and other chrome that should vanish</div>
<main><article class="theme-doc-markdown">
<h1>API Guide</h1>
<p>The client exposes a single entry point and returns typed results for
every call, so error handling stays uniform across the surface.</p>
</article></main>
</body></html>`

	doc, err := NewExtractor().Extract(contentRecord("https://docs.example.com/api", []byte(page)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(doc.Text, "single entry point") {
		t.Errorf("container content missing:\n%s", doc.Text)
	}
	if strings.Contains(doc.Text, "Version picker") {
		t.Error("content outside the recognized container leaked into text")
	}
}

func TestExtractRejectsBinaryBody(t *testing.T) {
	e := NewExtractor()

	// A PNG-ish body: magic bytes plus NULs.
	body := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	rec := contentRecord("https://example.com/logo.png", body)

	_, err := e.Extract(rec)
	if !errors.Is(err, utils.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractRejectsContentFreePage(t *testing.T) {
	e := NewExtractor()
	rec := contentRecord("https://example.com/empty", []byte(`<html><head><title>t</title></head><body><nav>only chrome</nav></body></html>`))

	_, err := e.Extract(rec)
	if !errors.Is(err, utils.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestDocumentIDDeterministic(t *testing.T) {
	a := contentRecord("https://example.com/a", []byte("<html><body>x</body></html>"))
	b := contentRecord("https://example.com/a", []byte("<html><body>x</body></html>"))
	if DocumentID(a) != DocumentID(b) {
		t.Error("identical records produced different IDs")
	}

	c := contentRecord("https://example.com/b", []byte("<html><body>x</body></html>"))
	if DocumentID(a) == DocumentID(c) {
		t.Error("different target URIs produced the same ID")
	}
}

func TestCountTokensUninitialized(t *testing.T) {
	// Before InitTokenizer the counter must signal unavailability, not zero.
	if got := CountTokens("some text"); got != -1 && got <= 0 {
		t.Errorf("CountTokens = %d, want -1 or a positive count", got)
	}
}
