package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

// Extractor turns a captured HTML page into a structured text document.
// Content identification uses Mozilla's Readability algorithm over a
// pre-cleaned document (boilerplate containers stripped first), so ambiguous
// regions are dropped rather than kept. The main content is rendered to
// Markdown-flavoured plain text.
type Extractor struct {
	converter *md.Converter
}

// Boilerplate containers removed before readability runs. Stripping these up
// front biases the extraction toward precision: navigation chrome never gets
// a chance to score as content.
var boilerplateSelectors = []string{
	"nav", "header", "footer", "aside",
	"script", "style", "noscript", "iframe", "form",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".sidebar", ".breadcrumb", ".breadcrumbs", ".cookie-banner",
	"a.headerlink", "a.permalink",
}

func NewExtractor() *Extractor {
	return &Extractor{
		converter: md.NewConverter("", true, nil),
	}
}

// DocumentID derives the stable document identifier from a capture record:
// the hex SHA-256 of the target URI concatenated with the raw body. The same
// sealed record always yields the same ID.
func DocumentID(rec *models.CaptureRecord) string {
	h := make([]byte, 0, len(rec.TargetURI)+len(rec.Body))
	h = append(h, rec.TargetURI...)
	h = append(h, rec.Body...)
	return utils.CalculateBytesSHA256(h)
}

// Extract produces the document for one content capture record. Non-HTML or
// non-textual bodies, and pages where no main content survives the precision
// bias, return ErrExtraction.
func (e *Extractor) Extract(rec *models.CaptureRecord) (*models.ExtractedDocument, error) {
	if !utf8.Valid(rec.Body) || looksBinary(rec.Body) {
		return nil, fmt.Errorf("%w: non-textual body for '%s'", utils.ErrExtraction, rec.TargetURI)
	}

	pageURL, err := url.Parse(rec.TargetURI)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable target URI '%s': %v", utils.ErrExtraction, rec.TargetURI, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML for '%s': %v", utils.ErrExtraction, rec.TargetURI, err)
	}

	meta := extractMetadata(doc)

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	// A recognized site generator bounds the content exactly; otherwise
	// readability identifies it.
	var contentHTML string
	if container, generator := findKnownContainer(doc); container != nil {
		contentHTML, err = goquery.OuterHtml(container)
		if err != nil {
			return nil, fmt.Errorf("%w: serializing %s container for '%s': %v", utils.ErrExtraction, generator, rec.TargetURI, err)
		}
	} else {
		cleaned, err := doc.Html()
		if err != nil {
			return nil, fmt.Errorf("%w: serializing cleaned HTML for '%s': %v", utils.ErrExtraction, rec.TargetURI, err)
		}
		article, err := readability.FromReader(strings.NewReader(cleaned), pageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: readability failed for '%s': %v", utils.ErrExtraction, rec.TargetURI, err)
		}
		contentHTML = article.Content
		if meta.Title == "" {
			meta.Title = strings.TrimSpace(article.Title)
		}
		if meta.Author == "" {
			meta.Author = strings.TrimSpace(article.Byline)
		}
	}
	if strings.TrimSpace(contentHTML) == "" {
		return nil, fmt.Errorf("%w: no main content identified for '%s'", utils.ErrExtraction, rec.TargetURI)
	}

	text, err := e.converter.ConvertString(contentHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering text for '%s': %v", utils.ErrExtraction, rec.TargetURI, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: main content rendered empty for '%s'", utils.ErrExtraction, rec.TargetURI)
	}

	return &models.ExtractedDocument{
		ID:       DocumentID(rec),
		URL:      rec.TargetURI,
		Text:     text,
		Metadata: meta,
	}, nil
}

// extractMetadata reads title, author, and publication date from the head of
// the original (uncleaned) document. Missing fields stay empty; metadata is
// best-effort and never fails extraction.
func extractMetadata(doc *goquery.Document) models.DocumentMetadata {
	var meta models.DocumentMetadata

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		meta.Title = strings.TrimSpace(og)
	}

	for _, sel := range []string{
		`meta[name="author"]`,
		`meta[property="article:author"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta.Author = strings.TrimSpace(v)
			break
		}
	}

	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="dcterms.date"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta.Date = strings.TrimSpace(v)
			break
		}
	}
	if meta.Date == "" {
		if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			meta.Date = strings.TrimSpace(v)
		}
	}
	return meta
}

// looksBinary reports whether the first KiB contains NUL bytes, the cheap
// signal that a body is an image, archive, or other non-text payload that
// slipped through with a misleading Content-Type.
func looksBinary(body []byte) bool {
	probe := body
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
