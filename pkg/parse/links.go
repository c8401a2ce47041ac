package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webharvest/pkg/utils"
)

// ExtractLinks parses an HTML body and returns the absolute form of every
// a[href] link, resolved against base. Fragment-only, mailto:, javascript:,
// tel: and data: links are skipped. Duplicates (by normalized form) are
// collapsed, first occurrence wins.
func ExtractLinks(body []byte, base *url.URL) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML from '%s': %w", utils.ErrParsing, base, err)
	}

	seen := make(map[string]bool)
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		for _, scheme := range []string{"mailto:", "javascript:", "tel:", "data:"} {
			if strings.HasPrefix(lower, scheme) {
				return
			}
		}

		resolved, parseErr := base.Parse(href)
		if parseErr != nil {
			return // Malformed hrefs are not worth failing the page over
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		key := NormalizeURL(resolved)
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, resolved)
	})

	return links, nil
}
