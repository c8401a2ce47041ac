package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// containerSignature pairs the marker selectors that identify a site
// generator with the selector of its main-content container. When a marker
// matches, the container bounds the extraction exactly and readability is
// not needed.
type containerSignature struct {
	name     string
	markers  []string
	selector string
}

// Order matters: more specific generators first.
var containerSignatures = []containerSignature{
	{
		name:     "docusaurus",
		markers:  []string{"[data-docusaurus]", ".docusaurus-wrapper", ".theme-doc-markdown"},
		selector: ".theme-doc-markdown, article.markdown, main article",
	},
	{
		name:     "mkdocs-material",
		markers:  []string{"[data-md-component]", ".md-content"},
		selector: "article.md-content__inner, .md-content article, .md-content",
	},
	{
		name:     "readthedocs",
		markers:  []string{".rst-content", ".wy-nav-content"},
		selector: ".rst-content, div[role='main']",
	},
	{
		name:     "sphinx",
		markers:  []string{".sphinxsidebar", "div.document", "article.bd-article"},
		selector: "div.document div.body, div.body, article.bd-article",
	},
	{
		name:     "gitbook",
		markers:  []string{"section.normal.markdown-section", ".markdown-section"},
		selector: "section.normal.markdown-section, .markdown-section",
	},
}

// findKnownContainer looks for a recognized site generator and returns its
// main-content selection and generator name, or nil when the page matches
// no signature.
func findKnownContainer(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sig := range containerSignatures {
		matched := false
		for _, marker := range sig.markers {
			if doc.Find(marker).Length() > 0 {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		sel := doc.Find(sig.selector)
		if sel.Length() == 0 {
			continue
		}
		return sel.First(), sig.name
	}
	return nil, ""
}
