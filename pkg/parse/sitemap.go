package parse

import (
	"encoding/xml"
	"fmt"
	"strings"

	"webharvest/pkg/utils"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// SitemapContent is the result of parsing one sitemap document: either page
// URLs (from a urlset) or child sitemap URLs (from a sitemapindex).
type SitemapContent struct {
	PageURLs    []string
	ChildMaps   []string
	IsIndexFile bool
}

// ParseSitemap decodes sitemap XML, handling both plain urlset files and
// sitemapindex files.
func ParseSitemap(data []byte) (*SitemapContent, error) {
	var urlSet XMLURLSet
	if err := xml.Unmarshal(data, &urlSet); err == nil && urlSet.XMLName.Local == "urlset" {
		content := &SitemapContent{}
		for _, u := range urlSet.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				content.PageURLs = append(content.PageURLs, loc)
			}
		}
		return content, nil
	}

	var index XMLSitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && index.XMLName.Local == "sitemapindex" {
		content := &SitemapContent{IsIndexFile: true}
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				content.ChildMaps = append(content.ChildMaps, loc)
			}
		}
		return content, nil
	}

	return nil, fmt.Errorf("%w: XML is neither a urlset nor a sitemapindex", utils.ErrParsing)
}

// IsSitemapURL reports whether a seed entry looks like a sitemap reference
// rather than a page URL.
func IsSitemapURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	return strings.HasSuffix(lower, "sitemap.xml") ||
		strings.HasSuffix(lower, "sitemap_index.xml") ||
		strings.HasSuffix(lower, "sitemap.xml.gz") ||
		(strings.Contains(lower, "/sitemap") && strings.HasSuffix(lower, ".xml"))
}
