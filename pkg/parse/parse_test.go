package parse

import (
	"errors"
	"net/url"
	"testing"

	"webharvest/pkg/utils"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "https://example.com/docs", "https://example.com/docs"},
		{"uppercase scheme and host", "HTTPS://Example.COM/docs", "https://example.com/docs"},
		{"default https port", "https://example.com:443/docs", "https://example.com/docs"},
		{"default http port", "http://example.com:80/docs", "http://example.com/docs"},
		{"non-default port kept", "http://example.com:8080/docs", "http://example.com:8080/docs"},
		{"trailing slash stripped", "https://example.com/docs/", "https://example.com/docs"},
		{"root path kept", "https://example.com/", "https://example.com/"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"fragment removed", "https://example.com/docs#section-2", "https://example.com/docs"},
		{"query kept and sorted", "https://example.com/s?b=2&a=1", "https://example.com/s?a=1&b=2"},
		{"query values sorted within key", "https://example.com/s?a=2&a=1", "https://example.com/s?a=1&a=2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := NormalizeURL(u); got != tc.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeURLEquivalenceClasses(t *testing.T) {
	// All of these must collapse to the same frontier key.
	variants := []string{
		"https://example.com/docs?b=2&a=1",
		"https://Example.com/docs/?a=1&b=2",
		"https://example.com:443/docs?b=2&a=1#top",
	}
	var keys []string
	for _, v := range variants {
		key, _, err := ParseAndNormalize(v)
		if err != nil {
			t.Fatalf("ParseAndNormalize(%q): %v", v, err)
		}
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] != keys[0] {
			t.Errorf("key mismatch: %q vs %q", keys[i], keys[0])
		}
	}

	// Distinct queries stay distinct pages.
	k1, _, _ := ParseAndNormalize("https://example.com/docs?page=1")
	k2, _, _ := ParseAndNormalize("https://example.com/docs?page=2")
	if k1 == k2 {
		t.Error("distinct queries collapsed to one key")
	}
}

func TestParseAndNormalizeRejectsRelative(t *testing.T) {
	if _, _, err := ParseAndNormalize("docs/intro"); err == nil {
		t.Error("relative reference accepted")
	}
}

func TestExtractLinks(t *testing.T) {
	html := []byte(`<html><body>
		<a href="/a">rel</a>
		<a href="https://example.com/b">abs</a>
		<a href="/a#frag">dup via fragment</a>
		<a href="#top">fragment only</a>
		<a href="mailto:hi@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="tel:+123">tel</a>
		<a href="https://other.example.net/c">off-host kept, caller filters</a>
	</body></html>`)
	base, _ := url.Parse("https://example.com/index")

	links, err := ExtractLinks(html, base)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}

	got := make([]string, len(links))
	for i, l := range links {
		got[i] = l.String()
	}
	want := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://other.example.net/c",
	}
	if len(got) != len(want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseSitemapURLSet(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<url><loc>https://example.com/a</loc><lastmod>2026-01-01</lastmod></url>
	<url><loc> https://example.com/b </loc></url>
	<url><loc></loc></url>
</urlset>`)

	content, err := ParseSitemap(data)
	if err != nil {
		t.Fatalf("ParseSitemap: %v", err)
	}
	if content.IsIndexFile {
		t.Error("urlset flagged as index")
	}
	want := []string{"https://example.com/a", "https://example.com/b"}
	if len(content.PageURLs) != len(want) {
		t.Fatalf("page URLs = %v", content.PageURLs)
	}
	for i := range want {
		if content.PageURLs[i] != want[i] {
			t.Errorf("page URL %d = %q, want %q", i, content.PageURLs[i], want[i])
		}
	}
}

func TestParseSitemapIndex(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
	<sitemap><loc>https://example.com/sitemap-2.xml</loc></sitemap>
</sitemapindex>`)

	content, err := ParseSitemap(data)
	if err != nil {
		t.Fatalf("ParseSitemap: %v", err)
	}
	if !content.IsIndexFile {
		t.Error("sitemapindex not flagged as index")
	}
	if len(content.ChildMaps) != 2 {
		t.Errorf("child maps = %v", content.ChildMaps)
	}
}

func TestParseSitemapRejectsOtherXML(t *testing.T) {
	_, err := ParseSitemap([]byte(`<rss version="2.0"><channel></channel></rss>`))
	if !errors.Is(err, utils.ErrParsing) {
		t.Errorf("err = %v, want ErrParsing", err)
	}
}

func TestIsSitemapURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/sitemap.xml", true},
		{"https://example.com/sitemap_index.xml", true},
		{"https://example.com/sitemap.xml.gz", true},
		{"https://example.com/sitemap-posts.xml", true},
		{"https://example.com/Sitemap.XML", true},
		{"https://example.com/sitemap.xml?page=2", true},
		{"https://example.com/docs/page.html", false},
		{"https://example.com/feed.xml", false},
	}
	for _, tc := range tests {
		if got := IsSitemapURL(tc.url); got != tc.want {
			t.Errorf("IsSitemapURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
