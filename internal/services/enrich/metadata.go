package enrich

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMetadata is the structured metadata extracted from one article page.
type PageMetadata struct {
	CanonicalURL    string
	SiteName        string
	OGImageURL      string
	TwitterImageURL string
	OGTitle         string
	OGDescription   string
}

// ExtractMetadata pulls Open Graph, Twitter card and canonical metadata
// out of page HTML. Relative URLs resolve against pageURL.
func ExtractMetadata(pageURL string, html []byte) (*PageMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	meta := &PageMetadata{
		CanonicalURL:    resolveURL(base, headLink(doc, "canonical")),
		SiteName:        metaProperty(doc, "og:site_name"),
		OGImageURL:      resolveURL(base, firstNonEmpty(metaProperty(doc, "og:image"), metaProperty(doc, "og:image:url"))),
		TwitterImageURL: resolveURL(base, firstNonEmpty(metaName(doc, "twitter:image"), metaName(doc, "twitter:image:src"))),
		OGTitle:         metaProperty(doc, "og:title"),
		OGDescription:   metaProperty(doc, "og:description"),
	}

	if meta.CanonicalURL == "" {
		meta.CanonicalURL = resolveURL(base, metaProperty(doc, "og:url"))
	}
	if meta.SiteName == "" {
		meta.SiteName = base.Hostname()
	}

	return meta, nil
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func metaName(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func headLink(doc *goquery.Document, rel string) string {
	href, _ := doc.Find(`link[rel="` + rel + `"]`).First().Attr("href")
	return strings.TrimSpace(href)
}

func resolveURL(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
