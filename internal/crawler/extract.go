package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/sitemirror/internal/model"
)

// Drop reasons, spelled like the frontier's rejection reasons.
const (
	reasonIgnored = "ignored"
	reasonInvalid = "invalid"
)

// linkAttributes maps element names to the attribute holding a reference.
// <base href> is treated as an ordinary reference and does not change the
// resolution base.
var linkAttributes = map[string]string{
	"a":      "href",
	"link":   "href",
	"script": "src",
	"img":    "src",
	"base":   "href",
	"area":   "href",
}

// ParseDocument decodes body to UTF-8 and parses it as HTML.
// The charset is taken from contentType, then from a BOM or <meta> tag,
// falling back to windows-1252 as browsers do.
//
// Attribute values come back unescaped the way browsers unescape them.
func ParseDocument(body []byte, contentType string) (*html.Node, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Extraction is the result of scanning one document.
type Extraction struct {
	// Links are absolute URLs in document order, duplicates preserved.
	Links []string

	// Dropped are the values that can never be fetched (mailto:,
	// javascript:, bare fragments, empty values) and the values that do
	// not parse as URLs.
	Dropped []model.DroppedReference
}

// Extract collects the references of a document, resolved against base
// (the URL the document was served from). Deduplication is the frontier's
// job.
func Extract(base *url.URL, doc *html.Node) *Extraction {
	ext := &Extraction{Links: make([]string, 0)}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if key, ok := linkAttributes[n.Data]; ok {
				if value, found := getAttr(n, key); found {
					ext.add(base, value)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return ext
}

// ExtractLinks returns only the links of Extract.
func ExtractLinks(base *url.URL, doc *html.Node) []string {
	return Extract(base, doc).Links
}

// ExtractFromResult parses an HTML fetch result and extracts its links.
func ExtractFromResult(res *model.FetchResult) (*Extraction, error) {
	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("parse final url: %w", err)
	}
	doc, err := ParseDocument(res.Body, res.ContentType)
	if err != nil {
		return nil, err
	}
	return Extract(base, doc), nil
}

func (e *Extraction) add(base *url.URL, value string) {
	if model.IsIgnoredReference(value) {
		e.drop(value, reasonIgnored)
		return
	}
	ref, err := url.Parse(strings.TrimSpace(value))
	switch {
	case err != nil, base == nil && !ref.IsAbs():
		e.drop(value, reasonInvalid)
	case base == nil:
		e.Links = append(e.Links, ref.String())
	default:
		e.Links = append(e.Links, base.ResolveReference(ref).String())
	}
}

func (e *Extraction) drop(value, reason string) {
	e.Dropped = append(e.Dropped, model.DroppedReference{Value: value, Reason: reason})
}

// getAttr returns the value of the attribute key and whether it is present.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
