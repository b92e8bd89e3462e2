package pathmap

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/sitemirror/internal/model"
)

// MaxNameBytes is the longest file or directory name written to disk.
// Most filesystems reject names longer than 255 bytes.
const MaxNameBytes = 255

// IndexName is the base name used for directory-like URLs.
const IndexName = "index"

// ErrInvalidURL is returned when the URL cannot be parsed.
var ErrInvalidURL = errors.New("invalid url")

// fileLikeSegment matches a last path segment that carries an extension of
// two to ten alphanumeric characters, e.g. "style.css" or "archive.tar.gz".
var fileLikeSegment = regexp.MustCompile(`.+\.[A-Za-z0-9]{2,10}$`)

// Mapper resolves URLs to PathDecisions using an extension lookup.
// A Mapper holds no mutable state and is safe for concurrent use.
type Mapper struct {
	lookup ExtensionLookup
}

// NewMapper creates a Mapper. A nil lookup selects DefaultLookup.
func NewMapper(lookup ExtensionLookup) *Mapper {
	if lookup == nil {
		lookup = DefaultLookup()
	}
	return &Mapper{lookup: lookup}
}

// Resolve computes where the resource at rawURL is stored.
// The overwrite flag is carried in the decision for the content sink.
func (m *Mapper) Resolve(rawURL, contentType string, overwrite bool) (model.PathDecision, error) {
	decision, err := Resolve(rawURL, contentType, m.lookup)
	if err != nil {
		return model.PathDecision{}, err
	}
	decision.Overwrite = overwrite
	return decision, nil
}

// Resolve maps a URL to its path decision.
//
// The algorithm works on the path only (scheme and host are dropped):
//  1. Strip one trailing "/" and split on "/". An empty path has no segments.
//  2. If the last segment looks like a file name, or the URL has a query
//     string, the last segment is the filename and the rest are directories.
//     The query itself is not part of the name, so "a.css?v=1" and "a.css?v=2"
//     map to the same path and the second one is subject to the overwrite policy.
//  3. Otherwise every segment is a directory and the filename is "index"
//     plus the extension for contentType (".html" for HTML, none if unknown).
//
// Names are stripped of control bytes (including NUL) and truncated to
// MaxNameBytes on a rune boundary. "." and ".." segments are dropped so a
// decision can never escape the mirror root.
func Resolve(rawURL, contentType string, lookup ExtensionLookup) (model.PathDecision, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.PathDecision{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if lookup == nil {
		lookup = DefaultLookup()
	}

	segments := splitPath(u)
	// A bare trailing "?" has no query and does not count as one.
	hasQuery := u.RawQuery != ""

	var decision model.PathDecision
	if n := len(segments); n > 0 && (hasQuery || fileLikeSegment.MatchString(segments[n-1])) {
		if name := sanitizeName(segments[n-1]); name != "" {
			decision.Dirs = sanitizeDirs(segments[:n-1])
			decision.Filename = name
			decision.Extension = extensionOf(name)
			return decision, nil
		}
	}

	decision.Dirs = sanitizeDirs(segments)
	decision.Extension = indexExtension(contentType, lookup)
	decision.Filename = IndexName + decision.Extension
	return decision, nil
}

// splitPath returns the unescaped, non-empty path segments of u.
// Splitting happens on the escaped form so an encoded "%2F" stays inside
// its segment instead of creating a directory.
func splitPath(u *url.URL) []string {
	p := u.EscapedPath()
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}

	raw := strings.Split(p, "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
		segments = append(segments, s)
	}
	return segments
}

func sanitizeDirs(segments []string) []string {
	dirs := make([]string, 0, len(segments))
	for _, s := range segments {
		if name := sanitizeName(s); name != "" {
			dirs = append(dirs, name)
		}
	}
	return dirs
}

// sanitizeName removes control bytes and path separators, truncates to
// MaxNameBytes, and returns "" for names that cannot be used on disk.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			continue
		}
		if r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	name := truncate(b.String(), MaxNameBytes)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i:]
}

func indexExtension(contentType string, lookup ExtensionLookup) string {
	if ext, ok := lookup.ExtensionFor(contentType); ok {
		return ext
	}
	if model.IsHTMLMediaType(model.ParseMediaType(contentType)) {
		return ".html"
	}
	return ""
}
