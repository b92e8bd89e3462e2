package model

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// FrontierEntry is one unit of crawl work: a URL accepted by the frontier and
// waiting to be (or being) fetched.
type FrontierEntry struct {
	// URL is the normalized URL to fetch.
	URL NormalizedURL

	// DiscoveredFrom is the page (or redirecting URL) the reference was found on.
	// Empty for seeds.
	DiscoveredFrom NormalizedURL

	// Depth is the number of link hops from the seed. Redirect hops do not
	// increase the depth.
	Depth int

	// Redirects is the number of redirect hops that led to this entry.
	// It is compared against the configured hop limit.
	Redirects int
}

// FetchResult holds the response of one HTTP exchange.
// Transport failures never produce a FetchResult; they are returned as errors.
type FetchResult struct {
	// URL is the URL that was requested.
	URL NormalizedURL `json:"url"`

	// FinalURL is the URL the body was served from. The fetcher never follows
	// redirects itself, so this equals URL unless a fetcher implementation
	// reports otherwise.
	FinalURL string `json:"final_url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the raw Content-Type header value. It may be empty.
	ContentType string `json:"content_type,omitempty"`

	// Body is the decoded response body.
	Body []byte `json:"-"`

	// Headers contains the response headers.
	Headers http.Header `json:"headers,omitempty"`

	// Attempts is the number of attempts it took to obtain this result.
	Attempts int `json:"attempts"`
}

// MediaType returns the lower-cased media type without parameters.
// An empty string is returned when the Content-Type is missing or unparseable.
func (r *FetchResult) MediaType() string {
	return ParseMediaType(r.ContentType)
}

// IsHTML reports whether the declared content type is an HTML document.
func (r *FetchResult) IsHTML() bool {
	return IsHTMLMediaType(r.MediaType())
}

// Location returns the redirect target of a 3xx response, or an empty string.
func (r *FetchResult) Location() string {
	if r.StatusCode < 300 || r.StatusCode > 399 || r.Headers == nil {
		return ""
	}
	return strings.TrimSpace(r.Headers.Get("Location"))
}

// ParseMediaType extracts the media type from a Content-Type value.
// It returns an empty string when the value is empty or cannot be parsed.
func ParseMediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// IsHTMLMediaType reports whether mediaType names an HTML document.
func IsHTMLMediaType(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// PathDecision describes where a fetched resource is stored, relative to the
// save directory root.
type PathDecision struct {
	// Dirs are the sanitized directory segments, outermost first.
	Dirs []string `json:"dirs"`

	// Filename is the sanitized file name (at most 255 bytes).
	Filename string `json:"filename"`

	// Extension is the extension of Filename including the leading dot,
	// or empty when the file has none.
	Extension string `json:"extension,omitempty"`

	// Overwrite tells the content sink whether an existing file may be replaced.
	Overwrite bool `json:"overwrite"`
}

// Dir returns the directory the file belongs in under root.
func (d PathDecision) Dir(root string) string {
	parts := make([]string, 0, len(d.Dirs)+1)
	parts = append(parts, root)
	parts = append(parts, d.Dirs...)
	return filepath.Join(parts...)
}

// Path returns the full file path under root.
func (d PathDecision) Path(root string) string {
	return filepath.Join(d.Dir(root), d.Filename)
}

// PersistStatus is the outcome of writing content for one URL.
type PersistStatus string

const (
	// PersistNone means content persistence did not run for the URL.
	PersistNone PersistStatus = ""
	// PersistWritten means the content was written to its path.
	PersistWritten PersistStatus = "written"
	// PersistSkippedExists means the path was already claimed and overwrite is off.
	PersistSkippedExists PersistStatus = "skipped-exists"
	// PersistError means the write failed; nothing is left claimed.
	PersistError PersistStatus = "error"
)
