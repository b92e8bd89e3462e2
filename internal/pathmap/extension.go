package pathmap

import (
	"mime"

	"github.com/nao1215/sitemirror/internal/model"
)

// ExtensionLookup maps a content type to a file extension (with leading dot).
type ExtensionLookup interface {
	// ExtensionFor returns the extension for contentType and whether one is known.
	// Parameters such as charset are ignored.
	ExtensionFor(contentType string) (string, bool)
}

// defaultExtensions pins the extension for common web types.
// mime.ExtensionsByType returns every registered extension in sorted order,
// which would pick ".htm" for HTML and ".jpe" for JPEG.
var defaultExtensions = map[string]string{
	"text/html":                ".html",
	"application/xhtml+xml":    ".xhtml",
	"text/css":                 ".css",
	"text/javascript":          ".js",
	"application/javascript":   ".js",
	"application/x-javascript": ".js",
	"application/json":         ".json",
	"application/ld+json":      ".jsonld",
	"application/xml":          ".xml",
	"text/xml":                 ".xml",
	"application/rss+xml":      ".rss",
	"application/atom+xml":     ".atom",
	"text/plain":               ".txt",
	"text/csv":                 ".csv",
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/avif":               ".avif",
	"image/svg+xml":            ".svg",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"font/ttf":                 ".ttf",
	"font/otf":                 ".otf",
	"audio/mpeg":               ".mp3",
	"video/mp4":                ".mp4",
	"application/wasm":         ".wasm",
}

// TableLookup resolves extensions from a fixed table first and falls back to
// the platform MIME database.
type TableLookup struct {
	table map[string]string
}

// DefaultLookup returns the lookup used when the caller does not supply one.
func DefaultLookup() *TableLookup {
	return NewTableLookup(defaultExtensions)
}

// NewTableLookup creates a lookup from a media-type to extension table.
// Keys must be lower-case media types without parameters.
func NewTableLookup(table map[string]string) *TableLookup {
	copied := make(map[string]string, len(table))
	for k, v := range table {
		copied[k] = v
	}
	return &TableLookup{table: copied}
}

// ExtensionFor implements ExtensionLookup.
func (l *TableLookup) ExtensionFor(contentType string) (string, bool) {
	mediaType := model.ParseMediaType(contentType)
	if mediaType == "" {
		return "", false
	}
	if ext, ok := l.table[mediaType]; ok {
		return ext, true
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return "", false
	}
	return exts[0], true
}
