package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitemirror/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is included in the output envelope when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps the output in an envelope carrying the sitemirror version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the envelope written when a version is configured.
//
// The version lives in the envelope, not in CrawlSummary, since the journal
// stores summaries as they are.
type JSONReport struct {
	// Version is the sitemirror version that generated this report.
	Version string `json:"version"`

	// Summary is set when writing one crawl.
	Summary *model.CrawlSummary `json:"summary,omitempty"`

	// Runs is set when writing journal history.
	Runs []model.RunInfo `json:"runs,omitempty"`

	// Fetches is set when writing the journal rows of one run.
	Fetches []model.FetchRecord `json:"fetches,omitempty"`
}

// Write outputs the crawl summary in JSON format.
func (w *JSONWriter) Write(summary *model.CrawlSummary) (int, error) {
	if w.version != "" {
		return w.writeJSON(&JSONReport{Version: w.version, Summary: summary})
	}
	return w.writeJSON(summary)
}

// WriteRuns outputs the run list in JSON format.
// An empty list is written as [] rather than null.
func (w *JSONWriter) WriteRuns(runs []model.RunInfo) (int, error) {
	if runs == nil {
		runs = []model.RunInfo{}
	}
	if w.version != "" {
		return w.writeJSON(&JSONReport{Version: w.version, Runs: runs})
	}
	return w.writeJSON(runs)
}

// WriteFetches outputs the journal rows in JSON format.
func (w *JSONWriter) WriteFetches(records []model.FetchRecord) (int, error) {
	if records == nil {
		records = []model.FetchRecord{}
	}
	if w.version != "" {
		return w.writeJSON(&JSONReport{Version: w.version, Fetches: records})
	}
	return w.writeJSON(records)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
