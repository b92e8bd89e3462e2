package report

import (
	"io"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/sitemirror/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary of one crawl.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.CrawlSummary) (int, error)

	// WriteRuns outputs a list of journaled runs.
	WriteRuns(runs []model.RunInfo) (int, error)

	// WriteFetches outputs the per-URL journal rows of one run.
	WriteFetches(records []model.FetchRecord) (int, error)
}

// MultiWriter writes to multiple Writers in order, for example the
// terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.CrawlSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteRuns outputs the run list to all configured Writers.
func (m *MultiWriter) WriteRuns(runs []model.RunInfo) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteRuns(runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFetches outputs the fetch records to all configured Writers.
func (m *MultiWriter) WriteFetches(records []model.FetchRecord) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteFetches(records)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// title turns keys such as "redirect-limit" into headings.
// A Caser is stateful, so a new one is created per call.
func title(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '-' || r == '_' {
			out[i] = ' '
		}
	}
	return cases.Title(language.English).String(string(out))
}

// status returns the one-word state of a crawl.
func status(summary *model.CrawlSummary) string {
	switch {
	case summary.Cancelled:
		return "cancelled"
	case summary.Failed > 0 || summary.PersistErrors > 0:
		return "completed with errors"
	default:
		return "complete"
	}
}

// runStatus returns the state of a journaled run.
func runStatus(run model.RunInfo) string {
	if run.FinishedAt == nil || run.Summary == nil {
		return "running or interrupted"
	}
	return status(run.Summary)
}

// fetchDetail returns the most useful short description of a journal row:
// the error when there is one, otherwise the mirrored path or final URL.
func fetchDetail(rec model.FetchRecord) string {
	switch {
	case rec.Error != "":
		return rec.Error
	case rec.Path != "":
		return rec.Path
	case rec.FinalURL != "" && rec.FinalURL != rec.URL:
		return "-> " + rec.FinalURL
	default:
		return ""
	}
}
