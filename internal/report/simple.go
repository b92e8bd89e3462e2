package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/nao1215/sitemirror/internal/model"
)

// SimpleWriter outputs human-readable text reports.
//
// Colors follow fatih/color's terminal and NO_COLOR detection unless
// WithColor overrides it for this writer.
type SimpleWriter struct {
	baseWriter

	// verbose enables additional detail in the output.
	verbose bool

	good  *color.Color
	warn  *color.Color
	bad   *color.Color
	bold  *color.Color
	faint *color.Color
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithColor forces colors on or off.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		for _, c := range w.colors() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		good:       color.New(color.FgGreen),
		warn:       color.New(color.FgYellow),
		bad:        color.New(color.FgRed),
		bold:       color.New(color.Bold),
		faint:      color.New(color.Faint),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *SimpleWriter) colors() []*color.Color {
	return []*color.Color{w.good, w.warn, w.bad, w.bold, w.faint}
}

// Write outputs the crawl summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.CrawlSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	w.writeRejections(&sb, summary)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the seed, destination and status.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.CrawlSummary) {
	sb.WriteString(w.bold.Sprint("Crawl summary"))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Seed:      %s\n", summary.Seed)
	if summary.SaveDir != "" {
		fmt.Fprintf(sb, "  Saved to:  %s\n", summary.SaveDir)
	}
	if summary.RunID != "" {
		fmt.Fprintf(sb, "  Run:       %s\n", summary.RunID)
	}
	fmt.Fprintf(sb, "  Duration:  %s\n", summary.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "  Status:    %s\n", w.colorStatus(summary))
	sb.WriteString("\n")
}

func (w *SimpleWriter) colorStatus(summary *model.CrawlSummary) string {
	s := status(summary)
	switch {
	case summary.Cancelled:
		return w.warn.Sprint(s)
	case summary.Failed > 0 || summary.PersistErrors > 0:
		return w.bad.Sprint(s)
	default:
		return w.good.Sprint(s)
	}
}

// writeCounts writes the per-outcome counters.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, summary *model.CrawlSummary) {
	fmt.Fprintf(sb, "  Visited:   %d\n", summary.Visited)
	fmt.Fprintf(sb, "  Fetched:   %s\n", w.good.Sprint(summary.Fetched))
	fmt.Fprintf(sb, "  Written:   %d (%s)\n", summary.Written, humanize.Bytes(uint64(max(summary.Bytes, 0))))
	fmt.Fprintf(sb, "  Skipped:   %d\n", summary.Skipped)
	fmt.Fprintf(sb, "  Failed:    %s\n", w.count(summary.Failed))
	if summary.PersistErrors > 0 || w.verbose {
		fmt.Fprintf(sb, "  Write errors: %s\n", w.count(summary.PersistErrors))
	}
	fmt.Fprintf(sb, "  Redirects: %d", summary.Redirects)
	if summary.RedirectLimited > 0 {
		fmt.Fprintf(sb, " (%s over the hop limit)", w.warn.Sprint(summary.RedirectLimited))
	}
	sb.WriteString("\n")
	if summary.LinksLogged > 0 || w.verbose {
		fmt.Fprintf(sb, "  Links logged: %d\n", summary.LinksLogged)
	}
}

// count colors a failure counter red when it is not zero.
func (w *SimpleWriter) count(n int) string {
	if n == 0 {
		return "0"
	}
	return w.bad.Sprint(n)
}

// writeRejections writes the frontier rejections by reason.
// Without verbose only the total is shown.
func (w *SimpleWriter) writeRejections(sb *strings.Builder, summary *model.CrawlSummary) {
	total := summary.TotalRejected()
	fmt.Fprintf(sb, "  Rejected:  %d\n", total)
	if !w.verbose || total == 0 {
		return
	}
	for _, reason := range summary.RejectReasons() {
		fmt.Fprintf(sb, "    %s %d\n", w.faint.Sprintf("%-10s", title(reason)+":"), summary.Rejected[reason])
	}
}

// WriteRuns outputs one line per run, newest first.
func (w *SimpleWriter) WriteRuns(runs []model.RunInfo) (int, error) {
	var sb strings.Builder

	if len(runs) == 0 {
		sb.WriteString("No runs recorded.\n")
		return io.WriteString(w.output, sb.String())
	}

	for _, run := range runs {
		fmt.Fprintf(&sb, "%s  %s  %s\n",
			w.faint.Sprint(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			w.bold.Sprint(run.Seed),
		)
		if run.Summary == nil {
			fmt.Fprintf(&sb, "    %s\n", w.warn.Sprint(runStatus(run)))
			continue
		}
		s := run.Summary
		fmt.Fprintf(&sb, "    %s: fetched %d, written %d, skipped %d, failed %s, %s in %s\n",
			runStatus(run),
			s.Fetched, s.Written, s.Skipped, w.count(s.Failed),
			humanize.Bytes(uint64(max(s.Bytes, 0))),
			s.Duration().Round(time.Millisecond),
		)
	}

	return io.WriteString(w.output, sb.String())
}

// WriteFetches outputs one line per journal row in processing order.
func (w *SimpleWriter) WriteFetches(records []model.FetchRecord) (int, error) {
	var sb strings.Builder

	if len(records) == 0 {
		sb.WriteString("No URLs recorded.\n")
		return io.WriteString(w.output, sb.String())
	}

	for _, rec := range records {
		code := w.faint.Sprint("---")
		switch {
		case rec.StatusCode >= 400:
			code = w.bad.Sprint(rec.StatusCode)
		case rec.StatusCode >= 300:
			code = w.warn.Sprint(rec.StatusCode)
		case rec.StatusCode > 0:
			code = w.good.Sprint(rec.StatusCode)
		}
		fmt.Fprintf(&sb, "%s %-10s %s", code, rec.Outcome, rec.URL)
		if detail := fetchDetail(rec); detail != "" {
			fmt.Fprintf(&sb, "  %s", w.faint.Sprint(detail))
		}
		sb.WriteString("\n")
	}

	return io.WriteString(w.output, sb.String())
}
