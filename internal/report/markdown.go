package report

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitemirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for pasting a run into an issue or a wiki page.
// Outcomes are also drawn as a mermaid pie chart, and the overall state
// is a GitHub alert block.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeOutcomes(md, summary)
	w.writeRejections(md, summary)
	w.writeAlert(md, summary)

	return len(md.String()), md.Build()
}

// writeHeader writes the crawl identity table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H1("Crawl Summary")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + summary.Seed + "`"},
	}
	if summary.SaveDir != "" {
		rows = append(rows, []string{"Saved To", "`" + summary.SaveDir + "`"})
	}
	if summary.RunID != "" {
		rows = append(rows, []string{"Run", "`" + summary.RunID + "`"})
	}
	rows = append(rows,
		[]string{"Started", formatTime(summary.StartedAt)},
		[]string{"Duration", summary.Duration().Round(time.Millisecond).String()},
		[]string{"Status", title(status(summary))},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeOutcomes writes the counters table and a chart of fetch outcomes.
func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Outcomes")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Visited", strconv.Itoa(summary.Visited)},
			{"Fetched", strconv.Itoa(summary.Fetched)},
			{"Written", strconv.Itoa(summary.Written) + " (" + humanize.Bytes(uint64(max(summary.Bytes, 0))) + ")"},
			{"Skipped (path exists)", strconv.Itoa(summary.Skipped)},
			{"Write Errors", strconv.Itoa(summary.PersistErrors)},
			{"Failed", strconv.Itoa(summary.Failed)},
			{"Redirects", strconv.Itoa(summary.Redirects)},
			{"Redirect Limit", strconv.Itoa(summary.RedirectLimited)},
			{"Links Logged", strconv.Itoa(summary.LinksLogged)},
		},
	})
	md.PlainText("")

	if summary.Fetched+summary.Failed+summary.Redirects+summary.RedirectLimited > 0 {
		w.writePieChart(md, summary)
	}
}

// writePieChart writes a mermaid pie chart of the per-URL outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.CrawlSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL Outcomes"),
		piechart.WithShowData(true),
	)

	slices := []struct {
		label string
		n     int
	}{
		{"Fetched", summary.Fetched},
		{"Failed", summary.Failed},
		{"Redirected", summary.Redirects},
		{"Redirect Limit", summary.RedirectLimited},
	}
	for _, s := range slices {
		if s.n > 0 {
			chart.LabelAndIntValue(s.label, uint64(s.n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeRejections writes frontier rejections by reason.
func (w *MarkdownWriter) writeRejections(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Rejected Links")
	md.PlainText("")

	if summary.TotalRejected() == 0 {
		md.PlainText("No links were rejected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(summary.Rejected)+1)
	for _, reason := range summary.RejectReasons() {
		rows = append(rows, []string{title(reason), strconv.Itoa(summary.Rejected[reason])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(summary.TotalRejected()) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Reason", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeAlert closes the report with an alert matching the run state.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.CrawlSummary) {
	switch {
	case summary.Cancelled:
		md.Warningf("The crawl was cancelled after %d fetched URL(s). The mirror is partial.", summary.Fetched)
	case summary.PersistErrors > 0:
		md.Cautionf("%d file(s) could not be written.", summary.PersistErrors)
	case summary.Failed > 0:
		md.Importantf("%d URL(s) failed after retries.", summary.Failed)
	default:
		md.Tip("Every dispatched URL was fetched.")
	}
	md.PlainText("")
}

// WriteRuns outputs the run list as a Markdown table.
func (w *MarkdownWriter) WriteRuns(runs []model.RunInfo) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		fetched, written, failed := "-", "-", "-"
		if run.Summary != nil {
			fetched = strconv.Itoa(run.Summary.Fetched)
			written = strconv.Itoa(run.Summary.Written)
			failed = strconv.Itoa(run.Summary.Failed)
		}
		rows[i] = []string{
			"`" + run.ID + "`",
			run.Seed,
			formatTime(run.StartedAt),
			title(runStatus(run)),
			fetched,
			written,
			failed,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Run", "Seed", "Started", "Status", "Fetched", "Written", "Failed"},
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

// WriteFetches outputs the journal rows of one run as a Markdown table.
func (w *MarkdownWriter) WriteFetches(records []model.FetchRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H2("Fetched URLs")
	md.PlainText("")

	if len(records) == 0 {
		md.PlainText("No URLs recorded.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		code := "-"
		if rec.StatusCode != 0 {
			code = strconv.Itoa(rec.StatusCode)
		}
		rows[i] = []string{
			rec.URL,
			code,
			string(rec.Outcome),
			rec.Persist,
			strconv.Itoa(rec.Attempts),
			fetchDetail(rec),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Outcome", "Persist", "Attempts", "Detail"},
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}
