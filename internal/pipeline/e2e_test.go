package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pathmap"
	"github.com/nao1215/sitemirror/internal/persist"
	"github.com/nao1215/sitemirror/internal/pipeline"
)

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[path]++
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

type recordingJournal struct {
	mu   sync.Mutex
	recs []*model.FetchRecord
}

func (j *recordingJournal) RecordFetch(_ context.Context, rec *model.FetchRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

// TestMirrorSite crawls a small site end to end through the real fetcher,
// scheduler, pipeline and sinks.
func TestMirrorSite(t *testing.T) {
	t.Parallel()

	counter := &hitCounter{hits: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		counter.add(r.URL.Path)
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><body>
<a href="/a">a</a>
<a href="/a#top">a again</a>
<a href="mailto:someone@example.com">mail</a>
<link rel="stylesheet" href="/style.css">
<a href="/old">moved</a>
</body></html>`)
		case "/a":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/">home</a></body></html>`)
		case "/style.css":
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, `body { color: black; }`)
		case "/old":
			http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
		case "/new/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<p>new</p>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	root := t.TempDir()
	logDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f, err := fetcher.New(fetcher.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	links := persist.NewLinkSink(logDir)
	defer links.Close()
	journal := &recordingJournal{}

	p := pipeline.New(pipeline.WithLogger(logger), pipeline.WithContinueOnError(true))
	p.AddSteps(
		pipeline.NewLinkLogStep(links, "site"),
		pipeline.NewContentStep(persist.NewContentSink(root, pathmap.NewMapper(nil)), pipeline.WithContentLogger(logger)),
		pipeline.NewExtractStep(),
		pipeline.NewJournalStep(journal, "run-1"),
	)

	sched := crawler.NewScheduler(
		frontier.New(frontier.Options{MaxDepth: -1}),
		f,
		crawler.WithHandler(p),
		crawler.WithWorkers(4),
		crawler.WithLimiter(crawler.NewHostLimiter(crawler.LimiterOptions{PerHost: 2, Global: 4})),
		crawler.WithLogger(logger),
	)

	summary, err := sched.Run(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{"/", "/a", "/style.css", "/old", "/new/"} {
		if got := counter.get(path); got != 1 {
			t.Errorf("expected %s to be fetched once, got %d", path, got)
		}
	}

	for _, rel := range []string{"index.html", "a/index.html", "style.css", "new/index.html"} {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s to be mirrored: %v", rel, err)
		}
	}

	if summary.Fetched != 4 || summary.Redirects != 1 || summary.Written != 4 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Rejected[string(frontier.ReasonIgnored)] == 0 {
		t.Error("expected the mailto link to be counted as ignored")
	}

	if err := links.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(links.Path("site"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Errorf("expected 4 logged urls, got %d:\n%s", lines, data)
	}
	if strings.Contains(string(data), "mailto:") {
		t.Error("mailto link must not be logged")
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.recs) != 5 {
		t.Errorf("expected 5 journal rows, got %d", len(journal.recs))
	}
}
