package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	"github.com/nao1215/sitemirror/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(t *testing.T) *fetcher.HTTPFetcher {
	t.Helper()
	f, err := fetcher.New(fetcher.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

// hitCounter counts requests per path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[path]++
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	t.Run("each discovered url is fetched once", func(t *testing.T) {
		t.Parallel()

		var hits hitCounter
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.add(r.URL.Path)
			w.Header().Set("Content-Type", "text/html")
			switch r.URL.Path {
			case "/":
				fmt.Fprint(w, `<a href="/a">a</a><a href="/a#frag">a again</a><a href="mailto:x@y">mail</a><a href="/b">b</a>`)
			case "/a":
				fmt.Fprint(w, `<a href="/">home</a><a href="/b">b</a>`)
			default:
				fmt.Fprint(w, `<p>leaf</p>`)
			}
		}))
		defer srv.Close()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t),
			WithWorkers(4),
			WithLimiter(NewHostLimiter(LimiterOptions{PerHost: 2, Global: 4})),
			WithLogger(discardLogger()),
		)

		summary, err := s.Run(context.Background(), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, p := range []string{"/", "/a", "/b"} {
			if got := hits.get(p); got != 1 {
				t.Errorf("expected exactly one fetch of %s, got %d", p, got)
			}
		}
		if summary.Fetched != 3 || summary.Visited != 3 {
			t.Errorf("expected 3 fetched and visited, got %d and %d", summary.Fetched, summary.Visited)
		}
		if summary.Rejected[string(frontier.ReasonDuplicate)] == 0 {
			t.Error("expected duplicate rejections to be counted")
		}
		if got := summary.Rejected[string(frontier.ReasonIgnored)]; got != 1 {
			t.Errorf("expected the mailto link to be counted as ignored once, got %d", got)
		}
		if summary.Cancelled {
			t.Error("crawl must not be reported as cancelled")
		}
	})

	t.Run("per-host concurrency of one is never exceeded", func(t *testing.T) {
		t.Parallel()

		var active, peak atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)

			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/" {
				var b strings.Builder
				for i := 0; i < 10; i++ {
					fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
				}
				fmt.Fprint(w, b.String())
			}
		}))
		defer srv.Close()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t),
			WithWorkers(4),
			WithLimiter(NewHostLimiter(LimiterOptions{PerHost: 1, Global: 4})),
			WithLogger(discardLogger()),
		)

		summary, err := s.Run(context.Background(), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Fetched != 11 {
			t.Errorf("expected 11 fetches, got %d", summary.Fetched)
		}
		if peak.Load() != 1 {
			t.Errorf("expected peak per-host concurrency 1, got %d", peak.Load())
		}
	})

	t.Run("retries are exhausted and the crawl completes", func(t *testing.T) {
		t.Parallel()

		var hits hitCounter
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.add(r.URL.Path)
			if r.URL.Path == "/" {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, `<a href="/broken">broken</a><a href="/ok">ok</a>`)
				return
			}
			if r.URL.Path == "/broken" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "ok")
		}))
		defer srv.Close()

		const retryLimit = 3
		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t),
			WithRetryPolicy(RetryPolicy{Limit: retryLimit, Backoff: BackoffFixed, Base: time.Millisecond}),
			WithLogger(discardLogger()),
		)

		summary, err := s.Run(context.Background(), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := hits.get("/broken"); got != retryLimit+1 {
			t.Errorf("expected %d attempts, got %d", retryLimit+1, got)
		}
		if got := hits.get("/ok"); got != 1 {
			t.Errorf("expected other URLs to be fetched once, got %d", got)
		}
		if summary.Failed != 1 {
			t.Errorf("expected 1 failed URL, got %d", summary.Failed)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()

		var hits hitCounter
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.add(r.URL.Path)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t),
			WithRetryPolicy(RetryPolicy{Limit: 3, Backoff: BackoffFixed, Base: time.Millisecond}),
			WithLogger(discardLogger()),
		)

		summary, err := s.Run(context.Background(), srv.URL+"/missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits.get("/missing") != 1 {
			t.Errorf("expected a single attempt, got %d", hits.get("/missing"))
		}
		if summary.Failed != 1 {
			t.Errorf("expected 1 failure, got %d", summary.Failed)
		}
	})

	t.Run("redirect target is resubmitted to the frontier", func(t *testing.T) {
		t.Parallel()

		var hits hitCounter
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.add(r.URL.Path)
			switch r.URL.Path {
			case "/old":
				http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			default:
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, `<p>new</p>`)
			}
		}))
		defer srv.Close()

		var mu sync.Mutex
		var outcomes []model.Outcome
		handler := HandlerFunc(func(ctx context.Context, v *model.Visit) *model.VisitReport {
			mu.Lock()
			outcomes = append(outcomes, v.Outcome)
			mu.Unlock()
			return ExtractingHandler.Handle(ctx, v)
		})

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t), WithHandler(handler), WithLogger(discardLogger()))

		summary, err := s.Run(context.Background(), srv.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits.get("/new") != 1 {
			t.Errorf("expected redirect target to be fetched once, got %d", hits.get("/new"))
		}
		if summary.Redirects != 1 || summary.Fetched != 1 {
			t.Errorf("expected 1 redirect and 1 fetch, got %d and %d", summary.Redirects, summary.Fetched)
		}
		if len(outcomes) != 2 {
			t.Errorf("expected handler to see both hops, got %v", outcomes)
		}
	})

	t.Run("redirect chains beyond the hop limit are cut off", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := hits.Add(1)
			http.Redirect(w, r, fmt.Sprintf("/hop%d", n), http.StatusFound)
		}))
		defer srv.Close()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t), WithMaxRedirects(3), WithLogger(discardLogger()))

		summary, err := s.Run(context.Background(), srv.URL+"/start")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.RedirectLimited != 1 {
			t.Errorf("expected the chain to be cut off once, got %d", summary.RedirectLimited)
		}
		if hits.Load() != 4 {
			t.Errorf("expected seed plus 3 hops to be requested, got %d", hits.Load())
		}
	})

	t.Run("depth limit stops link following", func(t *testing.T) {
		t.Parallel()

		var hits hitCounter
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.add(r.URL.Path)
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<a href="%s/next">next</a>`, strings.TrimSuffix(r.URL.Path, "/"))
		}))
		defer srv.Close()

		f := frontier.New(frontier.Options{MaxDepth: 2})
		s := NewScheduler(f, newTestFetcher(t), WithLogger(discardLogger()))

		summary, err := s.Run(context.Background(), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Fetched != 3 {
			t.Errorf("expected seed plus two levels, got %d", summary.Fetched)
		}
		if summary.Rejected[string(frontier.ReasonDepth)] != 1 {
			t.Errorf("expected one depth rejection, got %v", summary.Rejected)
		}
	})

	t.Run("cancellation stops dispatch", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			// Every page links to two fresh pages, so the crawl never ends on its own.
			fmt.Fprintf(w, `<a href="%s/l">l</a><a href="%s/r">r</a>`, r.URL.Path, r.URL.Path)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t),
			WithLimiter(NewHostLimiter(LimiterOptions{PerHost: 1, Global: 2, Delay: 20 * time.Millisecond})),
			WithShutdownGrace(time.Second),
			WithLogger(discardLogger()),
		)

		done := make(chan *model.CrawlSummary, 1)
		go func() {
			summary, _ := s.Run(ctx, srv.URL+"/")
			done <- summary
		}()

		select {
		case summary := <-done:
			if summary == nil || !summary.Cancelled {
				t.Errorf("expected a cancelled summary, got %+v", summary)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("crawl did not stop after cancellation")
		}
	})

	t.Run("rejected seed is an error", func(t *testing.T) {
		t.Parallel()

		f := frontier.New(frontier.Options{MaxDepth: -1})
		s := NewScheduler(f, newTestFetcher(t), WithLogger(discardLogger()))
		if _, err := s.Run(context.Background(), "mailto:someone@example.com"); err == nil {
			t.Error("expected an error for an unfetchable seed")
		}
	})
}
