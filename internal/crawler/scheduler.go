package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	"github.com/nao1215/sitemirror/internal/model"
)

var (
	// ErrRedirectLimit is recorded when a redirect chain exceeds the hop limit.
	ErrRedirectLimit = errors.New("redirect limit exceeded")

	// ErrHTTPStatus is recorded for responses with a 4xx or 5xx status.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrSeedRejected is returned by Run when the seed cannot be enqueued.
	ErrSeedRejected = errors.New("seed url rejected")
)

// DefaultShutdownGrace is how long in-flight fetches may continue after
// the crawl context is cancelled.
const DefaultShutdownGrace = 10 * time.Second

// Handler processes the outcome of one frontier entry.
// It is called from many workers concurrently.
type Handler interface {
	// Handle receives every processed entry, whatever its outcome, and
	// returns the links to submit to the frontier.
	Handle(ctx context.Context, visit *model.Visit) *model.VisitReport
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, visit *model.Visit) *model.VisitReport

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, visit *model.Visit) *model.VisitReport {
	return f(ctx, visit)
}

// ExtractingHandler is the default Handler: it extracts links from fetched
// HTML and stores nothing.
var ExtractingHandler = HandlerFunc(func(_ context.Context, visit *model.Visit) *model.VisitReport {
	report := &model.VisitReport{}
	if visit.Outcome != model.OutcomeFetched || visit.Result == nil || !visit.Result.IsHTML() {
		return report
	}
	if ext, err := ExtractFromResult(visit.Result); err == nil {
		report.Links = ext.Links
		report.Dropped = ext.Dropped
	}
	return report
})

// Scheduler runs a crawl over a frontier.
type Scheduler struct {
	frontier     *frontier.Deduper
	fetcher      fetcher.Fetcher
	handler      Handler
	limiter      *HostLimiter
	retry        RetryPolicy
	workers      int
	maxRedirects int
	grace        time.Duration
	logger       *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHandler sets the result handler.
func WithHandler(h Handler) Option {
	return func(s *Scheduler) {
		s.handler = h
	}
}

// WithLimiter sets the host limiter.
func WithLimiter(l *HostLimiter) Option {
	return func(s *Scheduler) {
		s.limiter = l
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scheduler) {
		s.retry = p
	}
}

// WithWorkers sets the number of worker goroutines.
// It should match the global concurrency of the limiter.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// WithMaxRedirects sets the redirect hop limit.
func WithMaxRedirects(n int) Option {
	return func(s *Scheduler) {
		s.maxRedirects = n
	}
}

// WithShutdownGrace sets how long in-flight fetches may run after cancellation.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		s.grace = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a scheduler for one crawl.
// Defaults: one worker per global slot (2), no politeness delay,
// 5 retries with exponential backoff, 15 redirect hops.
func NewScheduler(f *frontier.Deduper, fetch fetcher.Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		frontier:     f,
		fetcher:      fetch,
		handler:      ExtractingHandler,
		retry:        RetryPolicy{Limit: 5, Backoff: BackoffExponential},
		workers:      2,
		maxRedirects: 15,
		grace:        DefaultShutdownGrace,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	if s.limiter == nil {
		s.limiter = NewHostLimiter(LimiterOptions{PerHost: 1, Global: s.workers})
	}
	return s
}

// Run crawls from seed until the frontier is exhausted or ctx is cancelled.
//
// Cancellation closes the frontier so nothing new is dispatched. Fetches
// already in flight may finish within the shutdown grace period; after
// that their requests are aborted. Run always returns the summary of
// what was done, with Cancelled set when ctx ended the crawl.
func (s *Scheduler) Run(ctx context.Context, seed string) (*model.CrawlSummary, error) {
	rec := newRecorder()
	rec.summary.StartedAt = time.Now()

	dec := s.frontier.Submit(frontier.Candidate{Raw: seed, Seed: true})
	if !dec.Enqueued {
		return nil, fmt.Errorf("%w: %s (%s)", ErrSeedRejected, seed, dec.Reason)
	}
	rec.summary.Seed = dec.URL.String()

	// workCtx outlives ctx by the grace period so in-flight fetches can finish.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	stop := context.AfterFunc(ctx, func() {
		s.frontier.Close()
		s.logger.Info("shutdown requested, finishing in-flight fetches", "grace", s.grace)
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	})
	defer stop()

	s.logger.Info("crawl started", "seed", rec.summary.Seed, "workers", s.workers)

	var g errgroup.Group
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			s.work(ctx, workCtx, rec)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	summary := rec.snapshot()
	summary.FinishedAt = time.Now()
	summary.Visited = s.frontier.Stats().Visited
	summary.Cancelled = ctx.Err() != nil

	s.logger.Info("crawl finished",
		"seed", summary.Seed,
		"visited", summary.Visited,
		"fetched", summary.Fetched,
		"written", summary.Written,
		"failed", summary.Failed,
		"duration", summary.Duration().Round(time.Millisecond),
		"cancelled", summary.Cancelled,
	)
	return summary, nil
}

// work is the loop of one worker.
func (s *Scheduler) work(ctx, workCtx context.Context, rec *recorder) {
	for {
		entry, ok := s.frontier.Dequeue(ctx)
		if !ok {
			return
		}
		s.process(ctx, workCtx, entry, rec)
		s.frontier.Done()
	}
}

// process fetches one entry, classifies the outcome, hands it to the
// handler and submits the discovered links.
func (s *Scheduler) process(ctx, workCtx context.Context, entry model.FrontierEntry, rec *recorder) {
	visit := &model.Visit{Entry: entry}
	res, attempts, err := s.fetchWithRetry(ctx, workCtx, entry)
	visit.Attempts = attempts
	visit.Result = res

	switch {
	case err != nil && (ctx.Err() != nil || workCtx.Err() != nil):
		visit.Outcome = model.OutcomeCancelled
		visit.Err = err
	case err != nil:
		visit.Outcome = model.OutcomeFailed
		visit.Err = err
		s.logger.Warn("fetch failed", "url", entry.URL, "attempts", attempts, "error", err)
	case res.Location() != "":
		s.redirect(visit, res.Location(), rec)
	case res.StatusCode >= 400:
		visit.Outcome = model.OutcomeFailed
		visit.Err = fmt.Errorf("%w: %d", ErrHTTPStatus, res.StatusCode)
		s.logger.Warn("fetch failed", "url", entry.URL, "status", res.StatusCode, "attempts", attempts)
	default:
		visit.Outcome = model.OutcomeFetched
		s.logger.Debug("fetched", "url", entry.URL, "status", res.StatusCode, "bytes", len(res.Body), "depth", entry.Depth)
	}

	report := s.handler.Handle(workCtx, visit)
	if report == nil {
		report = &model.VisitReport{}
	}
	rec.visit(visit, report)

	for _, d := range report.Dropped {
		rec.reject(frontier.Reason(d.Reason))
		s.logger.Debug("link rejected", "url", d.Value, "reason", d.Reason)
	}

	for _, link := range report.Links {
		dec := s.frontier.Submit(frontier.Candidate{
			Raw:            link,
			DiscoveredFrom: entry.URL,
			Depth:          entry.Depth + 1,
		})
		if !dec.Enqueued {
			rec.reject(dec.Reason)
			s.logger.Debug("link rejected", "url", link, "reason", dec.Reason)
		}
	}
}

// redirect routes a 3xx target back through the frontier.
func (s *Scheduler) redirect(visit *model.Visit, location string, rec *recorder) {
	entry := visit.Entry
	if entry.Redirects >= s.maxRedirects {
		visit.Outcome = model.OutcomeRedirectLimit
		visit.Err = fmt.Errorf("%w: %d hops", ErrRedirectLimit, entry.Redirects)
		s.logger.Warn("redirect limit reached", "url", entry.URL, "location", location, "hops", entry.Redirects)
		return
	}

	visit.Outcome = model.OutcomeRedirected
	dec := s.frontier.Submit(frontier.Candidate{
		Raw:            location,
		DiscoveredFrom: entry.URL,
		Depth:          entry.Depth,
		Redirects:      entry.Redirects + 1,
	})
	if !dec.Enqueued {
		rec.reject(dec.Reason)
	}
	s.logger.Debug("redirected", "url", entry.URL, "location", location, "enqueued", dec.Enqueued, "reason", dec.Reason)
}

// fetchWithRetry performs up to RetryPolicy.Limit+1 attempts.
// Each attempt goes through the limiter, so retries are also polite.
func (s *Scheduler) fetchWithRetry(ctx, workCtx context.Context, entry model.FrontierEntry) (*model.FetchResult, int, error) {
	headers := http.Header{}
	if entry.DiscoveredFrom != "" {
		headers.Set("Referer", entry.DiscoveredFrom.String())
	}
	host := entry.URL.Host()

	for attempt := 1; ; attempt++ {
		release, err := s.limiter.Acquire(ctx, host)
		if err != nil {
			return nil, attempt - 1, err
		}
		res, err := s.fetcher.Fetch(workCtx, entry.URL.String(), headers)
		release()

		if res != nil {
			res.Attempts = attempt
		}
		if !Retryable(res, err) || attempt > s.retry.Limit || ctx.Err() != nil {
			return res, attempt, err
		}

		delay := s.retry.Delay(attempt, res)
		s.logger.Debug("retrying", "url", entry.URL, "attempt", attempt, "delay", delay, "error", err, "status", statusOf(res))
		if err := sleepContext(ctx, delay); err != nil {
			return res, attempt, ctx.Err()
		}
	}
}

func statusOf(res *model.FetchResult) int {
	if res == nil {
		return 0
	}
	return res.StatusCode
}

// recorder accumulates the crawl summary from concurrent workers.
type recorder struct {
	mu      sync.Mutex
	summary model.CrawlSummary
}

func newRecorder() *recorder {
	return &recorder{summary: model.CrawlSummary{Rejected: make(map[string]int)}}
}

func (r *recorder) visit(v *model.Visit, report *model.VisitReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v.Outcome {
	case model.OutcomeFetched:
		r.summary.Fetched++
	case model.OutcomeFailed:
		r.summary.Failed++
	case model.OutcomeRedirected:
		r.summary.Redirects++
	case model.OutcomeRedirectLimit:
		r.summary.RedirectLimited++
	case model.OutcomeCancelled:
	}

	switch report.Persist {
	case model.PersistWritten:
		r.summary.Written++
		r.summary.Bytes += int64(report.Bytes)
	case model.PersistSkippedExists:
		r.summary.Skipped++
	case model.PersistError:
		r.summary.PersistErrors++
	case model.PersistNone:
	}
	if report.LinkLogged {
		r.summary.LinksLogged++
	}
}

func (r *recorder) reject(reason frontier.Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Rejected[string(reason)]++
}

func (r *recorder) snapshot() *model.CrawlSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Rejected = make(map[string]int, len(r.summary.Rejected))
	for k, v := range r.summary.Rejected {
		s.Rejected[k] = v
	}
	return &s
}
