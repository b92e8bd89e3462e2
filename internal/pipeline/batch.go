package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemirror/internal/model"
)

// CrawlFunc runs one complete crawl for a seed.
type CrawlFunc func(ctx context.Context, seed string) (*model.CrawlSummary, error)

// BatchResult is the outcome of one seed's crawl.
type BatchResult struct {
	Seed    string
	Summary *model.CrawlSummary
	Err     error
}

// BatchProcessor runs independent crawls for several seeds concurrently.
// Each crawl has its own frontier, scheduler and sinks; nothing is shared
// between them except the journal.
type BatchProcessor struct {
	// crawl runs one crawl. It is called once per seed.
	crawl CrawlFunc

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Default is 1 (seeds are crawled one after another).
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(crawl CrawlFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		crawl:       crawl,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns the results in seed order.
// A failing crawl does not stop the others; its error is in its result.
// The returned error is non-nil only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(seeds))
	err := bp.ProcessBatchWithCallback(ctx, seeds, func(r BatchResult, index int) {
		// Each index is written by exactly one goroutine.
		results[index] = r
	})
	return results, err
}

// ProcessBatchWithCallback crawls every seed and calls callback for each
// completed crawl. The callback is called from the goroutine that ran the
// crawl, so it must be safe for concurrent use when concurrency > 1.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(result BatchResult, index int),
) error {
	bp.logger.Info("starting batch",
		"seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				callback(BatchResult{Seed: seed, Err: err}, i)
				return err
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			summary, err := bp.crawl(gctx, seed)
			if err != nil {
				bp.logger.Warn("crawl failed", "seed", seed, "error", err)
			}
			callback(BatchResult{Seed: seed, Summary: summary, Err: err}, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch complete",
		"seeds", len(seeds),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)
	return err
}
