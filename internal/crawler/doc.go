// Package crawler provides the fetch scheduler and link extraction of sitemirror.
//
// # Architecture
//
// The Scheduler owns a pool of workers that pull entries from a
// frontier.Deduper. Each worker acquires the per-host and global concurrency
// slots from a HostLimiter, waits out the politeness delay, fetches the URL
// (retrying transport failures and 5xx responses) and hands the outcome to a
// Handler. Links returned by the Handler are submitted back to the frontier.
//
// Deduplication is a single test-and-insert shared by all workers. Redirects
// are resubmitted to the frontier, and the crawl completes when the frontier
// has an empty queue and nothing in flight.
//
// # Components
//
//   - Scheduler: the worker pool and per-URL state machine
//   - HostLimiter: per-host and global semaphores plus politeness delay
//   - RetryPolicy: which failures are retried and how long to back off
//   - ExtractLinks / ParseDocument: HTML reference extraction
//
// # Usage
//
//	f := frontier.New(frontier.Options{MaxDepth: -1})
//	s := crawler.NewScheduler(f, httpFetcher, crawler.WithHandler(p))
//	summary, err := s.Run(ctx, "https://example.com/")
package crawler
