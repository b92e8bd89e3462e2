// Package pipeline processes crawl results through a sequence of steps.
//
// Every frontier entry the scheduler finishes is wrapped in a Job and run
// through the steps: append the URL to the link log, mirror the content to
// disk, extract links from HTML, and record the outcome in the journal.
// Each step receives the Job and can add to its VisitReport; the links it
// collects flow back to the scheduler, which submits them to the frontier.
//
// A failure in one step (a full disk, say) does not stop the later ones:
// the links of a page that could not be written are still followed.
//
// The package also provides BatchProcessor, which runs independent crawls
// for several seeds with concurrency control using errgroup.
package pipeline
