package model

// Outcome classifies how the processing of one frontier entry ended.
type Outcome string

const (
	// OutcomeFetched means a response was received and handed to the result handlers.
	OutcomeFetched Outcome = "fetched"

	// OutcomeFailed means retries were exhausted, the error was not retryable,
	// or the server answered with a client error status.
	OutcomeFailed Outcome = "failed"

	// OutcomeRedirected means the response was a redirect whose target was
	// submitted to the frontier.
	OutcomeRedirected Outcome = "redirected"

	// OutcomeRedirectLimit means the redirect chain exceeded the hop limit.
	OutcomeRedirectLimit Outcome = "redirect-limit"

	// OutcomeCancelled means the crawl was shut down before the entry finished.
	OutcomeCancelled Outcome = "cancelled"
)

// Visit is everything the scheduler knows about one processed frontier entry.
// Result is nil for every outcome except OutcomeFetched, OutcomeRedirected
// and HTTP status failures.
type Visit struct {
	Entry    FrontierEntry
	Result   *FetchResult
	Outcome  Outcome
	Attempts int
	Err      error
}

// VisitReport is what result handlers report back to the scheduler.
type VisitReport struct {
	// Links are absolute candidate URLs to submit to the frontier.
	Links []string

	// Dropped are references found in the document that were never offered
	// to the frontier.
	Dropped []DroppedReference

	// Persist is the content persistence outcome.
	Persist PersistStatus

	// Path is the file the content was (or would have been) written to.
	Path string

	// Bytes is the number of content bytes written.
	Bytes int

	// LinkLogged reports whether the URL was appended to the link log.
	LinkLogged bool
}

// DroppedReference is a reference the link extractor discarded.
// Reason uses the frontier's rejection vocabulary ("ignored", "invalid").
type DroppedReference struct {
	Value  string
	Reason string
}
