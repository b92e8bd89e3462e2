package model

import (
	"sort"
	"time"
)

// CrawlSummary aggregates the results of one crawl run.
// It is serialized into the journal and rendered by the report writers.
type CrawlSummary struct {
	// RunID identifies the run in the journal. Empty when journaling is off.
	RunID string `json:"run_id,omitempty"`

	// Seed is the normalized seed URL.
	Seed string `json:"seed"`

	// SaveDir is the directory content was mirrored into.
	SaveDir string `json:"save_dir,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Visited is the number of distinct URLs accepted by the frontier.
	Visited int `json:"visited"`

	// Fetched counts responses handed to the result handlers.
	Fetched int `json:"fetched"`

	// Written counts files written; Skipped counts paths already claimed.
	Written int `json:"written"`
	Skipped int `json:"skipped"`

	// PersistErrors counts failed content writes.
	PersistErrors int `json:"persist_errors"`

	// Failed counts URLs that ended in OutcomeFailed.
	Failed int `json:"failed"`

	// Redirects counts redirect hops followed; RedirectLimited counts chains cut off.
	Redirects       int `json:"redirects"`
	RedirectLimited int `json:"redirect_limited"`

	// LinksLogged counts URLs appended to the link log.
	LinksLogged int `json:"links_logged"`

	// Bytes is the total number of content bytes written.
	Bytes int64 `json:"bytes"`

	// Rejected counts frontier rejections by reason.
	Rejected map[string]int `json:"rejected,omitempty"`

	// Cancelled is true when the crawl stopped because of a shutdown request.
	Cancelled bool `json:"cancelled"`
}

// Duration returns how long the crawl ran.
func (s *CrawlSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RejectReasons returns the rejection reasons in a stable order.
func (s *CrawlSummary) RejectReasons() []string {
	reasons := make([]string, 0, len(s.Rejected))
	for reason := range s.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons
}

// TotalRejected returns the sum of all rejection counters.
func (s *CrawlSummary) TotalRejected() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// RunInfo is a crawl run as stored in the journal.
type RunInfo struct {
	ID         string        `json:"id"`
	Seed       string        `json:"seed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Summary    *CrawlSummary `json:"summary,omitempty"`
}

// FetchRecord is the journal row for one processed URL.
type FetchRecord struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Persist     string    `json:"persist,omitempty"`
	Path        string    `json:"path,omitempty"`
	Bytes       int       `json:"bytes"`
	ContentHash string    `json:"content_hash,omitempty"`
	Attempts    int       `json:"attempts"`
	Depth       int       `json:"depth"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
