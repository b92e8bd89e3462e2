package frontier

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

// Reason explains why a candidate was not enqueued.
type Reason string

const (
	// ReasonIgnored means the raw value is not a fetchable reference
	// (mailto:, javascript:, bare fragment, non-web scheme, ...).
	ReasonIgnored Reason = "ignored"
	// ReasonInvalid means the value could not be parsed or made absolute.
	ReasonInvalid Reason = "invalid"
	// ReasonDomain means the host is not in the allowed domains.
	ReasonDomain Reason = "domain"
	// ReasonPattern means the URL does not match the allowed-URL pattern.
	ReasonPattern Reason = "pattern"
	// ReasonDuplicate means the URL was already accepted once.
	ReasonDuplicate Reason = "duplicate"
	// ReasonDepth means the entry would exceed the maximum link depth.
	ReasonDepth Reason = "depth"
	// ReasonLimit means the maximum number of pages was reached.
	ReasonLimit Reason = "limit"
	// ReasonClosed means the frontier no longer accepts work.
	ReasonClosed Reason = "closed"
)

// Candidate is a reference offered to the frontier.
type Candidate struct {
	// Raw is the reference as found (href/src value or Location header).
	Raw string

	// DiscoveredFrom is the URL Raw is resolved against. Empty for seeds.
	DiscoveredFrom model.NormalizedURL

	// Depth is the link depth the entry will have if accepted.
	Depth int

	// Redirects is the redirect hop count the entry will carry.
	Redirects int

	// Seed marks a crawl starting point. Seeds skip the domain and
	// pattern filters but are still normalized and deduplicated.
	Seed bool
}

// Decision is the result of Submit.
type Decision struct {
	// Enqueued is true when the candidate became a new frontier entry.
	Enqueued bool

	// Reason is set when Enqueued is false.
	Reason Reason

	// URL is the normalized URL, when normalization succeeded.
	URL model.NormalizedURL
}

// Options configures the scope filters of a Deduper.
type Options struct {
	// AllowedDomains restricts hosts. Empty means unrestricted.
	// Matching is case-insensitive on the hostname (port ignored).
	AllowedDomains []string

	// AllowedURL must match the normalized absolute URL. Nil matches everything.
	AllowedURL *regexp.Regexp

	// MaxDepth is the maximum link depth. Negative means unlimited.
	MaxDepth int

	// MaxPages caps the number of accepted URLs. Zero means unlimited.
	MaxPages int
}

// Stats is a snapshot of the frontier counters.
type Stats struct {
	Visited  int
	Queued   int
	InFlight int
}

// Deduper is the crawl frontier.
//
// The visited set, the FIFO queue and the in-flight counter share one mutex.
// Completion is "queue empty and nothing in flight", read under that lock,
// since an in-flight entry may still submit new work before it calls Done.
type Deduper struct {
	opts    Options
	domains map[string]struct{}

	mu        sync.Mutex
	visited   map[model.NormalizedURL]struct{}
	queue     []model.FrontierEntry
	inFlight  int
	closed    bool
	completed bool
	wake      chan struct{}
	done      chan struct{}
}

// New creates an empty frontier with the given scope filters.
func New(opts Options) *Deduper {
	domains := make(map[string]struct{}, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains[d] = struct{}{}
		}
	}
	return &Deduper{
		opts:    opts,
		domains: domains,
		visited: make(map[model.NormalizedURL]struct{}),
		wake:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Submit offers a candidate to the frontier.
// Exactly one of any number of concurrent submissions of the same URL is
// enqueued; the others are rejected as duplicates.
func (d *Deduper) Submit(c Candidate) Decision {
	if model.IsIgnoredReference(c.Raw) {
		return Decision{Reason: ReasonIgnored}
	}

	var base *url.URL
	if c.DiscoveredFrom != "" {
		parsed, err := url.Parse(c.DiscoveredFrom.String())
		if err != nil {
			return Decision{Reason: ReasonInvalid}
		}
		base = parsed
	}

	normalized, parsed, err := model.NormalizeURL(c.Raw, base)
	if err != nil {
		return Decision{Reason: ReasonInvalid}
	}
	if !model.IsWebScheme(parsed) {
		return Decision{Reason: ReasonIgnored, URL: normalized}
	}

	if !c.Seed {
		if reason, ok := d.inScope(parsed, normalized, c.Depth); !ok {
			return Decision{Reason: reason, URL: normalized}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Decision{Reason: ReasonClosed, URL: normalized}
	}
	if _, seen := d.visited[normalized]; seen {
		return Decision{Reason: ReasonDuplicate, URL: normalized}
	}
	if d.opts.MaxPages > 0 && len(d.visited) >= d.opts.MaxPages {
		return Decision{Reason: ReasonLimit, URL: normalized}
	}

	d.visited[normalized] = struct{}{}
	d.queue = append(d.queue, model.FrontierEntry{
		URL:            normalized,
		DiscoveredFrom: c.DiscoveredFrom,
		Depth:          c.Depth,
		Redirects:      c.Redirects,
	})
	d.broadcastLocked()

	return Decision{Enqueued: true, URL: normalized}
}

// inScope applies the configured scope filters. It reads only immutable state.
func (d *Deduper) inScope(u *url.URL, normalized model.NormalizedURL, depth int) (Reason, bool) {
	if len(d.domains) > 0 {
		if _, ok := d.domains[strings.ToLower(u.Hostname())]; !ok {
			return ReasonDomain, false
		}
	}
	if d.opts.AllowedURL != nil && !d.opts.AllowedURL.MatchString(normalized.String()) {
		return ReasonPattern, false
	}
	if d.opts.MaxDepth >= 0 && depth > d.opts.MaxDepth {
		return ReasonDepth, false
	}
	return "", true
}

// Dequeue blocks until an entry is available and returns it, marking it in
// flight. It returns false when the crawl is complete, the frontier has been
// closed, or ctx is done. Every entry returned must be released with Done.
func (d *Deduper) Dequeue(ctx context.Context) (model.FrontierEntry, bool) {
	for {
		d.mu.Lock()
		if d.closed {
			d.checkCompleteLocked()
			d.mu.Unlock()
			return model.FrontierEntry{}, false
		}
		if len(d.queue) > 0 {
			entry := d.queue[0]
			d.queue[0] = model.FrontierEntry{}
			d.queue = d.queue[1:]
			d.inFlight++
			d.mu.Unlock()
			return entry, true
		}
		if d.checkCompleteLocked() {
			d.mu.Unlock()
			return model.FrontierEntry{}, false
		}
		wake := d.wake
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.FrontierEntry{}, false
		case <-wake:
		}
	}
}

// Done marks one dequeued entry as finished. Links discovered while
// processing the entry must be submitted before calling Done.
func (d *Deduper) Done() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight > 0 {
		d.inFlight--
	}
	d.checkCompleteLocked()
	d.broadcastLocked()
}

// Close stops dispatch. Queued entries are discarded and later submissions
// are rejected with ReasonClosed. Entries already in flight still need Done.
func (d *Deduper) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.queue = nil
	d.checkCompleteLocked()
	d.broadcastLocked()
}

// Completed returns a channel that is closed once the queue is empty and
// no entry is in flight (or the frontier was closed and drained).
func (d *Deduper) Completed() <-chan struct{} {
	return d.done
}

// Wait blocks until the frontier completes or ctx is done.
func (d *Deduper) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (d *Deduper) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Stats returns a snapshot of the frontier counters.
func (d *Deduper) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Visited:  len(d.visited),
		Queued:   len(d.queue),
		InFlight: d.inFlight,
	}
}

// checkCompleteLocked closes the done channel the first time the frontier
// is observed empty with nothing in flight.
func (d *Deduper) checkCompleteLocked() bool {
	if d.completed {
		return true
	}
	if len(d.queue) == 0 && d.inFlight == 0 {
		d.completed = true
		close(d.done)
	}
	return d.completed
}

// broadcastLocked wakes every goroutine blocked in Dequeue.
func (d *Deduper) broadcastLocked() {
	close(d.wake)
	d.wake = make(chan struct{})
}
