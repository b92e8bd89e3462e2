package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/model"
)

// BackoffPolicy selects how the delay between retries grows.
type BackoffPolicy string

const (
	// BackoffExponential doubles the delay after each failed attempt.
	BackoffExponential BackoffPolicy = "exponential"
	// BackoffFixed waits the base delay between every attempt.
	BackoffFixed BackoffPolicy = "fixed"
)

const (
	// DefaultBackoffBase is the first retry delay.
	DefaultBackoffBase = 500 * time.Millisecond
	// DefaultBackoffMax caps any single retry delay.
	DefaultBackoffMax = 30 * time.Second
)

// ErrUnknownBackoff is returned by ParseBackoffPolicy for unknown names.
var ErrUnknownBackoff = errors.New("unknown backoff policy")

// ParseBackoffPolicy converts a name into a BackoffPolicy.
func ParseBackoffPolicy(name string) (BackoffPolicy, error) {
	switch BackoffPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case BackoffExponential, "":
		return BackoffExponential, nil
	case BackoffFixed:
		return BackoffFixed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackoff, name)
	}
}

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy struct {
	// Limit is the number of retries after the first attempt.
	Limit int
	// Backoff selects the delay growth.
	Backoff BackoffPolicy
	// Base is the first delay. Zero selects DefaultBackoffBase.
	Base time.Duration
	// Max caps a single delay. Zero selects DefaultBackoffMax.
	Max time.Duration
}

// Delay returns the wait before retry number n (1 for the first retry).
// A Retry-After header on res is honored when it asks for longer.
func (p RetryPolicy) Delay(n int, res *model.FetchResult) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = DefaultBackoffMax
	}

	d := base
	if p.Backoff != BackoffFixed {
		for i := 1; i < n && d < ceiling; i++ {
			d *= 2
		}
	}
	if ra := retryAfter(res); ra > d {
		d = ra
	}
	return min(d, ceiling)
}

// Retryable reports whether an attempt should be retried.
// Transport failures and 5xx responses are retried, as are 408 and 429.
// Body size violations and other client errors are final.
func Retryable(res *model.FetchResult, err error) bool {
	if err != nil {
		return errors.Is(err, fetcher.ErrTransport)
	}
	if res == nil {
		return false
	}
	return res.StatusCode >= 500 ||
		res.StatusCode == http.StatusRequestTimeout ||
		res.StatusCode == http.StatusTooManyRequests
}

// retryAfter parses a delta-seconds Retry-After header.
func retryAfter(res *model.FetchResult) time.Duration {
	if res == nil || res.Headers == nil {
		return 0
	}
	v := strings.TrimSpace(res.Headers.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
