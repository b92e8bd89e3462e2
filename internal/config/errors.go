package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.Compile() and
// provide specific information about what is wrong with the configuration.
//
// Validate wraps them with the offending value where one exists, so
// callers match them with errors.Is.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed url specified")

	// ErrInvalidSeed is returned when a seed cannot be turned into an
	// absolute http or https URL.
	ErrInvalidSeed = errors.New("invalid seed url")

	// ErrInvalidPattern is returned when the allowed-URL regular expression
	// does not compile.
	ErrInvalidPattern = errors.New("invalid allowed-url pattern")

	// ErrInvalidConcurrency is returned when the per-host concurrency is
	// below one or the global concurrency is negative.
	ErrInvalidConcurrency = errors.New("invalid concurrency: requests per domain must be at least 1")

	// ErrInvalidTimeout is returned when the per-attempt timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the politeness delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxRedirects is returned when the redirect hop limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidRetries is returned when the retry limit is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidBackoff is returned for an unknown backoff policy name.
	ErrInvalidBackoff = errors.New("invalid backoff: must be exponential or fixed")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	// Use 0 for no cap.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRate is returned when the per-host request rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must be non-negative")

	// ErrInvalidBatchSize is returned when the number of concurrent seeds
	// is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for no limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxy is returned when the proxy URL has an unsupported scheme.
	ErrInvalidProxy = errors.New("invalid proxy url: scheme must be socks5, socks5h, http or https")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
