package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

var (
	// ErrTransport wraps network-level failures: DNS, connect, TLS, timeouts
	// and interrupted bodies. These are worth retrying.
	ErrTransport = errors.New("transport failure")

	// ErrBodyTooLarge is returned when a body exceeds the configured cap.
	// Retrying would produce the same result.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")

	// ErrInvalidProxy is returned when the proxy URL cannot be used.
	ErrInvalidProxy = errors.New("invalid proxy url")
)

// DefaultHeaders are sent with every request unless overridden.
// They mimic a desktop browser so that sites serve their regular pages.
var DefaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "*",
	"Accept-Encoding":           "gzip, deflate, br",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}

// DefaultUserAgent is the User-Agent used when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Fetcher retrieves one URL.
type Fetcher interface {
	// Fetch performs a single GET. Extra headers are added to the defaults.
	// Transport failures are returned wrapped in ErrTransport; HTTP error
	// statuses are not errors.
	Fetch(ctx context.Context, rawURL string, headers http.Header) (*model.FetchResult, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// Headers are added to (and override) DefaultHeaders.
	Headers map[string]string

	// Cookie is sent as the Cookie header when set.
	Cookie string

	// Timeout bounds one attempt, including reading the body.
	Timeout time.Duration

	// MaxBodySize caps the decoded body size in bytes. Zero means unlimited.
	MaxBodySize int64

	// ProxyURL routes requests through a proxy. Supported schemes are
	// socks5, socks5h, http and https.
	ProxyURL string

	// MaxIdleConnsPerHost tunes the connection pool. Zero selects a default
	// matching typical per-host concurrency.
	MaxIdleConnsPerHost int
}

// HTTPFetcher implements Fetcher with net/http.
type HTTPFetcher struct {
	client  *http.Client
	headers http.Header
	maxBody int64
}

// New creates an HTTPFetcher.
//
// The client never follows redirects: 3xx responses are returned as they
// are, and the scheduler resubmits the Location to the frontier.
func New(opts Options) (*HTTPFetcher, error) {
	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	headers := make(http.Header, len(DefaultHeaders)+len(opts.Headers)+2)
	for k, v := range DefaultHeaders {
		headers.Set(k, v)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	headers.Set("User-Agent", userAgent)
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	if opts.Cookie != "" {
		headers.Set("Cookie", opts.Cookie)
	}

	return &HTTPFetcher{
		client:  client,
		headers: headers,
		maxBody: opts.MaxBodySize,
	}, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) (*model.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	for k, v := range f.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	for k, v := range headers {
		req.Header[k] = append([]string(nil), v...)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	body, err := readBody(resp, f.maxBody)
	if err != nil {
		return nil, err
	}

	return &model.FetchResult{
		URL:         model.NormalizedURL(rawURL),
		FinalURL:    rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: strings.TrimSpace(resp.Header.Get("Content-Type")),
		Body:        body,
		Headers:     resp.Header.Clone(),
	}, nil
}

// Client exposes the underlying HTTP client.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}
