package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/persist"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemirror"

	// DefaultAllowedURLPattern matches every URL.
	DefaultAllowedURLPattern = ".*"

	// DefaultRequestsPerDomain is one request in flight per host, the
	// politest setting that still lets different hosts proceed in parallel.
	DefaultRequestsPerDomain = 1

	// DefaultDelay is the politeness delay between dispatches to one host.
	DefaultDelay = 1 * time.Second

	// DefaultMaxRedirects is the redirect hop limit per chain.
	DefaultMaxRedirects = 15

	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 5

	// DefaultBackoff is the retry backoff policy.
	DefaultBackoff = string(crawler.BackoffExponential)

	// DefaultTimeout bounds a single attempt including the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxDepth means no depth limit.
	DefaultMaxDepth = -1

	// DefaultBatchSize crawls seeds one after another.
	DefaultBatchSize = 1

	// DefaultShutdownGrace is how long in-flight fetches may run after an
	// interrupt before they are aborted.
	DefaultShutdownGrace = crawler.DefaultShutdownGrace

	// DomainPlaceholder in LogFile is replaced by the seed host.
	DomainPlaceholder = "[domain]"
)

// Config holds all configuration options for sitemirror.
// This struct is populated from CLI flags and the optional YAML file and
// passed through the application via dependency injection rather than
// global state. It must not be modified after Validate.
//
// The compiled, per-crawl pieces (Scope, limiter, retry and fetcher
// options) are derived from it by methods, so the crawler packages only
// ever see validated input.
type Config struct {
	// Seeds are the starting URLs. Each seed is an independent crawl.
	Seeds []string

	// AllowedDomains restricts the hosts that are followed.
	// Empty means unrestricted.
	AllowedDomains []string

	// AllowedURLPattern is a regular expression the absolute URL must match
	// from its start to be followed.
	AllowedURLPattern string

	// RequestsPerDomain is the maximum number of concurrent requests to one host.
	RequestsPerDomain int

	// Concurrency is the global number of concurrent requests (and workers).
	// Zero selects twice RequestsPerDomain.
	Concurrency int

	// Delay is the politeness delay between dispatches to one host.
	Delay time.Duration

	// RandomizeDelay multiplies each delay by a random factor in [0.5, 1.5).
	RandomizeDelay bool

	// RateLimit caps requests per second per host. Zero disables it.
	RateLimit float64

	// MaxRedirects is the redirect hop limit.
	MaxRedirects int

	// Retries is the number of retries after the first attempt.
	Retries int

	// Backoff is the retry backoff policy name: exponential or fixed.
	Backoff string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxPages caps the number of URLs accepted per crawl. Zero means no cap.
	MaxPages int

	// MaxDepth caps the link depth. Negative means no cap.
	MaxDepth int

	// Overwrite replaces files that already exist instead of skipping them.
	Overwrite bool

	// SaveDir is the root the site is mirrored into.
	// Empty means ./<seed host>.
	SaveDir string

	// OnlyLinks disables content persistence and enables the link log.
	OnlyLinks bool

	// AlsoSaveLinks enables the link log in addition to content.
	AlsoSaveLinks bool

	// LinksDir is the directory of the <domain>-links.txt files.
	// Empty means the current directory.
	LinksDir string

	// UserAgent overrides the default browser-like User-Agent.
	UserAgent string

	// Headers are added to every request.
	Headers map[string]string

	// Cookie is sent with every request.
	Cookie string

	// MaxBodySize caps the decoded response body in bytes. Zero means no limit.
	MaxBodySize int64

	// ProxyURL routes all requests through a socks5 or http proxy.
	ProxyURL string

	// LogFile receives a copy of the log. "[domain]" is replaced by the seed host.
	LogFile string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// JournalDir is the directory of the SQLite crawl journal.
	// Defaults to the XDG data directory.
	JournalDir string

	// NoJournal disables the crawl journal.
	NoJournal bool

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// ShutdownGrace is how long in-flight fetches may run after an interrupt.
	ShutdownGrace time.Duration

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .sitemirror in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON summary output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown summary output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the summary.
	// When set, the summary is written to this file instead of stdout.
	ReportFile string
}

// NewConfig creates a new Config with default values.
// Many defaults are non-zero, including the -1 "unlimited depth" sentinel.
func NewConfig() *Config {
	return &Config{
		AllowedURLPattern: DefaultAllowedURLPattern,
		RequestsPerDomain: DefaultRequestsPerDomain,
		Delay:             DefaultDelay,
		RandomizeDelay:    true,
		MaxRedirects:      DefaultMaxRedirects,
		Retries:           DefaultRetries,
		Backoff:           DefaultBackoff,
		Timeout:           DefaultTimeout,
		MaxDepth:          DefaultMaxDepth,
		JournalDir:        XDGDataDir(),
		BatchSize:         DefaultBatchSize,
		ShutdownGrace:     DefaultShutdownGrace,
	}
}

// XDGDataDir returns the XDG data directory for sitemirror.
// On Linux: ~/.local/share/sitemirror
// On macOS: ~/Library/Application Support/sitemirror
// On Windows: %LOCALAPPDATA%\sitemirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemirror.
// On Linux: ~/.config/sitemirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found, wrapping one of the sentinel errors.
// It is called once after CLI parsing, before any request is sent.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	for _, seed := range c.Seeds {
		if _, err := NormalizeSeed(seed); err != nil {
			return err
		}
	}

	if _, err := compilePattern(c.AllowedURLPattern); err != nil {
		return err
	}

	if c.RequestsPerDomain < 1 || c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if _, err := crawler.ParseBackoffPolicy(c.Backoff); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBackoff, c.Backoff)
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.RateLimit < 0 {
		return ErrInvalidRate
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.ProxyURL != "" {
		if err := validateProxy(c.ProxyURL); err != nil {
			return err
		}
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// NormalizeSeed turns a user-supplied seed into a normalized absolute URL.
// A seed without a scheme ("example.com/docs") is treated as https.
func NormalizeSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	normalized, parsed, err := model.NormalizeURL(raw, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidSeed, raw, err)
	}
	if !model.IsWebScheme(parsed) {
		return "", fmt.Errorf("%w: %s: scheme must be http or https", ErrInvalidSeed, raw)
	}
	return normalized.String(), nil
}

// SeedHost returns the host name of a seed, without port.
func SeedHost(seed string) (string, error) {
	normalized, err := NormalizeSeed(seed)
	if err != nil {
		return "", err
	}
	return model.NormalizedURL(normalized).Hostname(), nil
}

// compilePattern compiles the allowed-URL pattern anchored at the start of
// the URL, so "https://ex.com/docs" only admits URLs beginning with it.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = DefaultAllowedURLPattern
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return re, nil
}

func validateProxy(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidProxy, raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "socks5", "socks5h", "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProxy, raw)
	}
}

// GlobalConcurrency returns the effective global concurrency.
func (c *Config) GlobalConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return 2 * max(c.RequestsPerDomain, 1)
}

// SaveDirFor returns the directory the crawl of host is mirrored into.
// Without --save-dir each seed gets ./<host>. With --save-dir and several
// seeds each seed gets <save-dir>/<host> so the mirrors do not mix.
func (c *Config) SaveDirFor(host string) string {
	switch {
	case c.SaveDir == "":
		return host
	case len(c.Seeds) > 1:
		return filepath.Join(c.SaveDir, host)
	default:
		return c.SaveDir
	}
}

// LogFileFor returns the log file path for the crawl of host, or "" when
// no log file is configured.
func (c *Config) LogFileFor(host string) string {
	return strings.ReplaceAll(c.LogFile, DomainPlaceholder, host)
}

// Mode returns which sinks are active.
func (c *Config) Mode() persist.Mode {
	return persist.ModeFor(c.OnlyLinks, c.AlsoSaveLinks)
}

// ForSeed returns a copy of the configuration with the site-specific
// overrides of the seed's host applied. The receiver is not modified.
func (c *Config) ForSeed(seed string) (*Config, error) {
	host, err := SeedHost(seed)
	if err != nil {
		return nil, err
	}

	out := *c
	out.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		out.Headers[k] = v
	}
	if c.SiteConfigs == nil {
		return &out, nil
	}

	site := c.SiteConfigs.GetSiteConfig(host)
	site.apply(&out)
	return &out, nil
}

// Scope is the compiled, immutable crawl scope of one seed.
type Scope struct {
	// Seed is the normalized seed URL.
	Seed string

	// Host is the seed host name.
	Host string

	// AllowedDomains are the lower-cased allowed hosts.
	AllowedDomains []string

	// AllowedURL is the anchored allowed-URL pattern.
	AllowedURL *regexp.Regexp

	// MaxDepth and MaxPages mirror the Config fields.
	MaxDepth int
	MaxPages int
}

// Compile validates the per-seed settings and returns the scope of seed.
func (c *Config) Compile(seed string) (*Scope, error) {
	normalized, err := NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}
	re, err := compilePattern(c.AllowedURLPattern)
	if err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(c.AllowedDomains))
	for _, d := range c.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	return &Scope{
		Seed:           normalized,
		Host:           model.NormalizedURL(normalized).Hostname(),
		AllowedDomains: domains,
		AllowedURL:     re,
		MaxDepth:       c.MaxDepth,
		MaxPages:       c.MaxPages,
	}, nil
}

// FrontierOptions returns the frontier scope filters.
func (s *Scope) FrontierOptions() frontier.Options {
	return frontier.Options{
		AllowedDomains: s.AllowedDomains,
		AllowedURL:     s.AllowedURL,
		MaxDepth:       s.MaxDepth,
		MaxPages:       s.MaxPages,
	}
}

// LimiterOptions returns the host limiter settings.
func (c *Config) LimiterOptions() crawler.LimiterOptions {
	return crawler.LimiterOptions{
		PerHost:       c.RequestsPerDomain,
		Global:        c.GlobalConcurrency(),
		Delay:         c.Delay,
		Jitter:        c.RandomizeDelay,
		RatePerSecond: c.RateLimit,
	}
}

// RetryPolicy returns the retry policy. Validate must have succeeded.
func (c *Config) RetryPolicy() crawler.RetryPolicy {
	backoff, err := crawler.ParseBackoffPolicy(c.Backoff)
	if err != nil {
		backoff = crawler.BackoffExponential
	}
	return crawler.RetryPolicy{
		Limit:   c.Retries,
		Backoff: backoff,
	}
}

// FetcherOptions returns the HTTP fetcher settings.
func (c *Config) FetcherOptions() fetcher.Options {
	return fetcher.Options{
		UserAgent:           c.UserAgent,
		Headers:             c.Headers,
		Cookie:              c.Cookie,
		Timeout:             c.Timeout,
		MaxBodySize:         c.MaxBodySize,
		ProxyURL:            c.ProxyURL,
		MaxIdleConnsPerHost: c.RequestsPerDomain,
	}
}
