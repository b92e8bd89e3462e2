package config

import "time"

// SiteConfig holds site-specific configuration for one host.
// This allows customizing crawl behavior per site in the .sitemirror file.
// Zero values mean "not set"; pointer fields distinguish an explicit zero.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Depth overrides the maximum link depth. 0 crawls only the seed.
	Depth *int `yaml:"depth,omitempty"`

	// Delay overrides the politeness delay, e.g. "2s" or "500ms".
	Delay *time.Duration `yaml:"delay,omitempty"`

	// RequestsPerDomain overrides the per-host concurrency.
	RequestsPerDomain int `yaml:"requestsPerDomain,omitempty"`

	// AllowedURLs overrides the allowed-URL pattern.
	AllowedURLs string `yaml:"allowedUrls,omitempty"`

	// AllowedDomains overrides the allowed domains.
	AllowedDomains []string `yaml:"allowedDomains,omitempty"`
}

// File represents the structure of the .sitemirror configuration file.
type File struct {
	// Sites maps host names (e.g. "docs.example.com") to their
	// site-specific configurations.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Depth != nil {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.Delay != nil {
		result.Delay = siteConfig.Delay
	}
	if siteConfig.RequestsPerDomain != 0 {
		result.RequestsPerDomain = siteConfig.RequestsPerDomain
	}
	if siteConfig.AllowedURLs != "" {
		result.AllowedURLs = siteConfig.AllowedURLs
	}
	if len(siteConfig.AllowedDomains) > 0 {
		result.AllowedDomains = siteConfig.AllowedDomains
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}

	return result
}

// apply copies the set fields onto cfg. Headers are merged; cfg.Headers
// must be owned by the caller.
func (s SiteConfig) apply(cfg *Config) {
	if s.Cookie != "" {
		cfg.Cookie = s.Cookie
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	if s.Depth != nil {
		cfg.MaxDepth = *s.Depth
	}
	if s.Delay != nil {
		cfg.Delay = *s.Delay
	}
	if s.RequestsPerDomain != 0 {
		cfg.RequestsPerDomain = s.RequestsPerDomain
	}
	if s.AllowedURLs != "" {
		cfg.AllowedURLPattern = s.AllowedURLs
	}
	if len(s.AllowedDomains) > 0 {
		cfg.AllowedDomains = s.AllowedDomains
	}
	for k, v := range s.Headers {
		cfg.Headers[k] = v
	}
}
