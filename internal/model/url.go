package model

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrNotAbsolute is returned when a URL cannot be made absolute, either
// because it lacks a scheme or host and no base was available to resolve it.
var ErrNotAbsolute = errors.New("url is not absolute")

// ignoredReference matches raw href/src values that never name a fetchable
// resource: non-web schemes, bare fragments and empty values.
// A fragment that starts with "/" ("#/route") is not matched; it resolves to
// the page itself and is later dropped as a duplicate.
var ignoredReference = regexp.MustCompile(`(?i)^(mailto|javascript|xmpp|urn|tel):|^#$|^#[^/]+$|^$`)

// IsIgnoredReference reports whether a raw reference should be dropped before
// resolution. Leading and trailing whitespace is ignored, as browsers do.
func IsIgnoredReference(raw string) bool {
	return ignoredReference.MatchString(strings.TrimSpace(raw))
}

// NormalizedURL is an absolute URL with the fragment removed, scheme and
// host lower-cased and an empty path replaced by "/".
// It is the key of the visited set: two references that normalize to the
// same value are the same resource.
type NormalizedURL string

// String returns the URL as a plain string.
func (u NormalizedURL) String() string {
	return string(u)
}

// Host returns the host (including port, if any) of the URL.
// It returns an empty string when the value does not parse.
func (u NormalizedURL) Host() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Hostname returns the host without any port.
func (u NormalizedURL) Hostname() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// NormalizeURL resolves raw against base (which may be nil) and returns the
// normalized form together with the parsed URL.
//
// Normalization is intentionally minimal: the fragment is dropped, scheme
// and host are lower-cased and an empty path becomes "/". Query strings and
// path case are preserved because servers may treat them as significant.
func NormalizeURL(raw string, base *url.URL) (NormalizedURL, *url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", nil, err
	}

	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}

	if resolved.Scheme == "" || resolved.Host == "" {
		return "", nil, ErrNotAbsolute
	}

	resolved.Fragment = ""
	resolved.RawFragment = ""
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	if resolved.Path == "" && resolved.Opaque == "" {
		resolved.Path = "/"
		resolved.RawPath = ""
	}

	return NormalizedURL(resolved.String()), resolved, nil
}

// IsWebScheme reports whether u uses a scheme the crawler can fetch.
func IsWebScheme(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
