// Package fetcher performs single HTTP GET requests for the crawler.
//
// A fetcher never follows redirects. Redirect responses are returned as-is
// so the scheduler can route the target back through the frontier, where it
// is deduplicated and scope-checked like any other discovered link.
package fetcher
