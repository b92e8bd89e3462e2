// Package main provides the entry point for the sitemirror CLI.
//
// sitemirror mirrors web sites to the local file system. It crawls from one
// or more seed URLs, stays inside the configured scope, and writes every
// response to a path derived from its URL.
//
// Usage:
//
//	sitemirror crawl <url>...
//	sitemirror history [host]
//
// See --help for all available options.
package main

// main is the entry point for sitemirror.
func main() {
	Execute()
}
