// Package pathmap maps URLs to filesystem paths under a mirror root.
//
// The mapping is a pure function of the URL and the response content type,
// so the same URL always lands on the same path regardless of crawl order.
// Claiming the path and deciding what happens on collision is the job of
// the persist package.
package pathmap
