// Package frontier holds the crawl frontier: the visited set, the queue of
// pending entries and the in-flight counter that decides when a crawl is done.
//
// Every discovered reference goes through Deduper.Submit. Filtering, the
// visited-set test-and-insert and the enqueue happen under one lock, so a URL
// discovered by many workers at the same moment is accepted exactly once.
package frontier
