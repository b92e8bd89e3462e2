// Package persist writes crawl output to disk: fetched content mirrored
// under a save directory, and a per-domain log of every fetched URL.
package persist
