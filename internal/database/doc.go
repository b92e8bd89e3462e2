// Package database provides the SQLite crawl journal for sitemirror.
//
// The journal stores:
//   - One row per crawl run with its seed, start and finish times and the
//     final summary as JSON
//   - One row per processed URL with its outcome, the path it was mirrored
//     to and the SHA3-256 of its body
//
// The journal is a single SQLite file (modernc.org/sqlite, no cgo) opened
// in WAL mode, so `sitemirror history` can read while a crawl writes.
//
// The journal is a record for inspection between runs. It never feeds back
// into a crawl: URLs are not skipped because an earlier run fetched them.
package database
