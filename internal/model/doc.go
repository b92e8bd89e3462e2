// Package model defines the core data structures shared by the sitemirror
// packages.
//
// This package contains the following main types:
//   - NormalizedURL: The canonical key under which a URL is deduplicated
//   - FrontierEntry: A unit of crawl work waiting to be fetched
//   - FetchResult: The outcome of a single successful HTTP exchange
//   - PathDecision: Where a fetched resource lands on disk
//   - Visit / VisitReport: What the scheduler hands to result handlers and gets back
//   - CrawlSummary / RunInfo: Aggregated results of one crawl run
//
// The frontier, crawler, persist, pipeline, database and report packages all
// exchange these types. This package imports none of them.
package model
