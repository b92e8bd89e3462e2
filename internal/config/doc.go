// Package config provides configuration structures and utilities for sitemirror.
// It defines the crawl scope, politeness and retry settings, persistence
// modes and report preferences, validates them once before a crawl starts,
// and compiles them into the immutable values the crawler packages consume.
package config
