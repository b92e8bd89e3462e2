// Package report renders crawl summaries and journal history.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable, optionally colored text for the terminal
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown for sharing a run in issues or docs
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
