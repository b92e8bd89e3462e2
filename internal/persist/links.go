package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LinkLogSuffix is appended to the domain to form the link log file name.
const LinkLogSuffix = "-links.txt"

// LinkLogName returns the link log file name for a domain.
// Characters that are invalid in file names on common platforms are replaced.
func LinkLogName(domain string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, domain)
	return safe + LinkLogSuffix
}

// LinkSink appends fetched URLs to per-domain text files, one URL per line.
// Files are opened lazily in append mode and kept open until Close.
type LinkSink struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewLinkSink creates a sink writing link logs into dir.
// An empty dir means the current directory.
func NewLinkSink(dir string) *LinkSink {
	return &LinkSink{dir: dir, files: make(map[string]*os.File)}
}

// Path returns the link log path for domain.
func (s *LinkSink) Path(domain string) string {
	return filepath.Join(s.dir, LinkLogName(domain))
}

// Append writes rawURL as one line to the log of domain.
// Appends are serialized so lines from concurrent workers never interleave.
func (s *LinkSink) Append(domain, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[domain]
	if !ok {
		if s.dir != "" {
			if err := os.MkdirAll(s.dir, 0o755); err != nil {
				return fmt.Errorf("create link directory: %w", err)
			}
		}
		var err error
		f, err = os.OpenFile(s.Path(domain), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // path derived from sanitized domain
		if err != nil {
			return fmt.Errorf("open link log: %w", err)
		}
		s.files[domain] = f
	}

	if _, err := f.WriteString(rawURL + "\n"); err != nil {
		return fmt.Errorf("append link: %w", err)
	}
	return nil
}

// Close closes every open link log.
func (s *LinkSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for domain, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close link log for %s: %w", domain, err))
		}
		delete(s.files, domain)
	}
	return errors.Join(errs...)
}
