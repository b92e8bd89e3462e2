package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OpenLogFile opens path for appending, creating it and its parent
// directories when needed.
func OpenLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // User-provided log path is intentional
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Tee returns a writer that writes to console and, when path is not
// empty, appends to the log file at path. The returned close function
// closes the file and is safe to call when no file was opened.
func Tee(console io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return console, func() error { return nil }, nil
	}
	f, err := OpenLogFile(path)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(console, f), f.Close, nil
}
