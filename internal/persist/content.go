package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

// ErrResolve is returned when no path can be computed for a URL.
var ErrResolve = errors.New("cannot resolve path")

// Resolver computes the path decision for a URL.
// *pathmap.Mapper satisfies this interface.
type Resolver interface {
	Resolve(rawURL, contentType string, overwrite bool) (model.PathDecision, error)
}

// Result is the outcome of one Persist call.
type Result struct {
	Status model.PersistStatus
	Path   string
	Bytes  int
	Err    error
}

// ContentSink mirrors response bodies under a root directory.
type ContentSink struct {
	root     string
	resolver Resolver
	dirPerm  fs.FileMode
	filePerm fs.FileMode
	locks    *pathLocks

	// write copies body to a claimed file. Replaced in tests.
	write func(w io.Writer, body []byte) (int, error)
}

// ContentOption configures a ContentSink.
type ContentOption func(*ContentSink)

// WithPermissions sets the directory and file permissions used for new entries.
func WithPermissions(dir, file fs.FileMode) ContentOption {
	return func(s *ContentSink) {
		s.dirPerm = dir
		s.filePerm = file
	}
}

// NewContentSink creates a sink writing under root.
func NewContentSink(root string, resolver Resolver, opts ...ContentOption) *ContentSink {
	s := &ContentSink{
		root:     root,
		resolver: resolver,
		dirPerm:  0o755,
		filePerm: 0o644,
		locks:    newPathLocks(),
		write:    func(w io.Writer, body []byte) (int, error) { return w.Write(body) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory content is written under.
func (s *ContentSink) Root() string {
	return s.root
}

// Persist writes body to the path resolved for rawURL.
//
// Without overwrite the file is claimed with O_CREATE|O_EXCL: if the path
// already exists, the result is PersistSkippedExists and the file is left
// untouched, and a failed write removes the claim. With overwrite the body
// goes to a temporary file in the same directory that is renamed over the
// target, so a failed write leaves the previous copy in place. A per-path
// lock serializes writers that resolve to the same path.
func (s *ContentSink) Persist(ctx context.Context, rawURL, contentType string, body []byte, overwrite bool) Result {
	decision, err := s.resolver.Resolve(rawURL, contentType, overwrite)
	if err != nil {
		return Result{Status: model.PersistError, Err: fmt.Errorf("%w: %w", ErrResolve, err)}
	}
	path := decision.Path(s.root)

	if err := ctx.Err(); err != nil {
		return Result{Status: model.PersistError, Path: path, Err: err}
	}

	unlock := s.locks.lock(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), s.dirPerm); err != nil {
		return Result{Status: model.PersistError, Path: path, Err: fmt.Errorf("create directory: %w", err)}
	}

	if decision.Overwrite {
		return s.replace(path, body)
	}
	return s.claim(path, body)
}

// claim creates path exclusively and writes body into it.
func (s *ContentSink) claim(path string, body []byte) Result {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.filePerm) //nolint:gosec // path is built from sanitized segments under root
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Result{Status: model.PersistSkippedExists, Path: path}
		}
		return Result{Status: model.PersistError, Path: path, Err: fmt.Errorf("open %s: %w", path, err)}
	}

	n, writeErr := s.write(f, body)
	if err := errors.Join(writeErr, f.Close()); err != nil {
		_ = os.Remove(path) //nolint:errcheck // best effort; the write error is what gets reported
		return Result{Status: model.PersistError, Path: path, Err: fmt.Errorf("write %s: %w", path, err)}
	}
	return Result{Status: model.PersistWritten, Path: path, Bytes: n}
}

// replace writes body next to path and renames it into place.
func (s *ContentSink) replace(path string, body []byte) Result {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Result{Status: model.PersistError, Path: path, Err: fmt.Errorf("create temporary file: %w", err)}
	}
	tmpPath := tmp.Name()

	n, writeErr := s.write(tmp, body)
	err = errors.Join(writeErr, tmp.Chmod(s.filePerm), tmp.Close())
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort; the write error is what gets reported
		return Result{Status: model.PersistError, Path: path, Err: fmt.Errorf("write %s: %w", path, err)}
	}
	return Result{Status: model.PersistWritten, Path: path, Bytes: n}
}

// pathLocks hands out one mutex per path and forgets it when unused.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}
