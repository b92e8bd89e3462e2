package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/persist"
)

// ErrNoContentType is returned by ContentStep when the response carries no
// usable Content-Type. Without it the file name of directory-like URLs
// cannot be decided, so the content is not written.
var ErrNoContentType = errors.New("response has no usable content type")

// LinkLogStep appends every fetched URL to the per-domain link log.
type LinkLogStep struct {
	sink   *persist.LinkSink
	domain string
}

// NewLinkLogStep creates a link log step writing into the log of domain.
func NewLinkLogStep(sink *persist.LinkSink, domain string) *LinkLogStep {
	return &LinkLogStep{sink: sink, domain: domain}
}

// Name returns the step name.
func (s *LinkLogStep) Name() string {
	return "link_log"
}

// Do appends the URL the response was served from.
func (s *LinkLogStep) Do(_ context.Context, job *Job) error {
	if !job.Fetched() {
		return nil
	}
	if err := s.sink.Append(s.domain, job.Visit.Result.FinalURL); err != nil {
		return err
	}
	job.Report.LinkLogged = true
	return nil
}

// ContentStep mirrors response bodies to disk.
type ContentStep struct {
	sink      *persist.ContentSink
	overwrite bool
	logger    *slog.Logger
}

// ContentStepOption configures a ContentStep.
type ContentStepOption func(*ContentStep)

// WithOverwrite allows existing files to be replaced.
func WithOverwrite(overwrite bool) ContentStepOption {
	return func(s *ContentStep) {
		s.overwrite = overwrite
	}
}

// WithContentLogger sets a custom logger for the content step.
func WithContentLogger(logger *slog.Logger) ContentStepOption {
	return func(s *ContentStep) {
		s.logger = logger
	}
}

// NewContentStep creates a content step writing through sink.
func NewContentStep(sink *persist.ContentSink, opts ...ContentStepOption) *ContentStep {
	s := &ContentStep{
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ContentStep) Name() string {
	return "content"
}

// Do writes the body to its mapped path.
// A path that already exists is a skip, not an error.
func (s *ContentStep) Do(ctx context.Context, job *Job) error {
	if !job.Fetched() {
		return nil
	}
	res := job.Visit.Result
	if res.MediaType() == "" {
		return fmt.Errorf("%w: %s", ErrNoContentType, res.URL)
	}

	result := s.sink.Persist(ctx, res.FinalURL, res.ContentType, res.Body, s.overwrite)
	job.Report.Persist = result.Status
	job.Report.Path = result.Path
	job.Report.Bytes = result.Bytes

	switch result.Status {
	case model.PersistSkippedExists:
		s.logger.Info("path already exists, skipping", "url", res.URL, "path", result.Path)
	case model.PersistWritten:
		s.logger.Debug("saved", "url", res.URL, "path", result.Path, "bytes", result.Bytes)
	case model.PersistError:
		return result.Err
	case model.PersistNone:
	}
	return nil
}

// ExtractStep extracts links from HTML responses.
type ExtractStep struct{}

// NewExtractStep creates a link extraction step.
func NewExtractStep() *ExtractStep {
	return &ExtractStep{}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do extracts links when the response is HTML. A response without a usable
// Content-Type is sniffed and only parsed when the body looks like HTML.
func (s *ExtractStep) Do(_ context.Context, job *Job) error {
	if !job.Fetched() {
		return nil
	}
	res := job.Visit.Result
	if !isHTML(res) {
		return nil
	}

	ext, err := crawler.ExtractFromResult(res)
	if err != nil {
		return fmt.Errorf("extract links from %s: %w", res.URL, err)
	}
	job.Report.Links = ext.Links
	job.Report.Dropped = ext.Dropped
	return nil
}

func isHTML(res *model.FetchResult) bool {
	if mediaType := res.MediaType(); mediaType != "" {
		return model.IsHTMLMediaType(mediaType)
	}
	return model.IsHTMLMediaType(model.ParseMediaType(http.DetectContentType(res.Body)))
}

// Journal records per-URL outcomes.
// *database.CrawlDB satisfies this interface.
type Journal interface {
	RecordFetch(ctx context.Context, rec *model.FetchRecord) error
}

// JournalStep records every visit, including failures, in the journal.
type JournalStep struct {
	journal Journal
	runID   string
}

// NewJournalStep creates a journal step for one run.
func NewJournalStep(journal Journal, runID string) *JournalStep {
	return &JournalStep{journal: journal, runID: runID}
}

// Name returns the step name.
func (s *JournalStep) Name() string {
	return "journal"
}

// Do writes the journal row. It must run last so it sees the results of
// the other steps.
func (s *JournalStep) Do(ctx context.Context, job *Job) error {
	rec := &model.FetchRecord{
		RunID:     s.runID,
		URL:       job.Visit.Entry.URL.String(),
		Outcome:   job.Visit.Outcome,
		Persist:   string(job.Report.Persist),
		Path:      job.Report.Path,
		Bytes:     job.Report.Bytes,
		Attempts:  job.Visit.Attempts,
		Depth:     job.Visit.Entry.Depth,
		Timestamp: time.Now().UTC(),
	}
	if res := job.Visit.Result; res != nil {
		rec.FinalURL = res.FinalURL
		rec.StatusCode = res.StatusCode
		rec.ContentType = res.ContentType
		if job.Fetched() {
			rec.ContentHash = ContentHash(res.Body)
		}
	}

	errs := make([]error, 0, len(job.Errors)+1)
	if job.Visit.Err != nil {
		errs = append(errs, job.Visit.Err)
	}
	errs = append(errs, job.Errors...)
	if err := errors.Join(errs...); err != nil {
		rec.Error = err.Error()
	}

	return s.journal.RecordFetch(ctx, rec)
}

// ContentHash returns the hex SHA3-256 of body. It is recorded for change
// inspection between runs and never used to skip content.
func ContentHash(body []byte) string {
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}
