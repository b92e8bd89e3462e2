package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/sitemirror/internal/model"
)

// Job carries one processed frontier entry through the pipeline.
type Job struct {
	// Visit is what the scheduler observed. Steps must not modify it.
	Visit *model.Visit

	// Report collects what the steps did. It is returned to the scheduler.
	Report *model.VisitReport

	// Errors holds the errors of steps that failed when the pipeline
	// continues on error.
	Errors []error
}

// NewJob creates a Job for a visit.
func NewJob(visit *model.Visit) *Job {
	return &Job{
		Visit:  visit,
		Report: &model.VisitReport{},
	}
}

// Fetched reports whether the visit produced a response to process.
func (j *Job) Fetched() bool {
	return j.Visit != nil && j.Visit.Outcome == model.OutcomeFetched && j.Visit.Result != nil
}

// Step is one stage of visit processing. Each step sees the job as the
// previous steps left it and carries its own state (sinks, run IDs).
type Step interface {
	// Do processes the job. A step that does not apply to the visit's
	// outcome returns nil.
	Do(ctx context.Context, job *Job) error

	// Name identifies the step in logs.
	Name() string
}

// Pipeline runs its steps in order for every visit.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps running later steps after one fails.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError makes a failing step non-fatal: the error is logged
// and kept in Job.Errors, and the next step runs.
//
// The crawl handler enables it: a URL whose content cannot be written still
// has its links extracted and its outcome journaled.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New returns an empty pipeline. Steps are added with AddStep or AddSteps.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step; steps run in the order they were added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps for job in order. ctx is checked before each
// step; a step that is already writing a file finishes it.
//
// Without continue-on-error the first failing step's error is returned.
// Otherwise failures only accumulate in job.Errors and Execute returns nil
// unless ctx ends.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	logger := p.logger.With("url", job.Visit.Entry.URL)
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			return err
		}

		err := step.Do(ctx, job)
		if err == nil {
			logger.Debug("step completed", "step", step.Name())
			continue
		}
		logger.Warn("step failed", "step", step.Name(), "error", err)
		job.Errors = append(job.Errors, err)
		if !p.continueOnError {
			return err
		}
	}
	return nil
}

// Handle runs the pipeline for one visit and returns its report.
// It implements crawler.Handler.
func (p *Pipeline) Handle(ctx context.Context, visit *model.Visit) *model.VisitReport {
	job := NewJob(visit)
	_ = p.Execute(ctx, job) //nolint:errcheck // failures are logged and kept in job.Errors
	return job.Report
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
