package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/hostcrawl/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the report
// filled by previous steps.
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails critically; non-critical problems
	// should be recorded in the report and return nil.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// deferred run after steps, even when the pipeline stopped early.
	deferred []Step

	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The error of the first failed step is recorded
// in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddDeferredStep appends a step that runs after the regular steps, even
// when one of them failed or ctx was cancelled. Deferred steps get a context
// that is not cancelled with ctx, so a partial report can still be saved.
func (p *Pipeline) AddDeferredStep(step Step) {
	p.deferred = append(p.deferred, step)
}

// Execute runs all pipeline steps in sequence, then the deferred steps.
//
// Design decision: We check ctx before each step rather than during, because
// steps handle their own cancellation. A crawl step that is interrupted
// records the partial result and returns; the pipeline then notices the
// cancellation and skips the remaining regular steps.
//
// Returns the first error encountered if continueOnError is false, the
// context error on cancellation, or nil. Errors are also recorded in report.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	err := p.runSteps(ctx, report)

	deferredCtx := context.WithoutCancel(ctx)
	for _, step := range p.deferred {
		if stepErr := p.runStep(deferredCtx, step, report); stepErr != nil && err == nil {
			err = stepErr
		}
	}
	return err
}

func (p *Pipeline) runSteps(ctx context.Context, report *model.CrawlReport) error {
	var firstErr error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", err,
			)
			report.Cancelled = true
			return err
		}

		if err := p.runStep(ctx, step, report); err != nil {
			if !p.continueOnError {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pipeline) runStep(ctx context.Context, step Step, report *model.CrawlReport) error {
	p.logger.Debug("executing step",
		"step", step.Name(),
		"url", report.StartURL,
	)

	report.Steps = append(report.Steps, step.Name())

	if err := step.Do(ctx, report); err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"url", report.StartURL,
			"error", err,
		)
		if report.Error == "" {
			report.Error = err.Error()
		}
		return err
	}

	p.logger.Debug("step completed",
		"step", step.Name(),
		"url", report.StartURL,
	)
	return nil
}

// StepCount returns the number of steps in the pipeline, deferred included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.deferred)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.deferred {
		names = append(names, step.Name())
	}
	return names
}
