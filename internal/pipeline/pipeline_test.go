package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/hostcrawl/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, report *model.CrawlReport) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.CrawlReport) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if p := New(WithContinueOnError(true)); !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddDeferredStep(&mockStep{name: "last"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	want := []string{"first", "second", "third", "last"}
	if got := p.StepNames(); !slices.Equal(got, want) {
		t.Errorf("StepNames() = %v, want %v", got, want)
	}
	if p.StepCount() != 4 {
		t.Errorf("expected 4 steps, got %d", p.StepCount())
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.CrawlReport) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddDeferredStep(record("save"))
		p.AddSteps(record("a"), record("b"))

		report := model.NewCrawlReport("http://example.com/")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"a", "b", "save"}
		if !slices.Equal(order, want) {
			t.Errorf("execution order = %v, want %v", order, want)
		}
		if !slices.Equal(report.Steps, want) {
			t.Errorf("report.Steps = %v, want %v", report.Steps, want)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("boom")
		failing := &mockStep{name: "failing", doFunc: func(context.Context, *model.CrawlReport) error { return stepErr }}
		skipped := &mockStep{name: "skipped"}
		deferred := &mockStep{name: "deferred"}

		p := New()
		p.AddSteps(failing, skipped)
		p.AddDeferredStep(deferred)

		report := model.NewCrawlReport("http://example.com/")
		err := p.Execute(context.Background(), report)
		if !errors.Is(err, stepErr) {
			t.Errorf("expected step error, got %v", err)
		}
		if skipped.callCount != 0 {
			t.Error("step after failure must not run")
		}
		if deferred.callCount != 1 {
			t.Error("deferred step must run after a failure")
		}
		if report.Error != "boom" || report.Status() != model.StatusFailed {
			t.Errorf("error not recorded: %+v", report)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		first := &mockStep{name: "first", doFunc: func(context.Context, *model.CrawlReport) error { return errors.New("first") }}
		second := &mockStep{name: "second", doFunc: func(context.Context, *model.CrawlReport) error { return errors.New("second") }}
		third := &mockStep{name: "third"}

		p := New(WithContinueOnError(true))
		p.AddSteps(first, second, third)

		report := model.NewCrawlReport("http://example.com/")
		err := p.Execute(context.Background(), report)
		if err == nil || err.Error() != "first" {
			t.Errorf("expected first error, got %v", err)
		}
		if third.callCount != 1 {
			t.Error("expected remaining steps to run")
		}
		if report.Error != "first" {
			t.Errorf("expected first error recorded, got %q", report.Error)
		}
	})

	t.Run("cancelled context skips steps but runs deferred ones", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "crawl"}
		var deferredCtxErr error
		deferred := &mockStep{name: "save", doFunc: func(ctx context.Context, _ *model.CrawlReport) error {
			deferredCtxErr = ctx.Err()
			return nil
		}}

		p := New()
		p.AddStep(step)
		p.AddDeferredStep(deferred)

		report := model.NewCrawlReport("http://example.com/")
		err := p.Execute(ctx, report)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("regular step must not run after cancellation")
		}
		if deferred.callCount != 1 || deferredCtxErr != nil {
			t.Errorf("deferred step must run with a live context (calls=%d, err=%v)", deferred.callCount, deferredCtxErr)
		}
		if !report.Cancelled {
			t.Error("expected report to be marked cancelled")
		}
	})

	t.Run("deferred step error is returned", func(t *testing.T) {
		t.Parallel()

		saveErr := errors.New("disk full")
		p := New()
		p.AddStep(&mockStep{name: "crawl"})
		p.AddDeferredStep(&mockStep{name: "save", doFunc: func(context.Context, *model.CrawlReport) error { return saveErr }})

		if err := p.Execute(context.Background(), model.NewCrawlReport("http://example.com/")); !errors.Is(err, saveErr) {
			t.Errorf("expected save error, got %v", err)
		}
	})
}
