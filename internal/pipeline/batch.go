package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/hostcrawl/internal/model"
)

// DefaultBatchConcurrency is the number of targets crawled at once when
// WithConcurrency is not given.
const DefaultBatchConcurrency = 1

// Factory creates the pipeline for one target.
type Factory func(target string) *Pipeline

// BatchProcessor crawls multiple targets concurrently.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline so that a Pipeline stays a single-target run.
// Each target's fetch limit is independent of how many targets run at once.
type BatchProcessor struct {
	// factory creates a fresh pipeline for each target.
	factory Factory

	// concurrency is the maximum number of targets crawled at once.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of targets crawled at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch crawls targets and returns one report per target, in the
// order of targets.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because each target needs a single goroutine for its pipeline and errgroup
// bounds them. Failures stay in the reports and never cancel the group.
//
// When ctx is cancelled, targets that had not started get a report marked
// cancelled, and ctx.Err() is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.CrawlReport, error) {
	reports := make([]*model.CrawlReport, len(targets))
	err := bp.ProcessBatchWithCallback(ctx, targets, func(report *model.CrawlReport, index int) {
		// Each index is written by exactly one goroutine.
		reports[index] = report
	})
	return reports, err
}

// ProcessBatchWithCallback crawls targets and calls callback with each
// finished report and the index of its target. The callback is called from
// the goroutine that ran the pipeline, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"targets", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			report := model.NewCrawlReport(target)

			if err := ctx.Err(); err != nil {
				report.Cancelled = true
				callback(report, i)
				return nil
			}

			bp.logger.Debug("crawling target",
				"url", target,
				"index", i+1,
				"total", len(targets),
			)

			if err := bp.factory(target).Execute(ctx, report); err != nil {
				bp.logger.Warn("crawl failed",
					"url", target,
					"error", err,
				)
			}

			callback(report, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return an error

	bp.logger.Info("batch processing complete",
		"targets", len(targets),
		"elapsed", time.Since(startTime),
	)
	return ctx.Err()
}
