package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nao1215/hostcrawl/internal/crawler"
)

// progressObserver renders crawl progress on a terminal.
//
// The total is unknown until the crawl ends, so the bar is a spinner that
// counts finished fetches and shows how many addresses are still pending.
type progressObserver struct {
	bar      *progressbar.ProgressBar
	accepted atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
}

var _ crawler.Observer = (*progressObserver)(nil)

// newProgressObserver creates a progress observer that renders to w.
func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("crawling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Accepted implements crawler.Observer.
func (p *progressObserver) Accepted(string) {
	p.accepted.Add(1)
}

// FetchStarted implements crawler.Observer.
func (p *progressObserver) FetchStarted(string) {}

// FetchFinished implements crawler.Observer.
func (p *progressObserver) FetchFinished(_ string, _ int, err error, _ time.Duration) {
	finished := p.finished.Add(1)
	failed := p.failed.Load()
	if err != nil {
		failed = p.failed.Add(1)
	}

	p.bar.Describe(fmt.Sprintf("crawling (%d pending, %d failed)", p.accepted.Load()-finished, failed))
	_ = p.bar.Add(1) //nolint:errcheck // rendering errors are not crawl errors
}

// Finish stops rendering and clears the bar.
func (p *progressObserver) Finish() {
	_ = p.bar.Finish() //nolint:errcheck // rendering errors are not crawl errors
}
