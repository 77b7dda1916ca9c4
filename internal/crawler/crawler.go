package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Crawler discovers every address reachable from a start address that shares
// its host key. A Crawler holds only configuration; each call to Crawl owns
// its own Frontier and Dispatcher, so one Crawler can run several crawls.
type Crawler struct {
	concurrency int
	maxPages    int
	filter      AcceptFilter
	logger      *slog.Logger
	observer    Observer
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithConcurrency sets the maximum number of concurrent fetches.
// Values of zero or less fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		c.concurrency = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxPages caps the number of accepted addresses. 0 means unlimited.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithAcceptFilter sets an extra predicate that in-scope addresses must
// satisfy to be accepted. The start address is always accepted.
func WithAcceptFilter(filter AcceptFilter) Option {
	return func(c *Crawler) {
		c.filter = filter
	}
}

// WithObserver sets the observer notified of crawl events.
func WithObserver(observer Observer) Option {
	return func(c *Crawler) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// New creates a Crawler.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		observer:    NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	return c
}

// Result is the outcome of one crawl.
type Result struct {
	// Start is the start address as given.
	Start string

	// HostKey is the scope every address in URLs shares.
	HostKey string

	// URLs holds every accepted address in acceptance order.
	URLs []string

	// Failures holds the fetch errors. Failed addresses remain in URLs.
	Failures []*FetchError

	// PeakInFlight is the highest number of concurrent fetches observed.
	PeakInFlight int

	// Elapsed is the wall time of the crawl.
	Elapsed time.Duration
}

// Crawl runs a crawl from start using port to discover links.
//
// It returns ErrMalformedAddress (wrapped) before fetching anything when
// start has no host key. When ctx is cancelled, Crawl stops dispatching,
// waits for the running fetches and returns the partial Result along with
// ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, start string, port FetchPort) (*Result, error) {
	if port == nil {
		return nil, ErrNilFetchPort
	}

	began := time.Now()
	scopeKey, err := HostKey(start)
	if err != nil {
		return nil, err
	}

	frontier := newFrontier(c.filter, c.maxPages)
	dispatcher := NewDispatcher(c.concurrency,
		WithDispatcherLogger(c.logger),
		WithDispatcherObserver(c.observer),
	)
	result := &Result{
		Start:   start,
		HostKey: scopeKey,
	}

	c.logger.Debug("crawl started", "url", start, "host", scopeKey, "concurrency", dispatcher.Limit())

	frontier.Seed(start)
	outstanding := make([]*Task, 0, dispatcher.Limit())

	var crawlErr error
	for {
		if err := ctx.Err(); err != nil {
			crawlErr = err
			break
		}

		if address, ok := frontier.TakePending(); ok {
			if !frontier.TryAccept(address, scopeKey) {
				continue
			}
			c.observer.Accepted(address)

			task, err := dispatcher.Submit(ctx, address, port)
			if err != nil {
				// Only a cancelled ctx makes Submit fail; the address stays
				// accepted and the loop exits on the next check.
				result.Failures = append(result.Failures, &FetchError{Address: address, Err: err})
				continue
			}
			outstanding = append(outstanding, task)
			continue
		}

		if len(outstanding) > 0 {
			task := outstanding[0]
			outstanding[0] = nil
			outstanding = outstanding[1:]

			links := task.Await()
			c.collect(result, task)
			frontier.OfferDiscovered(links)
			continue
		}

		break
	}

	// Drain after cancellation. Links of these tasks are dropped.
	for _, task := range outstanding {
		<-task.Done()
		c.collect(result, task)
	}

	result.URLs = frontier.Visited()
	result.PeakInFlight = int(dispatcher.Stats().PeakInFlight)
	result.Elapsed = time.Since(began)

	c.logger.Debug("crawl finished",
		"url", start,
		"visited", len(result.URLs),
		"failures", len(result.Failures),
		"elapsed", result.Elapsed,
	)

	return result, crawlErr
}

func (c *Crawler) collect(result *Result, task *Task) {
	var fetchErr *FetchError
	if errors.As(task.Err(), &fetchErr) {
		result.Failures = append(result.Failures, fetchErr)
	}
}

// Crawl discovers every address reachable from start that shares its host
// key, fetching each at most once with at most concurrency fetches in flight
// (zero or less means DefaultConcurrency). It returns nil and an error
// wrapping ErrMalformedAddress when start has no host key.
func Crawl(ctx context.Context, start string, port FetchPort, concurrency int) ([]string, error) {
	result, err := New(WithConcurrency(concurrency)).Crawl(ctx, start, port)
	if result == nil {
		return nil, err
	}
	return result.URLs, err
}
