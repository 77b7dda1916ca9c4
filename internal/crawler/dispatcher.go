package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the worker limit used when none (or a non-positive
// one) is given.
const DefaultConcurrency = 4

// Dispatcher runs Fetch Port calls with at most Limit() of them in flight.
// Submit blocks while the limit is reached and is released as soon as any
// running task finishes.
type Dispatcher struct {
	sem      *semaphore.Weighted
	limit    int
	logger   *slog.Logger
	observer Observer

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
	peak      atomic.Int64
}

// DispatcherStats is a snapshot of Dispatcher counters.
type DispatcherStats struct {
	Submitted    int64
	Completed    int64
	Failed       int64
	InFlight     int64
	PeakInFlight int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for fetch failures.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherObserver sets the observer notified around each fetch.
func WithDispatcherObserver(observer Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// NewDispatcher creates a Dispatcher that allows limit concurrent fetches.
// A limit of zero or less falls back to DefaultConcurrency.
func NewDispatcher(limit int, opts ...DispatcherOption) *Dispatcher {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	d := &Dispatcher{
		sem:      semaphore.NewWeighted(int64(limit)),
		limit:    limit,
		logger:   slog.Default(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Limit returns the maximum number of concurrent fetches.
func (d *Dispatcher) Limit() int {
	return d.limit
}

// Submit schedules port.GetLinks(ctx, address) and returns a Task for its
// result. It blocks while Limit() fetches are already running and returns
// ctx.Err() if ctx is cancelled before a slot frees up.
func (d *Dispatcher) Submit(ctx context.Context, address string, port FetchPort) (*Task, error) {
	if port == nil {
		return nil, ErrNilFetchPort
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	d.submitted.Add(1)
	task := &Task{
		address: address,
		done:    make(chan struct{}),
	}
	go d.run(ctx, task, port)
	return task, nil
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Submitted:    d.submitted.Load(),
		Completed:    d.completed.Load(),
		Failed:       d.failed.Load(),
		InFlight:     d.inFlight.Load(),
		PeakInFlight: d.peak.Load(),
	}
}

func (d *Dispatcher) run(ctx context.Context, task *Task, port FetchPort) {
	defer d.sem.Release(1)

	d.trackPeak(d.inFlight.Add(1))
	d.observer.FetchStarted(task.address)
	start := time.Now()

	links, err := d.fetch(ctx, task.address, port)

	d.inFlight.Add(-1)
	d.completed.Add(1)
	if err != nil {
		d.failed.Add(1)
		d.logger.Debug("fetch failed", "url", task.address, "error", err)
	}
	d.observer.FetchFinished(task.address, len(links), err, time.Since(start))

	task.links = links
	task.err = err
	close(task.done)
}

// fetch calls the port and converts errors and panics into *FetchError.
func (d *Dispatcher) fetch(ctx context.Context, address string, port FetchPort) (links []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			links = nil
			err = &FetchError{
				Address: address,
				Err:     fmt.Errorf("%w: %v", ErrFetchPanic, r),
			}
		}
	}()

	links, err = port.GetLinks(ctx, address)
	if err != nil {
		return nil, &FetchError{Address: address, Err: err}
	}
	return links, nil
}

func (d *Dispatcher) trackPeak(current int64) {
	for {
		peak := d.peak.Load()
		if current <= peak || d.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}

// Task is one in-flight fetch. Its result is available once Done is closed.
type Task struct {
	address string
	done    chan struct{}

	// links and err are written once before done is closed.
	links []string
	err   error
}

// Address returns the address being fetched.
func (t *Task) Address() string {
	return t.address
}

// Done returns a channel that is closed when the fetch has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the fetch has finished and returns the discovered
// links. A failed fetch yields nil; see Err for the cause.
func (t *Task) Await() []string {
	<-t.done
	if t.err != nil {
		return nil
	}
	return t.links
}

// Err blocks until the fetch has finished and returns its error, if any.
// A non-nil error is always a *FetchError.
func (t *Task) Err() error {
	<-t.done
	return t.err
}
