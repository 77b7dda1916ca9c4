package crawler

import (
	"context"
	"time"
)

// FetchPort returns the addresses linked from one address. It is the only
// source of new work in a crawl and may block for an arbitrary time.
//
// GetLinks is never called twice for the same address within one crawl, but
// it is called concurrently for different addresses, so implementations must
// be safe for concurrent use. A returned error is non-fatal to the crawl.
type FetchPort interface {
	GetLinks(ctx context.Context, address string) ([]string, error)
}

// FetchFunc adapts an ordinary function to the FetchPort interface.
type FetchFunc func(ctx context.Context, address string) ([]string, error)

// GetLinks calls f(ctx, address).
func (f FetchFunc) GetLinks(ctx context.Context, address string) ([]string, error) {
	return f(ctx, address)
}

// Observer receives crawl events. Methods are called from the coordinator
// and from fetch goroutines, so implementations must be safe for concurrent
// use and should return quickly.
type Observer interface {
	// Accepted is called once for every address admitted to the result set.
	Accepted(address string)

	// FetchStarted is called when a fetch begins running.
	FetchStarted(address string)

	// FetchFinished is called when a fetch returns. err is nil on success.
	FetchFinished(address string, discovered int, err error, elapsed time.Duration)
}

// NopObserver ignores every event.
type NopObserver struct{}

// Accepted implements Observer.
func (NopObserver) Accepted(string) {}

// FetchStarted implements Observer.
func (NopObserver) FetchStarted(string) {}

// FetchFinished implements Observer.
func (NopObserver) FetchFinished(string, int, error, time.Duration) {}

// MultiObserver forwards every event to each of its observers in order.
type MultiObserver []Observer

// Accepted implements Observer.
func (m MultiObserver) Accepted(address string) {
	for _, o := range m {
		o.Accepted(address)
	}
}

// FetchStarted implements Observer.
func (m MultiObserver) FetchStarted(address string) {
	for _, o := range m {
		o.FetchStarted(address)
	}
}

// FetchFinished implements Observer.
func (m MultiObserver) FetchFinished(address string, discovered int, err error, elapsed time.Duration) {
	for _, o := range m {
		o.FetchFinished(address, discovered, err, elapsed)
	}
}
