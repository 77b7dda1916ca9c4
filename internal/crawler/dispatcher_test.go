package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("non-positive limit falls back to default", func(t *testing.T) {
		t.Parallel()

		for _, limit := range []int{0, -3} {
			if got := NewDispatcher(limit).Limit(); got != DefaultConcurrency {
				t.Errorf("NewDispatcher(%d).Limit() = %d, want %d", limit, got, DefaultConcurrency)
			}
		}
	})

	t.Run("await returns links", func(t *testing.T) {
		t.Parallel()

		d := NewDispatcher(2)
		port := FetchFunc(func(_ context.Context, address string) ([]string, error) {
			return []string{address + "/child"}, nil
		})

		task, err := d.Submit(context.Background(), "http://example.com", port)
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
		links := task.Await()
		if len(links) != 1 || links[0] != "http://example.com/child" {
			t.Errorf("unexpected links: %v", links)
		}
		if task.Err() != nil {
			t.Errorf("unexpected task error: %v", task.Err())
		}
		if task.Address() != "http://example.com" {
			t.Errorf("unexpected address: %q", task.Address())
		}
	})

	t.Run("fetch error becomes FetchError", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		d := NewDispatcher(1)
		port := FetchFunc(func(context.Context, string) ([]string, error) {
			return []string{"http://example.com/ignored"}, cause
		})

		task, err := d.Submit(context.Background(), "http://example.com", port)
		if err != nil {
			t.Fatal(err)
		}
		if links := task.Await(); links != nil {
			t.Errorf("failed task should yield no links, got %v", links)
		}

		var fetchErr *FetchError
		if !errors.As(task.Err(), &fetchErr) {
			t.Fatalf("expected *FetchError, got %T", task.Err())
		}
		if fetchErr.Address != "http://example.com" || !errors.Is(fetchErr, cause) {
			t.Errorf("unexpected fetch error: %v", fetchErr)
		}
		if stats := d.Stats(); stats.Failed != 1 || stats.Completed != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("panic becomes FetchError", func(t *testing.T) {
		t.Parallel()

		d := NewDispatcher(1)
		port := FetchFunc(func(context.Context, string) ([]string, error) {
			panic("boom")
		})

		task, err := d.Submit(context.Background(), "http://example.com", port)
		if err != nil {
			t.Fatal(err)
		}
		if links := task.Await(); links != nil {
			t.Errorf("panicked task should yield no links, got %v", links)
		}
		if !errors.Is(task.Err(), ErrFetchPanic) {
			t.Errorf("expected ErrFetchPanic, got %v", task.Err())
		}

		// The slot must have been released.
		ok := FetchFunc(func(context.Context, string) ([]string, error) { return nil, nil })
		next, err := d.Submit(context.Background(), "http://example.com/next", ok)
		if err != nil {
			t.Fatal(err)
		}
		next.Await()
	})

	t.Run("nil port is rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDispatcher(1).Submit(context.Background(), "http://example.com", nil); !errors.Is(err, ErrNilFetchPort) {
			t.Errorf("expected ErrNilFetchPort, got %v", err)
		}
	})

	t.Run("submit honours cancellation while saturated", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		d := NewDispatcher(1)
		blocking := FetchFunc(func(context.Context, string) ([]string, error) {
			<-release
			return nil, nil
		})

		first, err := d.Submit(context.Background(), "http://example.com/1", blocking)
		if err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := d.Submit(ctx, "http://example.com/2", blocking); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}

		close(release)
		first.Await()
	})
}

func TestDispatcherConcurrencyBound(t *testing.T) {
	t.Parallel()

	const (
		limit = 3
		tasks = 12
	)

	var (
		current, peak atomic.Int32
		saturated     = make(chan struct{})
		once          sync.Once
	)
	port := FetchFunc(func(ctx context.Context, _ string) ([]string, error) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == limit {
			once.Do(func() { close(saturated) })
		}
		select {
		case <-saturated:
		case <-ctx.Done():
		}
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := NewDispatcher(limit)
	submitted := make([]*Task, 0, tasks)
	for range tasks {
		task, err := d.Submit(ctx, "http://example.com", port)
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
		submitted = append(submitted, task)
	}
	for _, task := range submitted {
		task.Await()
	}

	if got := peak.Load(); got != limit {
		t.Errorf("peak concurrent fetches = %d, want %d", got, limit)
	}
	if got := d.Stats().PeakInFlight; got > limit {
		t.Errorf("dispatcher reported peak %d above limit %d", got, limit)
	}
	if got := d.Stats().Completed; got != tasks {
		t.Errorf("completed = %d, want %d", got, tasks)
	}
}
