package main

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestProgressObserver(t *testing.T) {
	t.Parallel()

	p := newProgressObserver(io.Discard)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Accepted("http://example.com/")
			p.FetchStarted("http://example.com/")
			var err error
			if i%4 == 0 {
				err = errors.New("boom")
			}
			p.FetchFinished("http://example.com/", 1, err, time.Millisecond)
		}()
	}
	wg.Wait()
	p.Finish()

	if got := p.accepted.Load(); got != 20 {
		t.Errorf("expected 20 accepted, got %d", got)
	}
	if got := p.finished.Load(); got != 20 {
		t.Errorf("expected 20 finished, got %d", got)
	}
	if got := p.failed.Load(); got != 5 {
		t.Errorf("expected 5 failed, got %d", got)
	}
}
