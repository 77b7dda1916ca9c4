package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/hostcrawl/internal/crawler"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c := NewCollector()

	c.Accepted("http://example.com/")
	c.Accepted("http://example.com/a")
	c.Accepted("http://example.com/b")

	c.FetchStarted("http://example.com/")
	c.FetchStarted("http://example.com/a")
	c.FetchStarted("http://example.com/b")
	if got := testutil.ToFloat64(c.inFlight); got != 3 {
		t.Errorf("in flight = %v, want 3", got)
	}

	c.FetchFinished("http://example.com/", 5, nil, 20*time.Millisecond)
	c.FetchFinished("http://example.com/a", 0,
		&crawler.FetchError{Address: "http://example.com/a", Err: &crawler.StatusError{Address: "http://example.com/a", StatusCode: 500}},
		10*time.Millisecond)
	c.FetchFinished("http://example.com/b", 0, errors.New("connection reset"), time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "accepted", got: testutil.ToFloat64(c.accepted), want: 3},
		{name: "ok", got: testutil.ToFloat64(c.fetches.WithLabelValues(ResultOK)), want: 1},
		{name: "http_error", got: testutil.ToFloat64(c.fetches.WithLabelValues(ResultHTTPError)), want: 1},
		{name: "error", got: testutil.ToFloat64(c.fetches.WithLabelValues(ResultError)), want: 1},
		{name: "in flight", got: testutil.ToFloat64(c.inFlight), want: 0},
		{name: "links", got: testutil.ToFloat64(c.links), want: 5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Errorf("expected one histogram, got %d", n)
	}
}

func TestCollectorConcurrentUse(t *testing.T) {
	t.Parallel()

	c := NewCollector()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Accepted("http://example.com/")
			c.FetchStarted("http://example.com/")
			c.FetchFinished("http://example.com/", 1, nil, time.Millisecond)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(c.fetches.WithLabelValues(ResultOK)); got != 50 {
		t.Errorf("ok fetches = %v, want 50", got)
	}
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestCollectorWithCrawler(t *testing.T) {
	t.Parallel()

	links := map[string][]string{
		"http://example.com/":  {"http://example.com/a", "http://other.example/"},
		"http://example.com/a": {"http://example.com/"},
	}
	port := crawler.FetchFunc(func(_ context.Context, address string) ([]string, error) {
		return links[address], nil
	})

	c := NewCollector()
	urls, err := crawler.New(crawler.WithObserver(c)).Crawl(context.Background(), "http://example.com/", port)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls.URLs) != 2 {
		t.Fatalf("unexpected crawl result: %v", urls.URLs)
	}
	if got := testutil.ToFloat64(c.accepted); got != 2 {
		t.Errorf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.fetches.WithLabelValues(ResultOK)); got != 2 {
		t.Errorf("ok fetches = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.Accepted("http://example.com/")
	c.FetchStarted("http://example.com/")
	c.FetchFinished("http://example.com/", 0, nil, time.Millisecond)

	server := httptest.NewServer(NewServer("", c).Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"hostcrawl_addresses_accepted_total 1",
		`hostcrawl_fetches_total{result="ok"} 1`,
		"hostcrawl_fetches_in_flight 0",
		"hostcrawl_fetch_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
