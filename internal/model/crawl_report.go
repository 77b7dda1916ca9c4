package model

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/hostcrawl/internal/crawler"
)

// Crawl statuses reported by CrawlReport.Status.
const (
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// CrawlReport is the result of crawling one start URL, in the form written
// to reports and stored in the history database.
//
// Design decision: We keep the report flat and JSON-tagged so that the same
// struct serves the JSON writer, the Markdown writer and the database layer.
type CrawlReport struct {
	// ID uniquely identifies the run (UUID v4).
	ID string `json:"id"`

	// StartURL is the start address as given by the user.
	StartURL string `json:"start_url"`

	// HostKey is the scope of the crawl. Empty if the start URL was malformed.
	HostKey string `json:"host_key,omitempty"`

	// URLs holds every accepted address in acceptance order.
	URLs []string `json:"urls"`

	// Failures holds the addresses whose fetch failed. They are also in URLs.
	Failures []FetchFailure `json:"failures,omitempty"`

	// Concurrency is the fetch limit the crawl ran with.
	Concurrency int `json:"concurrency"`

	// MaxPages is the page cap the crawl ran with. 0 means unlimited.
	MaxPages int `json:"max_pages,omitempty"`

	// PeakInFlight is the highest number of concurrent fetches observed.
	PeakInFlight int `json:"peak_in_flight"`

	// StartedAt is when the crawl started (UTC).
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the wall time of the crawl.
	Elapsed time.Duration `json:"elapsed"`

	// Cancelled is true when the crawl was interrupted and URLs is partial.
	Cancelled bool `json:"cancelled"`

	// Error is the fatal error that ended the crawl, if any.
	Error string `json:"error,omitempty"`

	// Steps lists the pipeline steps that ran, in order.
	Steps []string `json:"steps,omitempty"`
}

// FetchFailure describes one failed fetch.
type FetchFailure struct {
	// URL is the address whose fetch failed.
	URL string `json:"url"`

	// StatusCode is the HTTP status when the server answered with an error.
	StatusCode int `json:"status_code,omitempty"`

	// Message is the error text.
	Message string `json:"message"`
}

// NewCrawlReport creates an empty report for startURL with a fresh ID.
func NewCrawlReport(startURL string) *CrawlReport {
	return &CrawlReport{
		ID:        uuid.NewString(),
		StartURL:  startURL,
		URLs:      make([]string, 0),
		StartedAt: time.Now().UTC(),
	}
}

// ApplyResult copies a crawl result into the report. err is the error the
// crawl returned; a context error marks the report as cancelled, anything
// else is recorded in Error. result may be nil when the crawl never started.
func (r *CrawlReport) ApplyResult(result *crawler.Result, err error) {
	if result != nil {
		r.HostKey = result.HostKey
		r.URLs = slices.Clone(result.URLs)
		r.PeakInFlight = result.PeakInFlight
		r.Elapsed = result.Elapsed
		r.Failures = make([]FetchFailure, 0, len(result.Failures))
		for _, f := range result.Failures {
			r.Failures = append(r.Failures, newFetchFailure(f))
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Cancelled = true
	default:
		r.Error = err.Error()
	}
}

func newFetchFailure(f *crawler.FetchError) FetchFailure {
	failure := FetchFailure{
		URL:     f.Address,
		Message: f.Err.Error(),
	}
	var statusErr *crawler.StatusError
	if errors.As(f, &statusErr) {
		failure.StatusCode = statusErr.StatusCode
	}
	return failure
}

// Status returns StatusFailed, StatusCancelled or StatusComplete.
func (r *CrawlReport) Status() string {
	switch {
	case r.Error != "":
		return StatusFailed
	case r.Cancelled:
		return StatusCancelled
	default:
		return StatusComplete
	}
}

// SortedURLs returns the accepted addresses in lexical order.
func (r *CrawlReport) SortedURLs() []string {
	out := slices.Clone(r.URLs)
	slices.Sort(out)
	return out
}

// FailureCount returns the number of failed fetches.
func (r *CrawlReport) FailureCount() int {
	return len(r.Failures)
}

// SuccessCount returns the number of accepted addresses whose fetch did not
// fail. Addresses accepted but never fetched (cancelled runs) count as
// successes.
func (r *CrawlReport) SuccessCount() int {
	if n := len(r.URLs) - len(r.Failures); n > 0 {
		return n
	}
	return 0
}

// CrawlSummary is the stored summary of one crawl, used to list history
// without loading full reports.
type CrawlSummary struct {
	ID           string        `json:"id"`
	HostKey      string        `json:"host_key"`
	StartURL     string        `json:"start_url"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	URLCount     int           `json:"url_count"`
	FailureCount int           `json:"failure_count"`
	Status       string        `json:"status"`
}

// Summary returns the summary of r.
func (r *CrawlReport) Summary() CrawlSummary {
	return CrawlSummary{
		ID:           r.ID,
		HostKey:      r.HostKey,
		StartURL:     r.StartURL,
		StartedAt:    r.StartedAt,
		Elapsed:      r.Elapsed,
		URLCount:     len(r.URLs),
		FailureCount: r.FailureCount(),
		Status:       r.Status(),
	}
}
