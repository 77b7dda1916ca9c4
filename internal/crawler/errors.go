package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedAddress is returned when an address has no recognizable
	// scheme and authority. A malformed start address aborts the crawl before
	// any fetch is dispatched.
	ErrMalformedAddress = errors.New("malformed address")

	// ErrNilFetchPort is returned when Crawl is called without a FetchPort.
	ErrNilFetchPort = errors.New("fetch port must not be nil")

	// ErrFetchPanic is wrapped by a FetchError when the FetchPort panicked.
	ErrFetchPanic = errors.New("fetch port panicked")
)

// FetchError records a failed FetchPort invocation for one address.
// It is non-fatal: the address remains in the result set and is treated as
// having no outgoing links.
type FetchError struct {
	// Address is the address whose fetch failed.
	Address string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTPFetcher when the server answers with a
// client or server error status.
type StatusError struct {
	// Address is the requested address.
	Address string

	// StatusCode is the HTTP status code received.
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.Address)
}
