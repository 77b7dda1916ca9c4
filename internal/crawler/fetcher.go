package crawler

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "hostcrawl/1.0 (+https://github.com/nao1215/hostcrawl)"

	// DefaultMaxBodySize is the default cap on bytes read per page (5 MiB).
	DefaultMaxBodySize int64 = 5 * 1024 * 1024
)

// HTTPFetcher is a FetchPort that GETs a page over HTTP and extracts its
// links. It performs no scope filtering; acceptance happens in the Frontier.
//
// An HTTPFetcher is safe for concurrent use if its *http.Client is.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	compression bool
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize caps the number of decoded bytes read from one page.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithCompression makes the fetcher request brotli or gzip encoded bodies
// and decode them itself.
func WithCompression(enabled bool) FetcherOption {
	return func(f *HTTPFetcher) {
		f.compression = enabled
	}
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client means http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetLinks implements FetchPort.
func (f *HTTPFetcher) GetLinks(ctx context.Context, address string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if f.compression {
		// Setting Accept-Encoding disables the transport's transparent gzip.
		req.Header.Set("Accept-Encoding", "br, gzip")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Address: address, StatusCode: resp.StatusCode}
	}

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return nil, nil
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	pageURL := address
	if resp.Request != nil && resp.Request.URL != nil {
		// Follow redirects: relative links resolve against the final URL.
		pageURL = resp.Request.URL.String()
	}

	parser, err := NewParser(pageURL)
	if err != nil {
		return nil, err
	}
	result, err := parser.Parse(io.LimitReader(body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", address, err)
	}
	return result.Links, nil
}

// decodeBody wraps the response body with a decoder for its Content-Encoding.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return reader, nil
	default:
		return resp.Body, nil
	}
}
