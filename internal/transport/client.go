package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// checkProxyTimeout bounds the SOCKS5 handshake probe.
	checkProxyTimeout = 2 * time.Second

	// maxRedirects is the number of redirects followed per request.
	maxRedirects = 10
)

// Client creates HTTP clients that dial either directly or through a SOCKS5
// proxy.
type Client struct {
	// proxyAddress is empty for a direct client.
	proxyAddress string

	dialer  proxy.Dialer
	timeout time.Duration

	// insecureTLS disables certificate verification. .onion services
	// commonly use self-signed certificates.
	insecureTLS bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithInsecureTLS disables TLS certificate verification.
func WithInsecureTLS(insecure bool) ClientOption {
	return func(c *Client) {
		c.insecureTLS = insecure
	}
}

// NewDirectClient creates a Client without a proxy.
func NewDirectClient(timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		dialer:  proxy.Direct,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSOCKS5Client creates a Client that routes every connection through the
// SOCKS5 proxy at proxyAddress ("host:port").
func NewSOCKS5Client(proxyAddress string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	c := &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// isValidProxyAddress checks for host:port with a non-empty host and a port
// in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the SOCKS5 proxy address, or "" for a direct client.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// IsProxied reports whether connections go through a SOCKS5 proxy.
func (c *Client) IsProxied() bool {
	return c.proxyAddress != ""
}

// SOCKS5 protocol constants used by CheckConnection.
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// CheckConnection verifies that the proxy speaks SOCKS5 without
// authentication by performing the method negotiation handshake.
// A direct client always reports ProxyStatusOK.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	if !c.IsProxied() {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// DialContext dials address through the client's dialer.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close() //nolint:errcheck // abandoned dial
			}
		}()
		return nil, ctx.Err()
	}
}

// HTTPClient returns a new *http.Client using this Client's dialer.
//
// Compression is disabled at the transport level; the crawler negotiates
// and decodes brotli and gzip itself.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}
	if c.insecureTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in, used for .onion services
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// HTTPClientWithConfig returns an HTTP client that adds cookie and headers
// to every request. This is how per-site settings from the configuration
// file reach the crawler.
func (c *Client) HTTPClientWithConfig(cookie string, headers map[string]string) *http.Client {
	client := c.HTTPClient()
	if cookie == "" && len(headers) == 0 {
		return client
	}

	client.Transport = &headerInjectingTransport{
		base:    client.Transport,
		cookie:  cookie,
		headers: headers,
	}
	return client
}

// headerInjectingTransport adds a fixed cookie and headers to each request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
