// Package transport builds the HTTP clients hostcrawl fetches pages with.
//
// A Client is either direct or routed through a SOCKS5 proxy
// (golang.org/x/net/proxy). EmbeddedTor starts a private Tor daemon with
// tornago and yields a SOCKS5 Client for it, so .onion hosts can be crawled
// without an external Tor installation. Per-site cookies and headers from
// the configuration file are injected by HTTPClientWithConfig.
//
// Clients are created once per run and handed to the crawler; the package
// keeps no global state.
package transport
