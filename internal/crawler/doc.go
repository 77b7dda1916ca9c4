// Package crawler provides a concurrent, host-scoped link crawler.
//
// # Architecture
//
// A crawl starts from one seed address and discovers every address reachable
// from it that shares the seed's host key. The work is split into a few small
// components:
//
//   - HostKey: maps an address to the comparable scope key (its authority)
//   - Frontier: pending addresses plus the visited set, with the atomic
//     check-and-insert that guarantees each address is dispatched at most once
//   - FetchPort: the caller-supplied capability that returns the links of one
//     address (HTTPFetcher is the bundled net/http implementation)
//   - Dispatcher: runs at most K FetchPort calls at a time and hands each
//     result back through a Task
//   - Crawler: the coordinator that drains the frontier, dispatches accepted
//     addresses, merges results and detects termination
//
// # Termination
//
// New work only ever arrives through a completed Task. When the frontier is
// empty the coordinator blocks on the oldest outstanding Task instead of
// spinning; the crawl is complete exactly when the frontier is empty and no
// Task is outstanding.
//
// # Usage
//
//	urls, err := crawler.Crawl(ctx, "http://example.com", fetcher, 4)
//
// or, with options:
//
//	c := crawler.New(crawler.WithConcurrency(8), crawler.WithLogger(logger))
//	result, err := c.Crawl(ctx, "http://example.com", crawler.NewHTTPFetcher(client))
//
// Fetch failures never abort a crawl: the failing address stays in the result
// and contributes no links. Only a malformed start address is fatal.
package crawler
