// Package metrics exposes crawl activity as Prometheus metrics.
//
// Collector implements crawler.Observer, so it is attached to a crawl like
// any other observer and counts accepted addresses and fetch outcomes.
// Handler serves the collected metrics in the Prometheus text format; the
// crawl command mounts it on --metrics-addr.
package metrics
