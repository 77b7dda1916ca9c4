package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/hostcrawl/internal/crawler"
)

// Namespace prefixes every metric name.
const Namespace = "hostcrawl"

// Values of the result label of the fetches counter.
const (
	ResultOK        = "ok"
	ResultHTTPError = "http_error"
	ResultError     = "error"
)

// Collector records crawl events as Prometheus metrics. It is safe for
// concurrent use, as the crawler requires of observers.
type Collector struct {
	registry *prometheus.Registry

	accepted prometheus.Counter
	fetches  *prometheus.CounterVec
	inFlight prometheus.Gauge
	duration prometheus.Histogram
	links    prometheus.Counter
}

var _ crawler.Observer = (*Collector)(nil)

// NewCollector creates a Collector with its own registry. Go runtime and
// process metrics are registered alongside the crawl metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "addresses_accepted_total",
			Help:      "Addresses accepted into a crawl.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Finished fetches by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fetches_in_flight",
			Help:      "Fetches currently running.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		links: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_discovered_total",
			Help:      "Links returned by successful fetches, before scope filtering.",
		}),
	}

	c.registry.MustRegister(
		c.accepted,
		c.fetches,
		c.inFlight,
		c.duration,
		c.links,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Accepted implements crawler.Observer.
func (c *Collector) Accepted(string) {
	c.accepted.Inc()
}

// FetchStarted implements crawler.Observer.
func (c *Collector) FetchStarted(string) {
	c.inFlight.Inc()
}

// FetchFinished implements crawler.Observer.
func (c *Collector) FetchFinished(_ string, discovered int, err error, elapsed time.Duration) {
	c.inFlight.Dec()
	c.duration.Observe(elapsed.Seconds())
	c.fetches.WithLabelValues(resultOf(err)).Inc()
	if err == nil {
		c.links.Add(float64(discovered))
	}
}

// resultOf maps a fetch error to a result label value.
func resultOf(err error) string {
	if err == nil {
		return ResultOK
	}
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		return ResultHTTPError
	}
	return ResultError
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing the collector on /metrics at
// addr. The caller starts and shuts it down.
func NewServer(addr string, c *Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
