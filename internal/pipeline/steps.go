package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/hostcrawl/internal/config"
	"github.com/nao1215/hostcrawl/internal/crawler"
	"github.com/nao1215/hostcrawl/internal/database"
	"github.com/nao1215/hostcrawl/internal/model"
	"github.com/nao1215/hostcrawl/internal/transport"
)

// CrawlStep crawls the report's start URL and fills the report with the
// result.
type CrawlStep struct {
	// client is used for every fetch. Proxy, cookie and headers are set up
	// by whoever built it.
	client *http.Client

	concurrency int
	maxPages    int
	userAgent   string
	maxBodySize int64
	compression bool

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	followPatterns []string

	observer crawler.Observer
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlConcurrency sets the maximum number of concurrent fetches.
func WithCrawlConcurrency(n int) CrawlStepOption {
	return func(s *CrawlStep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithCrawlMaxPages sets the maximum pages to crawl. 0 means unlimited.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// WithCrawlIgnorePatterns sets URL path patterns to skip during crawling.
func WithCrawlIgnorePatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.ignorePatterns = patterns
	}
}

// WithCrawlFollowPatterns sets URL path patterns to follow during crawling.
func WithCrawlFollowPatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.followPatterns = patterns
	}
}

// WithCrawlUserAgent sets the User-Agent header for HTTP requests.
func WithCrawlUserAgent(userAgent string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.userAgent = userAgent
	}
}

// WithCrawlMaxBodySize sets the maximum response body size in bytes.
func WithCrawlMaxBodySize(maxBodySize int64) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxBodySize = maxBodySize
	}
}

// WithCrawlCompression enables brotli and gzip content negotiation.
func WithCrawlCompression(enabled bool) CrawlStepOption {
	return func(s *CrawlStep) {
		s.compression = enabled
	}
}

// WithCrawlObserver receives acceptance and fetch events of the crawl.
func WithCrawlObserver(observer crawler.Observer) CrawlStepOption {
	return func(s *CrawlStep) {
		s.observer = observer
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(client *http.Client, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		client:      client,
		concurrency: config.DefaultConcurrency,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		compression: true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
//
// An interrupted crawl is not an error here: the partial result is stored
// and the report is marked cancelled. A start URL without a host key is.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	filter, err := crawler.NewPathFilter(s.ignorePatterns, s.followPatterns)
	if err != nil {
		return fmt.Errorf("invalid path patterns: %w", err)
	}

	crawlerOpts := []crawler.Option{
		crawler.WithConcurrency(s.concurrency),
		crawler.WithMaxPages(s.maxPages),
		crawler.WithLogger(s.logger),
		crawler.WithObserver(s.observer),
	}
	if filter != nil {
		crawlerOpts = append(crawlerOpts, crawler.WithAcceptFilter(filter))
	}

	fetcher := crawler.NewHTTPFetcher(s.client,
		crawler.WithUserAgent(s.userAgent),
		crawler.WithMaxBodySize(s.maxBodySize),
		crawler.WithCompression(s.compression),
	)

	report.Concurrency = s.concurrency
	report.MaxPages = s.maxPages

	start := crawler.NormalizeAddress(report.StartURL)
	result, err := crawler.New(crawlerOpts...).Crawl(ctx, start, fetcher)
	report.ApplyResult(result, err)

	if err != nil && !report.Cancelled {
		return err
	}

	s.logger.Info("crawl completed",
		"url", start,
		"urls", len(report.URLs),
		"failures", report.FailureCount(),
		"cancelled", report.Cancelled,
		"elapsed", report.Elapsed,
	)
	return nil
}

// ReportStore persists crawl reports. *database.CrawlDB implements it.
type ReportStore interface {
	SaveCrawlReport(ctx context.Context, report *model.CrawlReport) error
}

var _ ReportStore = (*database.CrawlDB)(nil)

// SaveStep stores the report in the crawl history.
type SaveStep struct {
	store  ReportStore
	logger *slog.Logger
}

// NewSaveStep creates a step that saves reports to store.
func NewSaveStep(store ReportStore, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do saves the report. Reports without a host key are not stored: the start
// URL was malformed and nothing was crawled.
func (s *SaveStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if report.HostKey == "" {
		s.logger.Debug("skipping save, no host key", "url", report.StartURL)
		return nil
	}
	if err := s.store.SaveCrawlReport(ctx, report); err != nil {
		return fmt.Errorf("failed to save crawl report: %w", err)
	}
	s.logger.Debug("crawl report saved", "id", report.ID, "host", report.HostKey)
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Concurrency is the global fetch limit. Site settings override it.
	Concurrency int

	// MaxPages is the global page cap. Site settings override it.
	MaxPages int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// Compression enables brotli and gzip content negotiation.
	Compression bool

	// Sites holds the per-host settings from the configuration file.
	Sites *config.File

	// Observer receives crawl events. Nil means none.
	Observer crawler.Observer

	// Store receives finished reports. Nil disables saving.
	Store ReportStore
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineConcurrency sets the global fetch limit.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineMaxPages sets the global page cap.
func WithPipelineMaxPages(maxPages int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxPages = maxPages
	}
}

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineMaxBodySize sets the maximum response body size in bytes.
func WithPipelineMaxBodySize(maxBodySize int64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxBodySize = maxBodySize
	}
}

// WithPipelineCompression enables or disables compressed transfers.
func WithPipelineCompression(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Compression = enabled
	}
}

// WithPipelineSites sets the per-host settings.
func WithPipelineSites(sites *config.File) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Sites = sites
	}
}

// WithPipelineObserver sets the observer of crawl events.
func WithPipelineObserver(observer crawler.Observer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Observer = observer
	}
}

// WithPipelineStore sets where finished reports are saved.
func WithPipelineStore(store ReportStore) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Store = store
	}
}

// DefaultPipeline creates the pipeline for one target: a crawl step set up
// with the target's site settings, and a deferred save step when a store is
// configured.
//
// Site settings are looked up by the target's host key. A target without a
// host key gets the defaults and fails in the crawl step.
func DefaultPipeline(client *transport.Client, target string, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	cfg := &DefaultPipelineConfig{
		Concurrency: config.DefaultConcurrency,
		MaxPages:    config.DefaultMaxPages,
		UserAgent:   config.DefaultUserAgent,
		MaxBodySize: config.DefaultMaxBodySize,
		Compression: true,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	hostKey, _ := crawler.HostKey(crawler.NormalizeAddress(target)) //nolint:errcheck // reported by the crawl step
	site := cfg.Sites.GetSiteConfig(hostKey)

	concurrency := cfg.Concurrency
	if site.Concurrency > 0 {
		concurrency = site.Concurrency
	}
	maxPages := cfg.MaxPages
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
	}

	p := New(pipelineOpts...)

	crawlOpts := []CrawlStepOption{
		WithCrawlConcurrency(concurrency),
		WithCrawlMaxPages(maxPages),
		WithCrawlUserAgent(cfg.UserAgent),
		WithCrawlMaxBodySize(cfg.MaxBodySize),
		WithCrawlCompression(cfg.Compression),
		WithCrawlIgnorePatterns(site.IgnorePatterns),
		WithCrawlFollowPatterns(site.FollowPatterns),
		WithCrawlLogger(p.logger),
	}
	if cfg.Observer != nil {
		crawlOpts = append(crawlOpts, WithCrawlObserver(cfg.Observer))
	}

	p.AddStep(NewCrawlStep(client.HTTPClientWithConfig(site.Cookie, site.Headers), crawlOpts...))
	if cfg.Store != nil {
		p.AddDeferredStep(NewSaveStep(cfg.Store, p.logger))
	}
	return p
}
