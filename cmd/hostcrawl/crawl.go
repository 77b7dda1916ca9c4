package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/hostcrawl/internal/config"
	"github.com/nao1215/hostcrawl/internal/crawler"
	"github.com/nao1215/hostcrawl/internal/database"
	"github.com/nao1215/hostcrawl/internal/log"
	"github.com/nao1215/hostcrawl/internal/metrics"
	"github.com/nao1215/hostcrawl/internal/model"
	"github.com/nao1215/hostcrawl/internal/pipeline"
	"github.com/nao1215/hostcrawl/internal/report"
	"github.com/nao1215/hostcrawl/internal/transport"
)

// metricsShutdownTimeout bounds the graceful shutdown of the metrics server.
const metricsShutdownTimeout = 5 * time.Second

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Discover every page reachable from a start URL on the same host",
		Long: `Crawl fetches the start URL, extracts its links and keeps following links
that stay on the start URL's host until no new address is found.

Each address is fetched at most once and no more than --concurrency fetches
run at the same time. Links to other hosts are never followed. A failed fetch
is recorded in the report and does not stop the crawl.

Examples:
  # Crawl a site with the default concurrency of 4
  hostcrawl crawl https://example.com/

  # Crawl with 8 concurrent fetches and stop after 500 pages
  hostcrawl crawl -c 8 -p 500 https://example.com/

  # Crawl several sites, two at a time
  hostcrawl crawl -b 2 https://example.com/ https://example.org/

  # Crawl an onion service through an external Tor proxy
  hostcrawl crawl -x 127.0.0.1:9050 http://<56 characters>.onion/

  # Write a JSON report to a file and expose Prometheus metrics while crawling
  hostcrawl crawl -j -o report.json --metrics-addr :9090 https://example.com/

  # Save a Markdown report and still read the text report in the terminal
  hostcrawl crawl -m -o report.md --tee https://example.com/

Configuration file (.hostcrawl) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      concurrency: 8
      ignorePatterns:
        - "/logout"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Maximum number of concurrent fetches per crawl")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl per host (0 = unlimited)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of bytes read from one page")

	// Batch crawling flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of targets crawled at the same time")

	// Transport flags
	cmd.Flags().StringP("proxy", "x", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and crawl through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .hostcrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().Bool("urls-only", false,
		"Print only the discovered URLs, one per line")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("tee", false,
		"With --output, also print the text report to stdout")

	// History flags
	cmd.Flags().Bool("no-save", false,
		"Do not store the crawl in the history database")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	// Observability flags
	cmd.Flags().Bool("progress", false,
		"Show a progress bar on stderr while crawling")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address while crawling (e.g., :9090)")
	cmd.Flags().Bool("log-json", false,
		"Write logs to stderr as JSON")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if cfg.LogJSON {
		logger = log.NewSecureJSONLogger(cmd.ErrOrStderr(), cfg.Verbose)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	cfg.Concurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.UseTor, err = cmd.Flags().GetBool("tor")
	if err != nil {
		return nil, err
	}

	cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit --config path must exist. Without one, a missing file
	// means no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.URLsOnly, err = cmd.Flags().GetBool("urls-only")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.TeeReport, err = cmd.Flags().GetBool("tee")
	if err != nil {
		return nil, err
	}

	cfg.LogJSON, err = cmd.Flags().GetBool("log-json")
	if err != nil {
		return nil, err
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.Progress, err = cmd.Flags().GetBool("progress")
	if err != nil {
		return nil, err
	}

	cfg.MetricsAddr, err = cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return nil, err
	}

	cfg.Targets = args

	return cfg, nil
}

// runCrawl crawls every target and writes one report per target.
func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"concurrency", cfg.Concurrency,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	client, cleanup, err := newTransportClient(ctx, cmd.ErrOrStderr(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Reject unreachable targets before any crawl starts.
	for _, target := range cfg.Targets {
		if err := transport.CheckTarget(crawler.NormalizeAddress(target), client.IsProxied()); err != nil {
			return err
		}
	}

	var db *database.CrawlDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	var observers crawler.MultiObserver
	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		shutdown := startMetricsServer(cfg.MetricsAddr, collector, logger)
		defer shutdown()
		observers = append(observers, collector)
	}
	if cfg.Progress {
		progress := newProgressObserver(cmd.ErrOrStderr())
		defer progress.Finish()
		observers = append(observers, progress)
	}

	output, closeOutput, err := openReportOutput(cmd.OutOrStdout(), cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, output)
	if cfg.TeeReport {
		writer = report.NewMultiWriter(writer, report.NewSimpleWriter(cmd.OutOrStdout(),
			report.WithVerbose(cfg.Verbose),
			report.WithURLsOnly(cfg.URLsOnly),
		))
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineConcurrency(cfg.Concurrency),
		pipeline.WithPipelineMaxPages(cfg.MaxPages),
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
		pipeline.WithPipelineMaxBodySize(cfg.MaxBodySize),
		pipeline.WithPipelineSites(cfg.SiteConfigs),
	}
	if len(observers) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineObserver(observers))
	}
	if db != nil {
		configOpts = append(configOpts, pipeline.WithPipelineStore(db))
	}
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
	}

	bp := pipeline.NewBatchProcessor(
		func(target string) *pipeline.Pipeline {
			return pipeline.DefaultPipeline(client, target, pipelineOpts, configOpts...)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Reports finish in any order; the writer is shared.
	var (
		mu       sync.Mutex
		failed   int
		writeErr error
	)
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(r *model.CrawlReport, _ int) {
		mu.Lock()
		defer mu.Unlock()

		if r.Status() == model.StatusFailed {
			failed++
		}
		if _, err := writer.Write(r); err != nil && writeErr == nil {
			writeErr = fmt.Errorf("failed to write report: %w", err)
		}
	})

	if writeErr != nil {
		return writeErr
	}
	if batchErr != nil {
		// Partial reports have already been written and saved.
		if errors.Is(batchErr, context.Canceled) {
			logger.Warn("crawl interrupted, reports contain partial results")
			return nil
		}
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d crawl(s) failed", failed, len(cfg.Targets))
	}
	return nil
}

// newTransportClient returns the client selected by the proxy flags and a
// cleanup function that releases whatever was started for it.
func newTransportClient(ctx context.Context, stderr io.Writer, cfg *config.Config, logger *slog.Logger) (*transport.Client, func(), error) {
	noop := func() {}

	switch {
	case cfg.UseTor:
		return startEmbeddedTor(ctx, stderr, cfg, logger)

	case cfg.ProxyAddress != "":
		client, err := transport.NewSOCKS5Client(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != transport.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return client, noop, nil

	default:
		return transport.NewDirectClient(cfg.Timeout), noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago and returns a
// client that dials through it.
func startEmbeddedTor(ctx context.Context, stderr io.Writer, cfg *config.Config, logger *slog.Logger) (*transport.Client, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())

	cleanup := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if status := client.CheckConnection(ctx); status != transport.ProxyStatusOK {
		cleanup()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	return client, cleanup, nil
}

// startMetricsServer serves the collector on addr in the background and
// returns a function that shuts the server down.
func startMetricsServer(addr string, collector *metrics.Collector, logger *slog.Logger) func() {
	server := metrics.NewServer(addr, collector)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
}

// openReportOutput returns the report destination: stdout, or path created
// with owner-only permissions.
func openReportOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list every crawled address, and those may embed tokens.
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // write errors surface from Write
}

// newReportWriter selects the report format from the configuration.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output,
			report.WithVerbose(cfg.Verbose),
			report.WithURLsOnly(cfg.URLsOnly),
		)
	}
}
