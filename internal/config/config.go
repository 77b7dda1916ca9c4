package config

import (
	"net"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "hostcrawl"

	// DefaultConcurrency is the number of fetches allowed in flight per crawl.
	// Four workers keep a single host busy without hammering it.
	DefaultConcurrency = 4

	// DefaultTimeout bounds each HTTP request, not the whole crawl.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPages of 0 means a crawl is bounded only by the host's size.
	DefaultMaxPages = 0

	// DefaultBatchSize is the number of targets crawled at the same time.
	// Each target already runs Concurrency fetches, so the default is serial.
	DefaultBatchSize = 1

	// DefaultUserAgent identifies hostcrawl in HTTP requests so operators can
	// recognise crawler traffic in their logs.
	DefaultUserAgent = "hostcrawl/1.0 (+https://github.com/nao1215/hostcrawl)"

	// DefaultMaxBodySize limits the bytes read from one page (5MB).
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for a hostcrawl run.
// It is populated from CLI flags and passed down explicitly rather than kept
// in global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig). The number of options is manageable and
// every option maps to exactly one CLI flag.
type Config struct {
	// Targets is the list of start URLs. Each target is crawled within its
	// own host.
	Targets []string

	// Concurrency is the maximum number of fetches in flight per crawl.
	Concurrency int

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxPages caps the number of pages accepted per crawl. 0 means unlimited.
	MaxPages int

	// BatchSize is the number of targets crawled concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON writes log records to stderr as JSON instead of text.
	LogJSON bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum number of bytes read from one response.
	MaxBodySize int64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes every request through
	// it. Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the path to the per-site configuration file.
	// If empty, .hostcrawl is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the per-site configuration loaded from the file.
	SiteConfigs *File

	// JSONReport selects the JSON report format.
	JSONReport bool

	// MarkdownReport selects the Markdown report format.
	MarkdownReport bool

	// URLsOnly prints only the discovered URLs instead of a full report.
	URLsOnly bool

	// ReportFile redirects the report from stdout to a file.
	ReportFile string

	// TeeReport also prints the text report to stdout when ReportFile is set.
	TeeReport bool

	// DBDir is the directory of the crawl history database.
	// Defaults to the XDG data directory (~/.local/share/hostcrawl on Linux).
	DBDir string

	// SaveToDB stores finished crawls in the history database.
	SaveToDB bool

	// Progress shows a progress bar on stderr while crawling.
	Progress bool

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// (e.g. ":9090") for the duration of the run.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Concurrency:       DefaultConcurrency,
		Timeout:           DefaultTimeout,
		MaxPages:          DefaultMaxPages,
		BatchSize:         DefaultBatchSize,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the XDG data directory for hostcrawl.
// On Linux: ~/.local/share/hostcrawl
// On macOS: ~/Library/Application Support/hostcrawl
// On Windows: %LOCALAPPDATA%\hostcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for hostcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found as one of the sentinel errors in errors.go.
//
// Design decision: We validate once after CLI parsing, before any network
// activity, so that a bad flag fails fast with a clear message.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.URLsOnly && (c.JSONReport || c.MarkdownReport) {
		return ErrConflictingReportFormats
	}
	if c.TeeReport && c.ReportFile == "" {
		return ErrTeeWithoutOutput
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	if c.ProxyAddress != "" {
		if _, _, err := net.SplitHostPort(c.ProxyAddress); err != nil {
			return ErrInvalidProxyAddress
		}
	}
	return nil
}
