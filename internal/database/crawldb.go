package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/hostcrawl/internal/model"
)

// DBFileName is the name of the database file inside the data directory.
const DBFileName = "hostcrawl.db"

// ErrReportNotFound is returned when no stored crawl has the requested ID.
var ErrReportNotFound = errors.New("crawl report not found")

// CrawlDB provides SQLite-based storage for finished crawls.
//
// Design decision: We keep every run in a single database file. Runs are
// looked up by host key, so one file makes the history of a host a single
// indexed query.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// busy_timeout lets a history reader wait for a crawl that is saving.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the path of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per finished crawl; report_json holds the full report
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		host_key TEXT NOT NULL,
		start_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		elapsed_ns INTEGER NOT NULL DEFAULT 0,
		url_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON crawl_runs(host_key);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- Accepted addresses of each run, in acceptance order
	CREATE TABLE IF NOT EXISTS crawl_urls (
		run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_urls_url ON crawl_urls(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// timestampLayout is fixed width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SaveCrawlReport stores report and its accepted addresses in one transaction.
// Saving a report whose ID is already stored replaces it.
func (cdb *CrawlDB) SaveCrawlReport(ctx context.Context, report *model.CrawlReport) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // the statement error is more useful
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM crawl_urls WHERE run_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear crawl urls: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO crawl_runs
		(id, host_key, start_url, started_at, elapsed_ns, url_count, failure_count, status, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.HostKey,
		report.StartURL,
		report.StartedAt.UTC().Format(timestampLayout),
		int64(report.Elapsed),
		len(report.URLs),
		report.FailureCount(),
		report.Status(),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO crawl_urls (run_id, position, url, status_code, error)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare url insert: %w", err)
	}
	defer stmt.Close()

	failures := make(map[string]model.FetchFailure, len(report.Failures))
	for _, f := range report.Failures {
		failures[f.URL] = f
	}

	for i, address := range report.URLs {
		var errText sql.NullString
		f, failed := failures[address]
		if failed {
			errText = sql.NullString{String: f.Message, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, report.ID, i, address, f.StatusCode, errText); err != nil {
			return fmt.Errorf("failed to save crawl url: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit crawl report: %w", err)
	}
	return nil
}

// GetCrawlReport retrieves a stored report by its ID.
// It returns ErrReportNotFound when the ID is unknown.
func (cdb *CrawlDB) GetCrawlReport(ctx context.Context, id string) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM crawl_runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetLatestCrawlReport retrieves the most recent report for hostKey, or
// ErrReportNotFound if the host was never crawled.
func (cdb *CrawlDB) GetLatestCrawlReport(ctx context.Context, hostKey string) (*model.CrawlReport, error) {
	var id string
	err := cdb.db.QueryRowContext(ctx, `
	SELECT id FROM crawl_runs
	WHERE host_key = ?
	ORDER BY started_at DESC
	LIMIT 1
	`, hostKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, hostKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest crawl report: %w", err)
	}
	return cdb.GetCrawlReport(ctx, id)
}

// ListCrawls returns summaries of the stored crawls of hostKey, newest first.
// An empty hostKey lists every stored crawl.
func (cdb *CrawlDB) ListCrawls(ctx context.Context, hostKey string) ([]model.CrawlSummary, error) {
	query := `
	SELECT id, host_key, start_url, started_at, elapsed_ns, url_count, failure_count, status
	FROM crawl_runs
	WHERE ? = '' OR host_key = ?
	ORDER BY started_at DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, hostKey, hostKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawls: %w", err)
	}
	defer rows.Close()

	results := make([]model.CrawlSummary, 0)
	for rows.Next() {
		var s model.CrawlSummary
		var startedAt string
		var elapsed int64
		if err := rows.Scan(&s.ID, &s.HostKey, &s.StartURL, &startedAt, &elapsed,
			&s.URLCount, &s.FailureCount, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan crawl summary: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		s.Elapsed = time.Duration(elapsed)
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListHosts returns the host keys that have stored crawls, sorted.
func (cdb *CrawlDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT host_key FROM crawl_runs ORDER BY host_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	hosts := make([]string, 0)
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// URLRecord is one accepted address of a stored crawl.
type URLRecord struct {
	Position   int    `json:"position"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ListURLs returns the accepted addresses of run id in acceptance order.
func (cdb *CrawlDB) ListURLs(ctx context.Context, id string) ([]URLRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT position, url, status_code, error
	FROM crawl_urls
	WHERE run_id = ?
	ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl urls: %w", err)
	}
	defer rows.Close()

	records := make([]URLRecord, 0)
	for rows.Next() {
		var r URLRecord
		var errText sql.NullString
		if err := rows.Scan(&r.Position, &r.URL, &r.StatusCode, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan crawl url: %w", err)
		}
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp parses s with each of timestampFormats and returns the
// zero time if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
