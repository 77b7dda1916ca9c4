// Package database provides SQLite-based storage for crawl history.
//
// CrawlDB stores every finished crawl:
//   - crawl_runs: one row per run with counters, status and the full report
//     as JSON
//   - crawl_urls: the accepted addresses of each run in acceptance order,
//     with the fetch error of failed ones
//
// The history is for inspection only. A crawl never reads it back to skip
// addresses or resume.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because it is
// CGO-free and the database is a single file under the XDG data directory.
// WAL mode keeps the history command usable while a crawl is writing.
package database
