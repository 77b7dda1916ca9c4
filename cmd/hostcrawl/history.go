package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/hostcrawl/internal/config"
	"github.com/nao1215/hostcrawl/internal/crawler"
	"github.com/nao1215/hostcrawl/internal/database"
	"github.com/nao1215/hostcrawl/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show stored crawl results",
		Long: `History lists the crawls stored in the local history database.

Without arguments every stored crawl is listed, newest first. With a host
(or any URL on that host) only the crawls of that host are listed. The
history is for inspection only: a new crawl never reuses it.

Examples:
  # List every stored crawl
  hostcrawl history

  # List the crawls of one host
  hostcrawl history example.com

  # List every host with stored crawls
  hostcrawl history --list-hosts

  # Show a stored crawl report
  hostcrawl history --id 0b6f3a1e-...

  # Show the URLs of a stored crawl in the order they were discovered
  hostcrawl history --id 0b6f3a1e-... --urls`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-hosts", "L", false,
		"List every host with stored crawls")
	cmd.Flags().StringP("id", "i", "",
		"Show the stored crawl with this ID")
	cmd.Flags().Bool("urls", false,
		"With --id, list the crawl's URLs in discovery order")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// historyOptions holds the parsed flags of the history command.
type historyOptions struct {
	listHosts bool
	id        string
	urls      bool
	json      bool
	markdown  bool
	dbDir     string
}

// parseHistoryFlags reads the history command flags.
func parseHistoryFlags(cmd *cobra.Command) (*historyOptions, error) {
	opts := &historyOptions{}
	var err error

	if opts.listHosts, err = cmd.Flags().GetBool("list-hosts"); err != nil {
		return nil, err
	}
	if opts.id, err = cmd.Flags().GetString("id"); err != nil {
		return nil, err
	}
	if opts.urls, err = cmd.Flags().GetBool("urls"); err != nil {
		return nil, err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.urls && opts.id == "" {
		return nil, errors.New("--urls requires --id")
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var hostKey string
	if len(args) == 1 {
		hostKey, err = resolveHostKey(args[0])
		if err != nil {
			return err
		}
	}

	db, err := openHistoryDB(opts.dbDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.listHosts:
		return listHosts(ctx, out, db, opts.json)
	case opts.id != "" && opts.urls:
		return listURLs(ctx, out, db, opts.id, opts.json)
	case opts.id != "":
		r, err := db.GetCrawlReport(ctx, opts.id)
		if err != nil {
			return fmt.Errorf("failed to get crawl %s: %w", opts.id, err)
		}
		_, err = historyWriter(out, opts).Write(r)
		return err
	default:
		summaries, err := db.ListCrawls(ctx, hostKey)
		if err != nil {
			return err
		}
		_, err = historyWriter(out, opts).WriteHistory(summaries)
		return err
	}
}

// historyWriter selects the output format of the history command.
func historyWriter(out io.Writer, opts *historyOptions) report.Writer {
	switch {
	case opts.json:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case opts.markdown:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out)
	}
}

// openHistoryDB opens the history database in dbDir, or in the XDG data
// directory when dbDir is empty.
func openHistoryDB(dbDir string) (*database.CrawlDB, error) {
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// resolveHostKey converts a host argument to the host key used in the
// history. Both "example.com:8080" and "https://Example.com:8080/page" are
// accepted.
func resolveHostKey(arg string) (string, error) {
	address := arg
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	hostKey, err := crawler.HostKey(address)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", arg, err)
	}
	return hostKey, nil
}

// listHosts prints every host with stored crawls.
func listHosts(ctx context.Context, out io.Writer, db *database.CrawlDB, asJSON bool) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(out, hosts)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(out, "No crawled hosts found in the database.")
		fmt.Fprintln(out, "\nUse 'hostcrawl crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(out, "  • %s\n", host)
	}
	fmt.Fprintln(out, "\nUse 'hostcrawl history <host>' to see the crawls of a host.")
	return nil
}

// listURLs prints the URLs of a stored crawl in discovery order.
func listURLs(ctx context.Context, out io.Writer, db *database.CrawlDB, id string, asJSON bool) error {
	// ListURLs cannot tell an unknown ID from an empty crawl.
	if _, err := db.GetCrawlReport(ctx, id); err != nil {
		return fmt.Errorf("failed to get crawl %s: %w", id, err)
	}

	records, err := db.ListURLs(ctx, id)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(out, records)
	}

	for _, r := range records {
		switch {
		case r.StatusCode != 0:
			fmt.Fprintf(out, "%5d  %s  [HTTP %d]\n", r.Position+1, r.URL, r.StatusCode)
		case r.Error != "":
			fmt.Fprintf(out, "%5d  %s  [%s]\n", r.Position+1, r.URL, r.Error)
		default:
			fmt.Fprintf(out, "%5d  %s\n", r.Position+1, r.URL)
		}
	}
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
