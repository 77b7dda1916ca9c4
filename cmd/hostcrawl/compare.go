package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/hostcrawl/internal/config"
	"github.com/nao1215/hostcrawl/internal/database"
	"github.com/nao1215/hostcrawl/internal/model"
)

// NewCompareCmd creates the compare command.
// This command compares the URL sets of two stored crawls of one host.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <host>",
		Short: "Compare the URLs of two stored crawls of a host",
		Long: `Compare shows how a site changed between two stored crawls:
- New URLs that were discovered in the current crawl only
- Removed URLs that were discovered in the previous crawl only
- Fetch failures that appeared or were fixed

By default the latest crawl is compared with the one before it, so at least
two crawls of the host must be stored. Use 'hostcrawl history <host>' to see
the stored crawls and their IDs.

Examples:
  # Compare the latest two crawls of a host
  hostcrawl compare example.com

  # Compare the latest crawl with a specific stored crawl
  hostcrawl compare --with-id 0b6f3a1e-... example.com

  # Compare with the first crawl since a date
  hostcrawl compare --since 2025-01-01 example.com

  # Output the comparison in JSON format
  hostcrawl compare --json example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	// Comparison target flags
	cmd.Flags().StringP("with-id", "i", "",
		"Compare with a specific stored crawl by ID")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first crawl on or after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	withID, err := cmd.Flags().GetString("with-id")
	if err != nil {
		return err
	}
	since, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	if withID != "" && since != "" {
		return errors.New("--with-id and --since cannot be used together")
	}

	// Validate arguments before opening the database.
	hostKey, err := resolveHostKey(args[0])
	if err != nil {
		return err
	}

	db, err := openHistoryDB(dbDir)
	if err != nil {
		return err
	}
	defer db.Close()

	previous, current, err := selectReports(cmd.Context(), db, hostKey, withID, since)
	if err != nil {
		return err
	}

	result := compareReports(previous, current)
	out := cmd.OutOrStdout()

	switch {
	case jsonOutput:
		return writeJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// selectReports returns the previous and current reports to compare. The
// current report is always the latest crawl of hostKey.
func selectReports(ctx context.Context, db *database.CrawlDB, hostKey, withID, since string) (*model.CrawlReport, *model.CrawlReport, error) {
	summaries, err := db.ListCrawls(ctx, hostKey)
	if err != nil {
		return nil, nil, err
	}
	if len(summaries) == 0 {
		return nil, nil, fmt.Errorf("no crawl history found for %s", hostKey)
	}

	var previousID string
	switch {
	case withID != "":
		if withID == summaries[0].ID {
			return nil, nil, fmt.Errorf("crawl %s is the latest crawl; choose an older one", withID)
		}
		previousID = withID

	case since != "":
		sinceDate, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// Summaries are newest first, so the oldest match is found walking
		// backwards.
		for i := len(summaries) - 1; i >= 1; i-- {
			if !summaries[i].StartedAt.Before(sinceDate) {
				previousID = summaries[i].ID
				break
			}
		}
		if previousID == "" {
			return nil, nil, fmt.Errorf("no crawl before the latest one found since %s", since)
		}

	default:
		if len(summaries) < 2 {
			return nil, nil, fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(summaries))
		}
		previousID = summaries[1].ID
	}

	previous, err := db.GetCrawlReport(ctx, previousID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get crawl %s: %w", previousID, err)
	}
	if previous.HostKey != hostKey {
		return nil, nil, fmt.Errorf("crawl %s belongs to %s, not %s", previousID, previous.HostKey, hostKey)
	}

	current, err := db.GetCrawlReport(ctx, summaries[0].ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get crawl %s: %w", summaries[0].ID, err)
	}
	return previous, current, nil
}

// ComparisonResult holds the result of comparing two crawl reports.
type ComparisonResult struct {
	// HostKey is the crawled host.
	HostKey string `json:"host_key"`

	// Previous contains metadata about the older crawl.
	Previous CrawlMetadata `json:"previous_crawl"`

	// Current contains metadata about the latest crawl.
	Current CrawlMetadata `json:"current_crawl"`

	// NewURLs were discovered by the current crawl only.
	NewURLs []string `json:"new_urls"`

	// RemovedURLs were discovered by the previous crawl only.
	RemovedURLs []string `json:"removed_urls"`

	// UnchangedCount is the number of URLs discovered by both crawls.
	UnchangedCount int `json:"unchanged_count"`

	// NewFailures failed in the current crawl but not in the previous one.
	NewFailures []string `json:"new_failures"`

	// FixedFailures failed in the previous crawl and were fetched in the
	// current one.
	FixedFailures []string `json:"fixed_failures"`
}

// CrawlMetadata describes one side of a comparison.
type CrawlMetadata struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	URLCount     int       `json:"url_count"`
	FailureCount int       `json:"failure_count"`
	Status       string    `json:"status"`
}

// metadataOf extracts comparison metadata from a report.
func metadataOf(r *model.CrawlReport) CrawlMetadata {
	return CrawlMetadata{
		ID:           r.ID,
		StartedAt:    r.StartedAt,
		URLCount:     len(r.URLs),
		FailureCount: r.FailureCount(),
		Status:       r.Status(),
	}
}

// compareReports compares the URL sets of two crawl reports. Every list in
// the result is sorted.
func compareReports(previous, current *model.CrawlReport) *ComparisonResult {
	result := &ComparisonResult{
		HostKey:       current.HostKey,
		Previous:      metadataOf(previous),
		Current:       metadataOf(current),
		NewURLs:       []string{},
		RemovedURLs:   []string{},
		NewFailures:   []string{},
		FixedFailures: []string{},
	}

	previousURLs := toSet(previous.URLs)
	currentURLs := toSet(current.URLs)

	for u := range currentURLs {
		if _, exists := previousURLs[u]; !exists {
			result.NewURLs = append(result.NewURLs, u)
		}
	}
	for u := range previousURLs {
		if _, exists := currentURLs[u]; exists {
			result.UnchangedCount++
		} else {
			result.RemovedURLs = append(result.RemovedURLs, u)
		}
	}

	previousFailures := failureSet(previous)
	currentFailures := failureSet(current)

	for u := range currentFailures {
		if _, exists := previousFailures[u]; !exists {
			result.NewFailures = append(result.NewFailures, u)
		}
	}
	for u := range previousFailures {
		_, stillFailing := currentFailures[u]
		_, stillPresent := currentURLs[u]
		if !stillFailing && stillPresent {
			result.FixedFailures = append(result.FixedFailures, u)
		}
	}

	slices.Sort(result.NewURLs)
	slices.Sort(result.RemovedURLs)
	slices.Sort(result.NewFailures)
	slices.Sort(result.FixedFailures)

	return result
}

// toSet returns the distinct values of list.
func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

// failureSet returns the failed URLs of a report.
func failureSet(r *model.CrawlReport) map[string]struct{} {
	set := make(map[string]struct{}, len(r.Failures))
	for _, f := range r.Failures {
		set[f.URL] = struct{}{}
	}
	return set
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Crawl Comparison: " + result.HostKey)
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Date", result.Previous.StartedAt.Format("2006-01-02 15:04"), result.Current.StartedAt.Format("2006-01-02 15:04"), "-"},
			{"Status", result.Previous.Status, result.Current.Status, "-"},
			{"URLs", strconv.Itoa(result.Previous.URLCount), strconv.Itoa(result.Current.URLCount),
				formatDelta(result.Current.URLCount - result.Previous.URLCount)},
			{"Failures", strconv.Itoa(result.Previous.FailureCount), strconv.Itoa(result.Current.FailureCount),
				formatDelta(result.Current.FailureCount - result.Previous.FailureCount)},
		},
	})
	md.PlainText("")

	writeMarkdownList(md, "New URLs", result.NewURLs)
	writeMarkdownList(md, "Removed URLs", result.RemovedURLs)
	writeMarkdownList(md, "New Failures", result.NewFailures)
	writeMarkdownList(md, "Fixed Failures", result.FixedFailures)

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d URLs unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

// writeMarkdownList writes a titled bullet list, skipping empty lists.
func writeMarkdownList(md *markdown.Markdown, title string, items []string) {
	if len(items) == 0 {
		return
	}
	md.H2(fmt.Sprintf("%s (%d)", title, len(items)))
	md.PlainText("")
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + item + "`"
	}
	md.BulletList(quoted...)
	md.PlainText("")
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Crawl Comparison: %s\n", result.HostKey)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious crawl: %s  (%s)\n", result.Previous.StartedAt.Format(time.DateTime), result.Previous.ID)
	fmt.Fprintf(out, "Current crawl:  %s  (%s)\n", result.Current.StartedAt.Format(time.DateTime), result.Current.ID)

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "URLs",
		result.Previous.URLCount, result.Current.URLCount,
		formatDelta(result.Current.URLCount-result.Previous.URLCount))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Failures",
		result.Previous.FailureCount, result.Current.FailureCount,
		formatDelta(result.Current.FailureCount-result.Previous.FailureCount))

	writeTextList(out, "New URLs", "[+]", result.NewURLs)
	writeTextList(out, "Removed URLs", "[-]", result.RemovedURLs)
	writeTextList(out, "New Failures", "[!]", result.NewFailures)
	writeTextList(out, "Fixed Failures", "[*]", result.FixedFailures)

	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d URLs\n", result.UnchangedCount)
	}
	return nil
}

// writeTextList writes a titled list, skipping empty lists.
func writeTextList(out io.Writer, title, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(out, "  %s %s\n", marker, item)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
