package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/hostcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII rules rather than ANSI
// colors so the output can be piped to files or other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds the per-run statistics.
	verbose bool

	// urlsOnly prints the discovered URLs one per line and nothing else.
	urlsOnly bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithURLsOnly makes the writer print only the discovered URLs, sorted,
// one per line.
func WithURLsOnly(urlsOnly bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.urlsOnly = urlsOnly
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	if w.urlsOnly {
		for _, u := range report.SortedURLs() {
			sb.WriteString(u)
			sb.WriteString("\n")
		}
		return io.WriteString(w.output, sb.String())
	}

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeURLs(&sb, report)
	w.writeFailures(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeRule writes a section title between two rules.
func writeRule(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         HOSTCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", report.StartURL)
	if report.HostKey != "" {
		fmt.Fprintf(sb, "Host:           %s\n", report.HostKey)
	}
	fmt.Fprintf(sb, "Crawl Date:     %s\n", report.StartedAt.Format(dateFormat))
	fmt.Fprintf(sb, "Elapsed:        %s\n", report.Elapsed.Round(time.Millisecond))

	switch report.Status() {
	case model.StatusFailed:
		fmt.Fprintf(sb, "Status:         ERROR - %s\n", report.Error)
	case model.StatusCancelled:
		sb.WriteString("Status:         CANCELLED (partial results)\n")
	default:
		sb.WriteString("Status:         Complete\n")
	}
	sb.WriteString("\n")
}

// writeSummary writes the counters section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	writeRule(sb, "SUMMARY")

	fmt.Fprintf(sb, "  URLS:      %d\n", len(report.URLs))
	fmt.Fprintf(sb, "  FETCHED:   %d\n", report.SuccessCount())
	fmt.Fprintf(sb, "  FAILED:    %d\n", report.FailureCount())
	if w.verbose {
		fmt.Fprintf(sb, "  LIMIT:     %d concurrent fetches\n", report.Concurrency)
		fmt.Fprintf(sb, "  PEAK:      %d concurrent fetches\n", report.PeakInFlight)
		if report.MaxPages > 0 {
			fmt.Fprintf(sb, "  MAX PAGES: %d\n", report.MaxPages)
		}
		fmt.Fprintf(sb, "  ID:        %s\n", report.ID)
	}
	sb.WriteString("\n")
}

// writeURLs lists the accepted addresses, sorted.
func (w *SimpleWriter) writeURLs(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.URLs) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "URLS")
	if len(report.URLs) == 0 {
		sb.WriteString("  No URLs discovered\n")
	}
	for _, u := range report.SortedURLs() {
		fmt.Fprintf(sb, "  [+] %s\n", u)
	}
	sb.WriteString("\n")
}

// writeFailures lists the failed fetches.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Failures) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "FAILURES")
	if len(report.Failures) == 0 {
		sb.WriteString("  No failures\n")
	}
	for _, f := range report.Failures {
		fmt.Fprintf(sb, "  [!] %s\n", f.URL)
		fmt.Fprintf(sb, "      %s\n", f.Message)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by hostcrawl\n")
	sb.WriteString("https://github.com/nao1215/hostcrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// WriteHistory outputs the summaries as an aligned table.
func (w *SimpleWriter) WriteHistory(summaries []model.CrawlSummary) (int, error) {
	var sb strings.Builder

	if len(summaries) == 0 {
		sb.WriteString("No crawls found.\n")
		return io.WriteString(w.output, sb.String())
	}

	fmt.Fprintf(&sb, "%-36s  %-19s  %6s  %6s  %-9s  %s\n", "ID", "DATE", "URLS", "FAILED", "STATUS", "START URL")
	for _, s := range summaries {
		fmt.Fprintf(&sb, "%-36s  %-19s  %6d  %6d  %-9s  %s\n",
			s.ID,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.URLCount,
			s.FailureCount,
			s.Status,
			s.StartURL,
		)
	}
	return io.WriteString(w.output, sb.String())
}
