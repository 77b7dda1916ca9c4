package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/hostcrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, mermaid charts and GitHub-flavored
// alerts without hand-escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeURLs(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("hostcrawl Report")
	md.PlainText("")

	host := report.HostKey
	if host == "" {
		host = "-"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.StartURL + "`"},
			{"Host", "`" + host + "`"},
			{"Crawl Date", report.StartedAt.Format(dateFormat)},
			{"Elapsed", report.Elapsed.Round(time.Millisecond).String()},
			{"Concurrency", strconv.Itoa(report.Concurrency) + " (peak " + strconv.Itoa(report.PeakInFlight) + ")"},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

// statusText returns the status text based on report state.
func statusText(report *model.CrawlReport) string {
	switch report.Status() {
	case model.StatusFailed:
		return "❌ Error - " + report.Error
	case model.StatusCancelled:
		return "⚠️ Cancelled (partial results)"
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the fetch outcome section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"✅ Fetched", strconv.Itoa(report.SuccessCount())},
			{"❌ Failed", strconv.Itoa(report.FailureCount())},
			{"**Total URLs**", "**" + strconv.Itoa(len(report.URLs)) + "**"},
		},
	})
	md.PlainText("")

	if len(report.URLs) > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of fetch outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Outcomes"),
		piechart.WithShowData(true),
	)

	if n := report.SuccessCount(); n > 0 {
		chart.LabelAndIntValue("Fetched", uint64(n))
	}
	if n := report.FailureCount(); n > 0 {
		chart.LabelAndIntValue("Failed", uint64(n))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that matches the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Status() == model.StatusFailed:
		md.Cautionf("The crawl failed: %s", report.Error)
	case report.Cancelled:
		md.Warningf("The crawl was cancelled. %d URL(s) were discovered before it stopped.", len(report.URLs))
	case report.FailureCount() > 0:
		md.Importantf("%d of %d fetch(es) failed.", report.FailureCount(), len(report.URLs))
	default:
		md.Tip("Every discovered URL was fetched successfully.")
	}
	md.PlainText("")
}

// writeURLs writes the sorted list of discovered URLs.
func (w *MarkdownWriter) writeURLs(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("URLs")
	md.PlainText("")

	if len(report.URLs) == 0 {
		md.PlainText("No URLs discovered.")
		md.PlainText("")
		return
	}

	urls := report.SortedURLs()
	for i, u := range urls {
		urls[i] = "`" + u + "`"
	}
	md.BulletList(urls...)
	md.PlainText("")
}

// writeFailures writes a table of failed fetches.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(report.Failures))
	for i, f := range report.Failures {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		rows[i] = []string{
			"`" + truncateString(f.URL, 60) + "`",
			status,
			truncateString(f.Message, 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [hostcrawl](https://github.com/nao1215/hostcrawl)*")
}

// WriteHistory outputs the summaries as a Markdown table.
func (w *MarkdownWriter) WriteHistory(summaries []model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl History")
	md.PlainText("")

	if len(summaries) == 0 {
		md.PlainText("No crawls found.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{
			"`" + s.ID + "`",
			s.StartedAt.Format(dateFormat),
			"`" + s.HostKey + "`",
			strconv.Itoa(s.URLCount),
			strconv.Itoa(s.FailureCount),
			s.Status,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Date", "Host", "URLs", "Failed", "Status"},
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
