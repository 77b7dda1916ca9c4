package report

import (
	"io"

	"github.com/nao1215/hostcrawl/internal/model"
)

// Writer defines the interface for report output.
//
// Design decision: We use an interface so the crawl and history commands
// pick a format once and write every report through the same API.
type Writer interface {
	// Write outputs one crawl report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteHistory outputs a list of stored crawls.
	WriteHistory(summaries []model.CrawlSummary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written and stops on the first error.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteHistory outputs the summaries to all configured Writers.
func (m *MultiWriter) WriteHistory(summaries []model.CrawlSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteHistory(summaries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// dateFormat is used for timestamps in text and Markdown output.
const dateFormat = "2006-01-02 15:04:05 MST"
