// Package report writes crawl reports and crawl history.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for terminal display, or a bare URL
//     list with WithURLsOnly
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a mermaid chart of fetch outcomes
//
// Writers implement the Writer interface, so the CLI picks one by flag and
// MultiWriter can fan a report out to several of them.
package report
