package crawler

import (
	"slices"
	"strings"
	"testing"
)

// TestParser tests HTML parsing functionality.
func TestParser(t *testing.T) {
	t.Parallel()

	parse := func(t *testing.T, base, doc string) *ParseResult {
		t.Helper()
		parser, err := NewParser(base)
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}
		result, err := parser.Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		return result
	}

	t.Run("extracts title", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/page", `<html><head><title> Test Page </title></head><body></body></html>`)
		if result.Title != "Test Page" {
			t.Errorf("expected title 'Test Page', got %q", result.Title)
		}
	})

	t.Run("resolves links in document order", func(t *testing.T) {
		t.Parallel()

		doc := `<html><body>
			<a href="/internal">Internal</a>
			<a href="relative">Relative</a>
			<a href="http://other.com/x">Other host</a>
			<area href="/map">
			<iframe src="/frame"></iframe>
		</body></html>`

		result := parse(t, "http://example.com/dir/page", doc)
		want := []string{
			"http://example.com/internal",
			"http://example.com/dir/relative",
			"http://other.com/x",
			"http://example.com/map",
			"http://example.com/frame",
		}
		if !slices.Equal(result.Links, want) {
			t.Errorf("got %v, want %v", result.Links, want)
		}
	})

	t.Run("handles special link types", func(t *testing.T) {
		t.Parallel()

		doc := `<html><body>
			<a href="javascript:void(0)">JS</a>
			<a href="JavaScript:alert(1)">JS upper</a>
			<a href="mailto:test@example.com">Email</a>
			<a href="tel:+1234567890">Phone</a>
			<a href="data:text/html,hi">Data</a>
			<a href="ftp://example.com/file">FTP</a>
			<a href="#">Anchor</a>
			<a href="">Empty</a>
			<a href="/valid">Valid</a>
		</body></html>`

		result := parse(t, "http://example.com/", doc)
		if len(result.Links) != 1 || result.Links[0] != "http://example.com/valid" {
			t.Errorf("expected only the valid link, got %v", result.Links)
		}
	})

	t.Run("strips fragments and deduplicates", func(t *testing.T) {
		t.Parallel()

		doc := `<a href="/a#one">1</a><a href="/a#two">2</a><a href="/a">3</a><a href="#top">top</a>`
		result := parse(t, "http://example.com/a", doc)
		if len(result.Links) != 1 || result.Links[0] != "http://example.com/a" {
			t.Errorf("expected a single normalized link, got %v", result.Links)
		}
	})

	t.Run("honours base href", func(t *testing.T) {
		t.Parallel()

		doc := `<html><head><base href="/docs/"></head><body><a href="intro">Intro</a></body></html>`
		result := parse(t, "http://example.com/index.html", doc)
		if len(result.Links) != 1 || result.Links[0] != "http://example.com/docs/intro" {
			t.Errorf("unexpected links: %v", result.Links)
		}
	})

	t.Run("tolerates malformed html", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/", `<div><a href="/x">unclosed<p><a href=/y>`)
		if len(result.Links) != 2 {
			t.Errorf("expected 2 links, got %v", result.Links)
		}
	})
}
