package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/hostcrawl/internal/config"
	"github.com/nao1215/hostcrawl/internal/report"
	"github.com/nao1215/hostcrawl/internal/transport"
)

// testSite serves a small linked site. Turning on extra adds the page /d.
type testSite struct {
	server *httptest.Server
	extra  atomic.Bool
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	pages := map[string][]string{
		"/":  {"/a", "/b", "https://elsewhere.example/x"},
		"/a": {"/", "/c#section"},
		"/b": {"/missing"},
		"/c": {},
		"/d": {"/"},
	}

	site := &testSite{}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		links, ok := pages[r.URL.Path]
		if !ok || (r.URL.Path == "/d" && !site.extra.Load()) {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/c" && site.extra.Load() {
			links = []string{"/d"}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, link := range links {
			fmt.Fprintf(&b, `<a href="%s">link</a>`, link)
		}
		b.WriteString("</body></html>")
		_, _ = io.WriteString(w, b.String())
	}))
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) url(path string) string {
	return s.server.URL + path
}

func (s *testSite) hostKey() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// nonEmptyLines splits output into lines, dropping empty ones.
func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "concurrency", shorthand: "c", defValue: "4"},
		{name: "timeout", shorthand: "t", defValue: config.DefaultTimeout.String()},
		{name: "max-pages", shorthand: "p", defValue: "0"},
		{name: "batch", shorthand: "b", defValue: "1"},
		{name: "proxy", shorthand: "x", defValue: ""},
		{name: "tor", defValue: "false"},
		{name: "config", defValue: ""},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "urls-only", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "tee", defValue: "false"},
		{name: "no-save", defValue: "false"},
		{name: "db-dir", defValue: ""},
		{name: "progress", defValue: "false"},
		{name: "metrics-addr", defValue: ""},
		{name: "log-json", defValue: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("builds config with default values", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://example.com/" {
			t.Errorf("expected targets [https://example.com/], got %v", cfg.Targets)
		}
		if cfg.Concurrency != config.DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", config.XDGDataDir(), cfg.DBDir)
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected non-nil site configs")
		}
	})

	t.Run("reads every flag", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		flags := map[string]string{
			"concurrency":  "8",
			"timeout":      "5s",
			"max-pages":    "100",
			"batch":        "3",
			"proxy":        "127.0.0.1:9050",
			"no-save":      "true",
			"db-dir":       "/tmp/hostcrawl-test",
			"urls-only":    "true",
			"progress":     "true",
			"metrics-addr": ":9090",
			"log-json":     "true",
		}
		for name, value := range flags {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("failed to set %s: %v", name, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
		}
		if cfg.MaxPages != 100 {
			t.Errorf("expected max pages 100, got %d", cfg.MaxPages)
		}
		if cfg.BatchSize != 3 {
			t.Errorf("expected batch size 3, got %d", cfg.BatchSize)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected proxy address, got %q", cfg.ProxyAddress)
		}
		if cfg.SaveToDB {
			t.Error("expected SaveToDB to be false")
		}
		if cfg.DBDir != "/tmp/hostcrawl-test" {
			t.Errorf("expected DBDir /tmp/hostcrawl-test, got %q", cfg.DBDir)
		}
		if !cfg.LogJSON {
			t.Error("expected LogJSON to be true")
		}
		if !cfg.URLsOnly || !cfg.Progress {
			t.Error("expected URLsOnly and Progress to be true")
		}
		if cfg.MetricsAddr != ":9090" {
			t.Errorf("expected metrics address :9090, got %q", cfg.MetricsAddr)
		}
	})

	t.Run("loads explicit config file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "sites.yaml")
		content := "sites:\n  example.com:\n    cookie: \"session=abc\"\n    maxPages: 7\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", path)
		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		site := cfg.SiteConfigs.GetSiteConfig("example.com")
		if site.Cookie != "session=abc" || site.MaxPages != 7 {
			t.Errorf("unexpected site config: %+v", site)
		}
	})

	t.Run("fails for missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := buildConfig(cmd, []string{"https://example.com/"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("reads persistent flag from root", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
			t.Fatalf("failed to set verbose: %v", err)
		}
		crawl, _, err := root.Find([]string{"crawl"})
		if err != nil {
			t.Fatalf("failed to find crawl command: %v", err)
		}
		if !getVerboseFlag(crawl) {
			t.Error("expected verbose to be true")
		}
	})

	t.Run("defaults to false without root", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewCrawlCmd()) {
			t.Error("expected verbose to be false")
		}
	})
}

func TestRunCrawlCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints every same-host URL once", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)

		out, err := executeCommand(t, "crawl", "--no-save", "--urls-only", site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{
			site.url("/"),
			site.url("/a"),
			site.url("/b"),
			site.url("/c"),
			site.url("/missing"),
		}
		slices.Sort(want)
		if got := nonEmptyLines(out); !slices.Equal(got, want) {
			t.Errorf("expected URLs %v, got %v", want, got)
		}
	})

	t.Run("respects max pages", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)

		out, err := executeCommand(t, "crawl", "--no-save", "--urls-only", "-p", "2", site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := nonEmptyLines(out); len(got) != 2 {
			t.Errorf("expected 2 URLs, got %v", got)
		}
	})

	t.Run("applies site ignore patterns", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)
		path := filepath.Join(t.TempDir(), "sites.yaml")
		content := fmt.Sprintf("sites:\n  %q:\n    ignorePatterns:\n      - \"/b\"\n", site.hostKey())
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		out, err := executeCommand(t, "crawl", "--no-save", "--urls-only", "--config", path, site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, line := range nonEmptyLines(out) {
			if strings.HasSuffix(line, "/b") || strings.HasSuffix(line, "/missing") {
				t.Errorf("expected %s to be ignored", line)
			}
		}
	})

	t.Run("writes text report", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)

		out, err := executeCommand(t, "crawl", "--no-save", site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"HOSTCRAWL REPORT", site.url("/c"), "404"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected report to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("writes JSON report to file", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)
		path := filepath.Join(t.TempDir(), "out", "report.json")

		out, err := executeCommand(t, "crawl", "--no-save", "-j", "-o", path, site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "" {
			t.Errorf("expected nothing on stdout, got %q", out)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var wrapped report.JSONReport
		if err := json.Unmarshal(data, &wrapped); err != nil {
			t.Fatalf("invalid JSON report: %v", err)
		}
		if wrapped.Version == "" {
			t.Error("expected version in JSON report")
		}
		if wrapped.Report == nil || len(wrapped.Report.URLs) != 5 {
			t.Fatalf("expected 5 URLs in report, got %+v", wrapped.Report)
		}
		if wrapped.Report.HostKey != site.hostKey() {
			t.Errorf("expected host key %q, got %q", site.hostKey(), wrapped.Report.HostKey)
		}
		if len(wrapped.Report.Failures) != 1 || wrapped.Report.Failures[0].StatusCode != http.StatusNotFound {
			t.Errorf("expected one 404 failure, got %+v", wrapped.Report.Failures)
		}
	})

	t.Run("tee prints the text report as well", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)
		path := filepath.Join(t.TempDir(), "report.md")

		out, err := executeCommand(t, "crawl", "--no-save", "--log-json", "-m", "-o", path, "--tee", site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "HOSTCRAWL REPORT") {
			t.Errorf("expected text report on stdout, got %q", out)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "# hostcrawl Report") {
			t.Errorf("expected Markdown report in file, got %q", data)
		}
	})

	t.Run("crawls several targets", func(t *testing.T) {
		t.Parallel()
		first := newTestSite(t)
		second := newTestSite(t)

		out, err := executeCommand(t, "crawl", "--no-save", "--urls-only", "-b", "2",
			first.url("/"), second.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := nonEmptyLines(out); len(got) != 10 {
			t.Errorf("expected 10 URLs, got %d: %v", len(got), got)
		}
	})

	t.Run("shows progress and metrics without changing the result", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)

		out, err := executeCommand(t, "crawl", "--no-save", "--urls-only", "--progress",
			"--metrics-addr", "127.0.0.1:0", site.url("/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := nonEmptyLines(out); len(got) != 5 {
			t.Errorf("expected 5 URLs, got %v", got)
		}
	})

	t.Run("saves to history database", func(t *testing.T) {
		t.Parallel()
		site := newTestSite(t)
		dbDir := t.TempDir()

		if _, err := executeCommand(t, "crawl", "--db-dir", dbDir, "--urls-only", site.url("/")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out, err := executeCommand(t, "history", "--db-dir", dbDir, site.hostKey())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, site.url("/")) || !strings.Contains(out, "complete") {
			t.Errorf("expected stored crawl in history, got:\n%s", out)
		}
	})
}

func TestRunCrawlCmdErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want error
	}{
		{
			name: "no targets",
			args: []string{"crawl", "--no-save"},
			want: config.ErrNoTarget,
		},
		{
			name: "conflicting formats",
			args: []string{"crawl", "--no-save", "-j", "-m", "https://example.com/"},
			want: config.ErrConflictingReportFormats,
		},
		{
			name: "zero concurrency",
			args: []string{"crawl", "--no-save", "-c", "0", "https://example.com/"},
			want: config.ErrInvalidConcurrency,
		},
		{
			name: "tor and proxy",
			args: []string{"crawl", "--no-save", "--tor", "-x", "127.0.0.1:9050", "https://example.com/"},
			want: config.ErrConflictingProxy,
		},
		{
			name: "tee without output",
			args: []string{"crawl", "--no-save", "--tee", "https://example.com/"},
			want: config.ErrTeeWithoutOutput,
		},
		{
			name: "invalid onion address",
			args: []string{"crawl", "--no-save", "http://not-a-real-service.onion/"},
			want: transport.ErrInvalidOnionAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := executeCommand(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("malformed start URL fails the crawl", func(t *testing.T) {
		t.Parallel()
		_, err := executeCommand(t, "crawl", "--no-save", "not a url")
		if err == nil || !strings.Contains(err.Error(), "1 of 1 crawl(s) failed") {
			t.Errorf("expected failed crawl error, got %v", err)
		}
	})
}
