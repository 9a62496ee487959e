package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/report"
)

// quietConfig keeps the tests independent of any config file in the
// working directory or XDG config home.
const quietConfig = "log:\n  format: text\n"

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/":  `<html><head><title>Home</title></head><body><a href="/a">A</a></body></html>`,
		"/a": `<html><head><title>Page A</title></head><body>Alpha content</body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"allow-domain", "a", "[]"},
		{"max-pages", "p", "200"},
		{"depth", "d", "2"},
		{"concurrency", "n", "6"},
		{"delay", "", "1s"},
		{"timeout", "t", "15s"},
		{"robots", "", config.RobotsAdvisory},
		{"storage", "", config.DriverSQLite},
		{"json", "j", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected flag %q", tt.name)
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

func TestBuildCrawlConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `seeds:
  - https://example.com/
allow_domains:
  - example.com
max_pages: 7
per_host_delay: 0s
`)

	t.Run("file values survive unset flags", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		sub, _, err := root.Find([]string{"crawl"})
		if err != nil {
			t.Fatal(err)
		}
		if err := sub.ParseFlags([]string{"-c", path, "-d", "3"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildCrawlConfig(sub, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != 7 {
			t.Errorf("expected max pages 7 from file, got %d", cfg.MaxPages)
		}
		if cfg.MaxDepth != 3 {
			t.Errorf("expected depth 3 from flag, got %d", cfg.MaxDepth)
		}
		if cfg.PerHostDelay != 0 {
			t.Errorf("expected zero delay from file, got %v", cfg.PerHostDelay)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://example.com/" {
			t.Errorf("expected seeds from file, got %v", cfg.Seeds)
		}
	})

	t.Run("flags and args override the file", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		sub, _, err := root.Find([]string{"crawl"})
		if err != nil {
			t.Fatal(err)
		}
		args := []string{
			"-c", path,
			"-a", "go.dev", "-a", "golang.org",
			"-p", "50",
			"--delay", "250ms",
			"--robots", "ENFORCE",
			"--rate", "2.5",
			"--storage", "postgres",
			"--dsn", "postgres://localhost/crawler",
			"--report", "out.md",
			"--json",
		}
		if err := sub.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildCrawlConfig(sub, []string{"https://go.dev/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Join(cfg.AllowDomains, ","); got != "go.dev,golang.org" {
			t.Errorf("unexpected allow domains %q", got)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://go.dev/" {
			t.Errorf("expected seeds from args, got %v", cfg.Seeds)
		}
		if cfg.MaxPages != 50 {
			t.Errorf("expected max pages 50, got %d", cfg.MaxPages)
		}
		if cfg.PerHostDelay != 250*time.Millisecond {
			t.Errorf("expected 250ms delay, got %v", cfg.PerHostDelay)
		}
		if cfg.RobotsMode != config.RobotsEnforce {
			t.Errorf("expected enforce, got %q", cfg.RobotsMode)
		}
		if cfg.RateLimit != 2.5 {
			t.Errorf("expected rate 2.5, got %v", cfg.RateLimit)
		}
		if cfg.Storage.Driver != config.DriverPostgres || cfg.Storage.DSN != "postgres://localhost/crawler" {
			t.Errorf("unexpected storage %+v", cfg.Storage)
		}
		if cfg.ReportFile != "out.md" || !cfg.JSONReport {
			t.Errorf("unexpected report settings %q %v", cfg.ReportFile, cfg.JSONReport)
		}
	})
}

func TestCrawlCmdErrors(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, quietConfig)

	t.Run("no seeds", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "crawl", "-c", path, "-a", "example.com")
		if !errors.Is(err, config.ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("no allowed domains", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "crawl", "-c", path, "https://example.com/")
		if !errors.Is(err, config.ErrNoAllowedDomains) {
			t.Errorf("expected ErrNoAllowedDomains, got %v", err)
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "crawl", "-c", path, "-a", "example.com", "--include", "(", "https://example.com/")
		if !errors.Is(err, config.ErrInvalidPattern) {
			t.Errorf("expected ErrInvalidPattern, got %v", err)
		}
	})
}

func TestCrawlAndItems(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	path := writeConfig(t, quietConfig)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "reports", "crawl.md")

	out, err := execute(t, "crawl", srv.URL+"/",
		"-c", path,
		"-a", "127.0.0.1",
		"--delay", "0s",
		"--db", dir,
		"--report", reportPath,
		"--json",
	)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	var summary report.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out)
	}
	if summary.Stats.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", summary.Stats.PagesFetched)
	}

	md, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(md), "Crawl Report") {
		t.Errorf("unexpected report content:\n%s", md)
	}

	t.Run("items table", func(t *testing.T) {
		out, err := execute(t, "items", "-c", path, "--db", dir)
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		for _, want := range []string{"Page A", srv.URL + "/a", "2 shown, 2 stored"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("items query", func(t *testing.T) {
		out, err := execute(t, "items", "-c", path, "--db", dir, "-q", "alpha")
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		if !strings.Contains(out, "1 shown, 2 stored") {
			t.Errorf("expected one match:\n%s", out)
		}
	})

	t.Run("items ndjson", func(t *testing.T) {
		out, err := execute(t, "items", "-c", path, "--db", dir, "--ndjson")
		if err != nil {
			t.Fatalf("export failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
		}
		for _, line := range lines {
			var item map[string]any
			if err := json.Unmarshal([]byte(line), &item); err != nil {
				t.Errorf("line is not JSON: %v", err)
			}
		}
	})
}

func TestItemsEmptyStore(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "items", "-c", writeConfig(t, quietConfig), "--db", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No items found (0 stored)") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTableCell(t *testing.T) {
	t.Parallel()

	if got := tableCell("a | b\n  c"); got != `a \| b c` {
		t.Errorf("unexpected cell %q", got)
	}
}
