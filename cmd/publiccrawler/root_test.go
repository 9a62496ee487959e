package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/publiccrawler/internal/config"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "publiccrawler" {
			t.Errorf("expected use 'publiccrawler', got %q", cmd.Use)
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"crawl", "serve", "items", "init", "version"} {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected subcommand %q", name)
			}
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		for _, tt := range []struct {
			name      string
			shorthand string
		}{
			{"verbose", "v"},
			{"log-format", ""},
			{"config", "c"},
		} {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected persistent flag %q", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing file is an error", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		sub, _, err := root.Find([]string{"items"})
		if err != nil {
			t.Fatal(err)
		}
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		if err := sub.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatal(err)
		}
		_, err = loadConfig(sub)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("flags override the file", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "log:\n  verbose: false\n  format: text\n")
		root := NewRootCmd()
		sub, _, err := root.Find([]string{"items"})
		if err != nil {
			t.Fatal(err)
		}
		if err := sub.ParseFlags([]string{"-c", path, "-v", "--log-format", "json"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := loadConfig(sub)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.Verbose {
			t.Error("expected verbose from flag")
		}
		if cfg.LogFormat != config.LogFormatJSON {
			t.Errorf("expected json log format, got %q", cfg.LogFormat)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("expected config path %q, got %q", path, cfg.ConfigFilePath)
		}
	})
}
