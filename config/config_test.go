package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty database path",
			mutate: func(cfg *Config) {
				cfg.DatabasePath = ""
			},
			wantErr: "database path",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "retry delay above max",
			mutate: func(cfg *Config) {
				cfg.RetryDelay = time.Minute
				cfg.RetryDelayMax = time.Second
			},
			wantErr: "retry delay",
		},
		{
			name: "zero rate limit",
			mutate: func(cfg *Config) {
				cfg.RequestsPerMinute = 0
			},
			wantErr: "rate limits",
		},
		{
			name: "zero download concurrency",
			mutate: func(cfg *Config) {
				cfg.DownloadConcurrency = 0
			},
			wantErr: "download concurrency",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHARTDEX_DB", "/tmp/other.db")
	t.Setenv("CHARTDEX_MAX_PAGES", "25")
	t.Setenv("CHARTDEX_TIMEOUT", "5s")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.DatabasePath != "/tmp/other.db" {
		t.Fatalf("database path = %q", cfg.DatabasePath)
	}
	if cfg.MaxPages != 25 {
		t.Fatalf("max pages = %d", cfg.MaxPages)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %s", cfg.Timeout)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("CHARTDEX_MAX_RETRIES", "lots")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "CHARTDEX_MAX_RETRIES") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

const sampleSourcesYAML = `
sources:
  - name: chartblog
    base_url: https://charts.example.test/
    strategy: blogger
    max_pages: 20
    rate_limit: 2s
    respect_robots: true
    custom_headers:
      Accept-Language: en
    settings:
      post_selector: div.post
      tags: osu,mania
  - name: archive
    base_url: https://archive.example.test/
    strategy: blogger
    enabled: false
`

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yml")
	if err := os.WriteFile(path, []byte(sampleSourcesYAML), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("load sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}

	first := sources[0]
	if first.Name != "chartblog" || first.StrategyName != "blogger" {
		t.Fatalf("unexpected first source: %+v", first)
	}
	if !first.Enabled {
		t.Fatalf("sources default to enabled")
	}
	if first.RateLimit != 2*time.Second {
		t.Fatalf("rate limit = %s, want 2s", first.RateLimit)
	}
	if first.Settings["post_selector"] != "div.post" {
		t.Fatalf("settings not carried through: %+v", first.Settings)
	}

	if sources[1].Enabled {
		t.Fatalf("explicit enabled: false should stick")
	}
}

func TestLoadSourcesRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yml")
	content := "sources:\n  - name: broken\n    strategy: blogger\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}

	if _, err := LoadSources(path); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}
