// Package config holds runtime configuration and the source catalogue
// loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"chartdex/models"
)

// Config holds crawler and downloader configuration.
type Config struct {
	DatabasePath string
	SourcesFile  string
	DownloadDir  string

	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RetryDelayMax time.Duration

	RequestsPerSecond int
	RequestsPerMinute int
	RequestsPerHour   int

	MaxPages     int
	RequestDelay time.Duration
	SkipExisting bool

	DownloadConcurrency int
	DownloadTimeout     time.Duration
	UnpackArchives      bool

	OutputFile   string
	OutputFormat string // csv, json, or dual

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults suited to small fan blogs.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:        "chartdex.db",
		SourcesFile:         "sources.yml",
		DownloadDir:         "downloads",
		UserAgent:           "chartdex/1.0 (+https://github.com/chartdex/chartdex)",
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		RetryDelay:          time.Second,
		RetryDelayMax:       30 * time.Second,
		RequestsPerSecond:   1,
		RequestsPerMinute:   30,
		RequestsPerHour:     500,
		MaxPages:            10,
		RequestDelay:        0,
		SkipExisting:        false,
		DownloadConcurrency: 3,
		DownloadTimeout:     2 * time.Minute,
		UnpackArchives:      false,
		OutputFile:          "output/charts.csv",
		OutputFormat:        "csv",
		MetricsAddr:         "",
		Verbose:             false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.RetryDelayMax < 0 {
		return fmt.Errorf("retry delay max cannot be negative")
	}
	if c.RetryDelayMax > 0 && c.RetryDelay > c.RetryDelayMax {
		return fmt.Errorf("retry delay (%s) cannot exceed retry delay max (%s)", c.RetryDelay, c.RetryDelayMax)
	}
	if c.RequestsPerSecond <= 0 || c.RequestsPerMinute <= 0 || c.RequestsPerHour <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.DownloadConcurrency <= 0 {
		return fmt.Errorf("download concurrency must be positive")
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	return nil
}

// ApplyEnv overrides configuration from CHARTDEX_* environment variables.
func (c *Config) ApplyEnv() error {
	for _, override := range []struct {
		key   string
		apply func(string) error
	}{
		{"CHARTDEX_DB", func(v string) error { c.DatabasePath = v; return nil }},
		{"CHARTDEX_SOURCES", func(v string) error { c.SourcesFile = v; return nil }},
		{"CHARTDEX_DOWNLOAD_DIR", func(v string) error { c.DownloadDir = v; return nil }},
		{"CHARTDEX_USER_AGENT", func(v string) error { c.UserAgent = v; return nil }},
		{"CHARTDEX_TIMEOUT", func(v string) error { return setDuration(&c.Timeout, v) }},
		{"CHARTDEX_MAX_RETRIES", func(v string) error { return setInt(&c.MaxRetries, v) }},
		{"CHARTDEX_MAX_PAGES", func(v string) error { return setInt(&c.MaxPages, v) }},
		{"CHARTDEX_REQUEST_DELAY", func(v string) error { return setDuration(&c.RequestDelay, v) }},
		{"CHARTDEX_METRICS_ADDR", func(v string) error { c.MetricsAddr = v; return nil }},
	} {
		value, ok := os.LookupEnv(override.key)
		if !ok || value == "" {
			continue
		}
		if err := override.apply(value); err != nil {
			return fmt.Errorf("%s: %w", override.key, err)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*dst = parsed
	return nil
}

func setInt(dst *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*dst = parsed
	return nil
}

type rawSource struct {
	Name          string            `yaml:"name"`
	BaseURL       string            `yaml:"base_url"`
	Strategy      string            `yaml:"strategy"`
	Enabled       *bool             `yaml:"enabled"`
	MaxPages      int               `yaml:"max_pages"`
	RateLimit     string            `yaml:"rate_limit"`
	RespectRobots bool              `yaml:"respect_robots"`
	CustomHeaders map[string]string `yaml:"custom_headers"`
	Settings      map[string]string `yaml:"settings"`
}

type sourcesFile struct {
	Sources []rawSource `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML catalogue. Sources are
// enabled unless the file says otherwise.
func LoadSources(path string) ([]models.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(parsed.Sources) == 0 {
		return nil, fmt.Errorf("sources file %q defines no sources", path)
	}

	sources := make([]models.Source, 0, len(parsed.Sources))
	for i, raw := range parsed.Sources {
		if raw.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if raw.BaseURL == "" {
			return nil, fmt.Errorf("source %q: base_url is required", raw.Name)
		}
		if raw.Strategy == "" {
			return nil, fmt.Errorf("source %q: strategy is required", raw.Name)
		}

		src := models.Source{
			Name:          raw.Name,
			BaseURL:       raw.BaseURL,
			StrategyName:  raw.Strategy,
			Enabled:       raw.Enabled == nil || *raw.Enabled,
			MaxPages:      raw.MaxPages,
			RespectRobots: raw.RespectRobots,
			CustomHeaders: raw.CustomHeaders,
			Settings:      raw.Settings,
		}
		if raw.RateLimit != "" {
			limit, err := time.ParseDuration(raw.RateLimit)
			if err != nil {
				return nil, fmt.Errorf("source %q: invalid rate_limit: %w", raw.Name, err)
			}
			src.RateLimit = limit
		}
		sources = append(sources, src)
	}
	return sources, nil
}
