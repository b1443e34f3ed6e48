// Command chartdex crawls rhythm-game chart blogs into a local catalogue,
// downloads the chart archives, and exports the catalogue to CSV/JSONL.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chartdex/config"
	"chartdex/httpclient"
	"chartdex/models"
	"chartdex/ratelimit"
	"chartdex/store"
)

var (
	cfg     = baseConfig()
	verbose bool
)

// baseConfig seeds flag defaults; explicit flags then win over CHARTDEX_*
// variables.
func baseConfig() *config.Config {
	c := config.DefaultConfig()
	if err := c.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "chartdex: %v\n", err)
		os.Exit(1)
	}
	return c
}

var rootCmd = &cobra.Command{
	Use:           "chartdex",
	Short:         "Crawl rhythm-game chart blogs into a searchable catalogue",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.Verbose = verbose

		logger, level := newLogger(cfg.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())

		return cfg.Validate()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "Path to the SQLite catalogue")
	flags.StringVar(&cfg.SourcesFile, "sources", cfg.SourcesFile, "Path to the YAML source catalogue")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header for all requests")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retry attempts per URL")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chartdex: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func openStore() (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open catalogue %q: %w", cfg.DatabasePath, err)
	}
	return st, nil
}

func newClient(respectRobots bool) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		RetryDelayMax: cfg.RetryDelayMax,
		Limits: ratelimit.Limits{
			PerSecond: cfg.RequestsPerSecond,
			PerMinute: cfg.RequestsPerMinute,
			PerHour:   cfg.RequestsPerHour,
		},
		RespectRobots: respectRobots,
	})
}

func loadSources() ([]models.Source, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// selectSources filters the catalogue down to the names given on the
// command line, or every enabled source when none are named.
func selectSources(sources []models.Source, names []string) ([]models.Source, error) {
	if len(names) == 0 {
		selected := make([]models.Source, 0, len(sources))
		for _, src := range sources {
			if src.Enabled {
				selected = append(selected, src)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("no enabled sources in %q", cfg.SourcesFile)
		}
		return selected, nil
	}

	byName := make(map[string]models.Source, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}

	selected := make([]models.Source, 0, len(names))
	for _, name := range names {
		src, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
