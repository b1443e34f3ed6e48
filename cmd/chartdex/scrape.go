package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"chartdex/downloader"
	"chartdex/models"
	"chartdex/scraper"
	"chartdex/service"
)

var scrapeFlags struct {
	maxPages     int
	requestDelay time.Duration
	skipExisting bool
	resume       bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [source...]",
	Short: "Crawl sources and upsert their charts into the catalogue",
	RunE:  runScrape,
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeFlags.maxPages, "pages", 0, "Override the per-source page cap")
	scrapeCmd.Flags().DurationVar(&scrapeFlags.requestDelay, "delay", 0, "Extra pause between page fetches")
	scrapeCmd.Flags().BoolVar(&scrapeFlags.skipExisting, "skip-existing", false, "Do not re-store charts already in the catalogue")
	scrapeCmd.Flags().BoolVar(&scrapeFlags.resume, "resume", false, "Resume from the deepest previously completed page")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	sources, err := loadSources()
	if err != nil {
		return err
	}
	selected, err := selectSources(sources, args)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current page")
	}()

	crawlMetrics := scraper.NewMetrics()
	dlMetrics := downloader.NewMetrics(crawlMetrics.Registry)
	metricsServer := startMetricsServer(crawlMetrics)
	defer stopMetricsServer(metricsServer)

	opts := scraper.Options{
		MaxPages:        scrapeFlags.maxPages,
		RequestDelay:    maxDuration(scrapeFlags.requestDelay, cfg.RequestDelay),
		SkipExisting:    scrapeFlags.skipExisting || cfg.SkipExisting,
		ResumeFromOlder: scrapeFlags.resume,
	}

	var failures int
	for _, src := range selected {
		svc := service.New(st, newClient(src.RespectRobots), crawlMetrics, dlMetrics)

		slog.Info("starting scrape",
			slog.String("source", src.Name),
			slog.String("base_url", src.BaseURL),
			slog.String("strategy", src.StrategyName),
		)

		result, err := svc.ScrapeSource(ctx, src, opts)
		if err != nil {
			failures++
			slog.Error("scrape failed", slog.String("source", src.Name), slog.Any("error", err))
			continue
		}
		printScrapeSummary(result)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d sources failed", failures, len(selected))
	}
	return nil
}

func startMetricsServer(crawlMetrics *scraper.Metrics) *http.Server {
	if cfg.MetricsAddr == "" || crawlMetrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(crawlMetrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printScrapeSummary(result *models.ScrapeResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Scrape complete: %s\n", result.SourceName)
	fmt.Printf("  Pages visited: %d\n", result.PagesVisited)
	fmt.Printf("  Charts found:  %d\n", result.ChartsFound)
	fmt.Printf("  Added:         %d\n", result.ChartsAdded)
	fmt.Printf("  Duplicated:    %d\n", result.ChartsDuplicated)
	fmt.Printf("  Errors:        %d\n", len(result.Errors))
	for _, msg := range result.Errors {
		fmt.Printf("    - %s\n", msg)
	}
	fmt.Printf("  Duration:      %s\n", formatDuration(result.Duration))
	fmt.Printf("  Next scrape:   %s\n", result.NextScrapeTime.Format(time.RFC3339))
	fmt.Println(separator)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
