package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chartdex/downloader"
	"chartdex/scraper"
	"chartdex/service"
)

var downloadFlags struct {
	destDir   string
	overwrite bool
	unpack    bool
	workers   int
}

var downloadCmd = &cobra.Command{
	Use:   "download <chart-id>...",
	Short: "Download the archives for the given chart IDs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadFlags.destDir, "dest", "", "Destination directory (default from config)")
	downloadCmd.Flags().BoolVar(&downloadFlags.overwrite, "overwrite", false, "Re-download files that already exist")
	downloadCmd.Flags().BoolVar(&downloadFlags.unpack, "unpack", false, "Unpack zip archives after download")
	downloadCmd.Flags().IntVar(&downloadFlags.workers, "workers", 0, "Concurrent downloads (default from config)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := downloader.Options{
		DestinationDir: cfg.DownloadDir,
		MaxConcurrency: cfg.DownloadConcurrency,
		Overwrite:      downloadFlags.overwrite,
		TimeoutPerItem: cfg.DownloadTimeout,
		Unpack:         downloadFlags.unpack || cfg.UnpackArchives,
	}
	if downloadFlags.destDir != "" {
		opts.DestinationDir = downloadFlags.destDir
	}
	if downloadFlags.workers > 0 {
		opts.MaxConcurrency = downloadFlags.workers
	}

	crawlMetrics := scraper.NewMetrics()
	dlMetrics := downloader.NewMetrics(crawlMetrics.Registry)
	svc := service.New(st, newClient(false), crawlMetrics, dlMetrics)

	slog.Info("starting download",
		slog.Int("charts", len(args)),
		slog.String("dest", opts.DestinationDir),
		slog.Int("workers", opts.MaxConcurrency),
	)

	result, err := svc.DownloadCharts(ctx, args, opts)
	if err != nil {
		return err
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Download %s complete\n", result.DownloadID)
	fmt.Printf("  Successful: %d\n", result.Successful)
	fmt.Printf("  Failed:     %d\n", result.Failed)
	for _, item := range result.Results {
		if item.Success {
			fmt.Printf("  [ok]   %-20s %s (%d bytes, %s)\n", item.ChartID, item.FilePath, item.Bytes, formatDuration(item.Elapsed))
		} else {
			fmt.Printf("  [fail] %-20s %s\n", item.ChartID, item.Error)
		}
	}
	fmt.Println(separator)

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", result.Failed, result.Total)
	}
	return nil
}
