package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chartdex/pipeline"
)

var exportFlags struct {
	output string
	format string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalogue to CSV, JSONL, or both",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.output, "output", "", "Output file path (default from config)")
	exportCmd.Flags().StringVar(&exportFlags.format, "format", "", "Output format: csv, json, or dual (default from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	output := cfg.OutputFile
	if exportFlags.output != "" {
		output = exportFlags.output
	}
	format := cfg.OutputFormat
	if exportFlags.format != "" {
		format = strings.ToLower(exportFlags.format)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	charts, err := st.All(context.Background())
	if err != nil {
		return fmt.Errorf("read catalogue: %w", err)
	}
	if len(charts) == 0 {
		return fmt.Errorf("catalogue is empty, nothing to export")
	}

	writer, err := createWriter(format, output)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(writer)
	p.Start(2)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	start := time.Now()
	if err := p.Process(charts); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	metrics := p.GetMetrics()
	exported, _ := metrics["processed_charts"].(int64)
	slog.Info("export finished",
		slog.Int64("charts", exported),
		slog.String("output", output),
		slog.String("format", format),
		slog.Duration("duration", time.Since(start)),
	)
	if validation, ok := metrics["validation_errors"].(map[string]int); ok && len(validation) > 0 {
		slog.Warn("some records were skipped", slog.Any("reasons", validation))
	}
	return nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
