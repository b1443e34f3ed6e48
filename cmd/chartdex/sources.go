package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured sources",
	RunE:  runSources,
}

var searchFlags struct {
	limit int
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalogue by title or artist",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchFlags.limit, "limit", 20, "Maximum results to print")
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	sources, err := loadSources()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTRATEGY\tENABLED\tMAX PAGES\tBASE URL")
	for _, src := range sources {
		maxPages := "-"
		if src.MaxPages > 0 {
			maxPages = fmt.Sprintf("%d", src.MaxPages)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", src.Name, src.StrategyName, src.Enabled, maxPages, src.BaseURL)
	}
	return w.Flush()
}

func runSearch(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	charts, err := st.Search(context.Background(), args[0], searchFlags.limit)
	if err != nil {
		return err
	}
	if len(charts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no charts matched")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tBPM\tDIFFICULTIES\tDOWNLOAD")
	for _, chart := range charts {
		levels := make([]string, 0, len(chart.Difficulties))
		for _, level := range chart.Difficulties {
			levels = append(levels, fmt.Sprintf("%.1f", level))
		}
		download := chart.DownloadURL
		if download == "" {
			download = "(missing)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			chart.ID, chart.Title, chart.Artist, chart.BPM, strings.Join(levels, "/"), download)
	}
	return w.Flush()
}
