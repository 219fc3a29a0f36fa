package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/loadtest"
)

var (
	loadURL         string
	loadConcurrency int
	loadDuration    time.Duration
	loadQueries     []string
	loadTarget      string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Generate search traffic against a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := loadtest.Config{
			BaseURL:     loadURL,
			Concurrency: loadConcurrency,
			Duration:    loadDuration,
			Queries:     loadQueries,
			Target:      loadTarget,
		}
		if len(lc.Queries) == 0 {
			lc.Queries = loadtest.DefaultQueries
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Inverted Index Load Test ===")
		fmt.Fprintf(out, "Target:      %s\n", lc.BaseURL)
		fmt.Fprintf(out, "Concurrency: %d\n", lc.Concurrency)
		fmt.Fprintf(out, "Duration:    %s\n", lc.Duration)
		fmt.Fprintf(out, "Queries:     %d unique\n", len(lc.Queries))
		fmt.Fprintln(out)

		stats := loadtest.Run(cmd.Context(), lc, out)
		return loadtest.Report(out, stats, lc.Duration)
	},
}

func init() {
	loadtestCmd.Flags().StringVar(&loadURL, "url", "http://localhost:8080", "base URL of the search service")
	loadtestCmd.Flags().IntVar(&loadConcurrency, "concurrency", 10, "number of concurrent workers")
	loadtestCmd.Flags().DurationVar(&loadDuration, "duration", 30*time.Second, "test duration")
	loadtestCmd.Flags().StringArrayVarP(&loadQueries, "query", "q", nil, "query to send (repeatable)")
	loadtestCmd.Flags().StringVar(&loadTarget, "target", "", "collection to search")
	rootCmd.AddCommand(loadtestCmd)
}
