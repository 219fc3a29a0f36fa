// Package cli implements the invindex command line: one-shot indexing and
// search over collection files, the HTTP server, Kafka publishing and a
// search load generator.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "invindex",
	Short:        "Build and search inverted indexes over JSON document collections",
	SilenceUsage: true,
	Long: `invindex indexes JSON arrays of {"title", "text"} documents into
per-collection inverted indexes and answers term lookups against them.`,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	logger.Setup(c.Logging.Level, c.Logging.Format)
	cfg = c
	return nil
}

// Execute is called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
