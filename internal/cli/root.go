package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "splango",
	Short: "Split testing for web properties",
	Long: `splango assigns visitors to experiment variants, records conversion goals,
and reports per-variant funnels.

Visitors are served through "splango serve"; the remaining commands administer
experiments, goals and saved reports against the same database.`,
	SilenceUsage: true,
}

var (
	logLevel  string
	logFormat string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(migrateCmd)
}
