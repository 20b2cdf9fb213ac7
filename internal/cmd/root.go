// Package cmd wires the specsync command tree.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/log"
)

var (
	flagVerbose bool
	flagFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Sync a tasks document to a GitHub project board",
	Long: `specsync parses a structured tasks document (phases, task groups,
checklist tasks with dependency markers) and synchronizes it onto a
GitHub Projects board as a hierarchy of issues with custom fields and
blocked-by relationships.

Syncs are idempotent: every creation is preceded by a natural-key
lookup, so re-running after a failure resumes instead of duplicating.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := log.DefaultConfig()
		if flagVerbose {
			cfg = log.VerboseConfig()
		}
		log.SetDefaultLogger(log.New(cfg))
	},
}

// ExecuteContext runs the root command with the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "text", "output format (text, json, yaml)")
}
