package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"tonscraper/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tonscraper",
	Short: "Harvest TON account snapshots into a sharded file tree",
	Long: `tonscraper pages through the list of TON accounts, skips identifiers that look
like system or placeholder accounts, fetches the detail snapshot of every new
account and stores it as one JSON file in a hash-sharded directory tree.

Features:
  - Resumable: the cursor is persisted only after a page is fully processed
  - Bounded concurrency for detail fetches
  - Shared retry policy honouring Retry-After
  - Adaptive shard depth for trees of any size
  - Prometheus metrics endpoint`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuietMode(true)
		}
		if verbose {
			logLevel = "debug"
		}
		if cmd.Name() == "run" || cmd.Name() == "once" {
			ui.PrintBanner()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./tonscraper.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.SetVersionTemplate(`tonscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
