package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"tonscraper/pkg/auth"
	"tonscraper/pkg/config"
	"tonscraper/pkg/filter"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tonscraper configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (TONSCRAPER_*)
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file holding every option at its default value.

The file is created as ./tonscraper.yaml unless --config names another path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (API key masked)",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

Besides the value ranges this checks that every custom filter pattern
compiles and that the storage and cursor directories can be created.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "tonscraper.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Println("\nNext steps:")
	ui.Println("1. Store an API key with 'tonscraper auth login' or set upstream.api_key")
	ui.Println("2. Run 'tonscraper config validate' to check the configuration")
	ui.Println("3. Start harvesting with 'tonscraper run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Upstream.APIKey != "" {
		display.Upstream.APIKey = auth.MaskKey(display.Upstream.APIKey)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var problems, warnings []string

	f := filter.New(cfg.Filter, logger.NewNopLogger())
	for _, e := range f.ConfigErrors() {
		problems = append(problems, e.Error())
	}

	for _, dir := range []string{cfg.Storage.Root, filepath.Dir(cfg.Checkpoint.Path)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s: %v", dir, err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if shadowed := cfg.Filter.ShadowedSystemShards(); len(shadowed) > 0 {
		warnings = append(warnings, fmt.Sprintf("system shards %v are also reserved; system_zero_threshold does not apply to them", shadowed))
	}
	if cfg.Upstream.APIKey == "" {
		warnings = append(warnings, "no API key configured; a stored key or the public rate limit will be used")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		problems = append(problems, "metrics enabled without a listen address")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		ui.PrintList(warnings, len(warnings))
	}
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		ui.PrintList(problems, len(problems))
		return fmt.Errorf("%d configuration error(s)", len(problems))
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintPanel("Summary", []ui.Row{
		{Label: "Storage root", Value: cfg.Storage.Root},
		{Label: "Cursor file", Value: cfg.Checkpoint.Path},
		{Label: "Page size", Value: fmt.Sprint(cfg.Harvest.PageSize)},
		{Label: "Concurrency", Value: fmt.Sprint(cfg.Harvest.MaxConcurrent)},
		{Label: "Max retries", Value: fmt.Sprint(cfg.Harvest.MaxRetries)},
		{Label: "Log level", Value: cfg.Logging.Level},
	})
	return nil
}
