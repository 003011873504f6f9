package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"tonscraper/pkg/auth"
	"tonscraper/pkg/checkpoint"
	"tonscraper/pkg/config"
	"tonscraper/pkg/filter"
	"tonscraper/pkg/harvester"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/metrics"
	"tonscraper/pkg/ratelimit"
	"tonscraper/pkg/retry"
	"tonscraper/pkg/storage"
	"tonscraper/pkg/toncenter"
	"tonscraper/pkg/ui"
)

// Harvest flags shared by run and once
var (
	apiKey         string
	profile        string
	pageSize       int
	concurrent     int
	maxRetries     int
	maxIterations  int
	storageRoot    string
	depth          int
	checkpointPath string
	filterPatterns []string
	metricsAddr    string
)

func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&apiKey, "api-key", "", "upstream API key (default: stored credential or TONSCRAPER_API_KEY)")
	cmd.Flags().StringVar(&profile, "profile", auth.DefaultProfile, "stored credential profile")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "identifiers per page")
	cmd.Flags().IntVar(&concurrent, "concurrent", 3, "concurrent detail fetches (1-10)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retries per upstream call")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "stop after this many pages (0 = until exhausted)")
	cmd.Flags().StringVarP(&storageRoot, "output", "o", "", "artifact tree root")
	cmd.Flags().IntVar(&depth, "depth", 0, "shard depth override (2-6, 0 = auto)")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "cursor file")
	cmd.Flags().StringSliceVar(&filterPatterns, "skip-pattern", nil, "extra regular expression of identifiers to skip")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
}

// loadConfig merges the flags that were set on cmd over file, env and defaults,
// then initializes the global logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("api-key") {
		flags["api-key"] = apiKey
	}
	if changed("page-size") {
		flags["page-size"] = pageSize
	}
	if changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if changed("max-retries") {
		flags["max-retries"] = maxRetries
	}
	if changed("max-iterations") {
		flags["max-iterations"] = maxIterations
	}
	if changed("output") {
		flags["storage-root"] = storageRoot
	}
	if changed("depth") {
		flags["depth"] = depth
	}
	if changed("checkpoint") {
		flags["checkpoint"] = checkpointPath
	}
	if changed("skip-pattern") {
		flags["filter-patterns"] = filterPatterns
	}
	if changed("metrics-addr") {
		flags["metrics-addr"] = metricsAddr
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// app holds the wired components of one process
type app struct {
	cfg       *config.Config
	log       logger.Logger
	metrics   *metrics.Metrics
	client    *toncenter.Client
	filter    *filter.Filter
	store     *storage.Store
	depth     storage.DepthResolution
	cursor    *checkpoint.Manager
	harvester *harvester.Harvester
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.GetLogger()
	resolveAPIKey(cfg, log)

	m := metrics.New()

	client := toncenter.NewClient(cfg.Upstream, retry.PolicyFromConfig(cfg.Harvest), log.WithField("component", "toncenter"))
	client.SetCooloff(ratelimit.NewCooloff())
	client.SetObserver(m)

	f := filter.New(cfg.Filter, log.WithField("component", "filter"))

	resolution, err := storage.ResolveDepth(cfg.Storage.Depth, cfg.Storage.ExpectedFiles, cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shard depth: %w", err)
	}
	if resolution.Saturated {
		log.WarnWithFields("Expected file count exceeds the deepest layout", map[string]interface{}{
			"expected_files": cfg.Storage.ExpectedFiles,
			"depth":          resolution.Depth,
		})
	}
	log.InfoWithFields("Shard depth resolved", map[string]interface{}{
		"depth":  resolution.Depth,
		"source": string(resolution.Source),
		"root":   cfg.Storage.Root,
	})

	store, err := storage.NewStore(cfg.Storage.Root, resolution.Depth, cfg.Storage.CosmeticPrefixes)
	if err != nil {
		return nil, err
	}

	cursor := checkpoint.NewManager(cfg.Checkpoint.Path, log.WithField("component", "checkpoint"))

	h, err := harvester.New(harvester.OptionsFromConfig(cfg.Harvest), client, client, f, store, cursor,
		log.WithField("component", "harvester"))
	if err != nil {
		return nil, err
	}
	h.SetRecorder(m)

	return &app{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		client:    client,
		filter:    f,
		store:     store,
		depth:     resolution,
		cursor:    cursor,
		harvester: h,
	}, nil
}

// resolveAPIKey falls back to the credential store when no key was configured
func resolveAPIKey(cfg *config.Config, log logger.Logger) {
	if cfg.Upstream.APIKey != "" {
		return
	}
	manager, err := auth.NewManager("")
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable, continuing without API key")
		return
	}
	if key := manager.APIKey(profile); key != "" {
		cfg.Upstream.APIKey = key
		log.WithField("profile", profile).Info("Using stored API key")
		return
	}
	log.Warn("No API key configured, the public rate limit applies")
}

func summaryRows(s harvester.BatchSummary) []ui.Row {
	return []ui.Row{
		{Label: "Total", Value: strconv.Itoa(s.Total)},
		{Label: "Saved", Value: strconv.Itoa(s.Successful)},
		{Label: "Skipped (existing)", Value: strconv.Itoa(s.SkippedExisting)},
		{Label: "Skipped (filter)", Value: strconv.Itoa(s.SkippedByFilter)},
		{Label: "Failed", Value: strconv.Itoa(s.Failed)},
	}
}

func printErrors(s harvester.BatchSummary) {
	if len(s.Errors) == 0 {
		return
	}
	ui.PrintWarning("Failed identifiers")
	items := make([]string, 0, len(s.Errors))
	for _, e := range s.Errors {
		items = append(items, e.Identifier+": "+e.Error)
	}
	ui.PrintList(items, 10)
}
