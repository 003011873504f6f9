package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MaxConcurrentLimit bounds the detail fetch pool
	MaxConcurrentLimit = 10
	// MaxPageSize bounds the number of identifiers requested per page
	MaxPageSize = 1000

	envPrefix = "TONSCRAPER_"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Upstream endpoints and credential
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Pagination, concurrency and retry settings
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Artifact tree settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Cursor file location
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Identifier pre-filter heuristics
	Filter FilterConfig `yaml:"filter" json:"filter"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// UpstreamConfig holds the remote service configuration
type UpstreamConfig struct {
	APIKey            string        `yaml:"api_key" json:"api_key"`
	GraphQLURL        string        `yaml:"graphql_url" json:"graphql_url"`
	InspectURL        string        `yaml:"inspect_url" json:"inspect_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
}

// HarvestConfig holds the iteration settings
type HarvestConfig struct {
	PageSize       int           `yaml:"page_size" json:"page_size"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	IterationDelay time.Duration `yaml:"iteration_delay" json:"iteration_delay"`
	MaxIterations  int           `yaml:"max_iterations" json:"max_iterations"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// StorageConfig holds the artifact tree configuration
type StorageConfig struct {
	Root string `yaml:"root" json:"root"`
	// Depth overrides the shard depth; 0 means detect from the tree or compute from ExpectedFiles
	Depth            int      `yaml:"depth" json:"depth"`
	ExpectedFiles    int64    `yaml:"expected_files" json:"expected_files"`
	CosmeticPrefixes []string `yaml:"cosmetic_prefixes" json:"cosmetic_prefixes"`
}

// CheckpointConfig holds the cursor file location
type CheckpointConfig struct {
	Path string `yaml:"path" json:"path"`
}

// FilterConfig holds the identifier heuristics. The thresholds are empirically tuned
// and may be overridden without code changes.
type FilterConfig struct {
	// ReservedShards are skipped before any other rule
	ReservedShards []string `yaml:"reserved_shards" json:"reserved_shards"`
	// SystemShards use SystemZeroThreshold. A shard that is also reserved never reaches
	// the zero check, so with the defaults the system threshold only applies once an
	// operator removes "-1" from ReservedShards.
	SystemShards        []string       `yaml:"system_shards" json:"system_shards"`
	ShardPayloadLengths map[string]int `yaml:"shard_payload_lengths" json:"shard_payload_lengths"`
	SystemZeroThreshold float64        `yaml:"system_zero_threshold" json:"system_zero_threshold"`
	NormalZeroThreshold float64        `yaml:"normal_zero_threshold" json:"normal_zero_threshold"`
	EdgeRunLength       int            `yaml:"edge_run_length" json:"edge_run_length"`
	ChunkSize           int            `yaml:"chunk_size" json:"chunk_size"`
	MinDistinctChunks   int            `yaml:"min_distinct_chunks" json:"min_distinct_chunks"`
	MinLength           int            `yaml:"min_length" json:"min_length"`
	CustomPatterns      []string       `yaml:"custom_patterns" json:"custom_patterns"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			GraphQLURL:        "https://dton.io/graphql",
			InspectURL:        "https://toncenter.com/api/v3/addressInformation",
			UserAgent:         "tonscraper/1.0",
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Harvest: HarvestConfig{
			PageSize:       100,
			MaxConcurrent:  3,
			MaxRetries:     3,
			BaseDelay:      1 * time.Second,
			MaxDelay:       60 * time.Second,
			IterationDelay: 0,
			MaxIterations:  0, // 0 means until exhausted
			ShutdownGrace:  30 * time.Second,
		},
		Storage: StorageConfig{
			Root:             "./data/accounts",
			Depth:            0,
			ExpectedFiles:    100_000_000,
			CosmeticPrefixes: []string{"0:"},
		},
		Checkpoint: CheckpointConfig{
			Path: "./data/cursor.json",
		},
		Filter: DefaultFilterConfig(),
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9102",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ShadowedSystemShards returns the system shards that are also reserved, for which
// SystemZeroThreshold has no effect
func (f FilterConfig) ShadowedSystemShards() []string {
	reserved := make(map[string]bool, len(f.ReservedShards))
	for _, r := range f.ReservedShards {
		reserved[r] = true
	}
	var out []string
	for _, s := range f.SystemShards {
		if reserved[s] {
			out = append(out, s)
		}
	}
	return out
}

// DefaultFilterConfig returns the heuristic thresholds used when nothing is configured
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ReservedShards: []string{"-1"},
		SystemShards:   []string{"-1"},
		ShardPayloadLengths: map[string]int{
			"0":  64,
			"-1": 64,
		},
		SystemZeroThreshold: 0.30,
		NormalZeroThreshold: 0.50,
		EdgeRunLength:       16,
		ChunkSize:           8,
		MinDistinctChunks:   3,
		MinLength:           10,
	}
}

// LoadFromEnv loads configuration from TONSCRAPER_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, target *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*target = v
		}
	}
	setInt := func(name string, target *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*target = n
		}
	}
	setDuration := func(name string, target *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*target = d
		}
	}

	// Upstream
	setString("API_KEY", &c.Upstream.APIKey)
	setString("GRAPHQL_URL", &c.Upstream.GraphQLURL)
	setString("INSPECT_URL", &c.Upstream.InspectURL)
	if v := os.Getenv(envPrefix + "REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_SECOND: %w", envPrefix, err))
		} else {
			c.Upstream.RequestsPerSecond = rps
		}
	}

	// Harvest
	setInt("PAGE_SIZE", &c.Harvest.PageSize)
	setInt("MAX_CONCURRENT", &c.Harvest.MaxConcurrent)
	setInt("MAX_RETRIES", &c.Harvest.MaxRetries)
	setDuration("BASE_DELAY", &c.Harvest.BaseDelay)
	setDuration("MAX_DELAY", &c.Harvest.MaxDelay)

	// Storage and checkpoint
	setString("STORAGE_ROOT", &c.Storage.Root)
	setInt("DEPTH", &c.Storage.Depth)
	setString("CHECKPOINT_PATH", &c.Checkpoint.Path)

	// Filter
	if v := os.Getenv(envPrefix + "FILTER_PATTERNS"); v != "" {
		c.Filter.CustomPatterns = splitList(v)
	}

	// Metrics and logging
	setString("METRICS_ADDR", &c.Metrics.ListenAddr)
	if v := os.Getenv(envPrefix + "METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.EqualFold(v, "true")
	}
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"tonscraper.yaml",
		".tonscraper.yaml",
		".tonscraper.yml",
		filepath.Join(home, ".config", "tonscraper", "config.yaml"),
		filepath.Join(home, ".config", "tonscraper", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Upstream
	if c.Upstream.GraphQLURL == "" {
		errs = append(errs, errors.New("graphql url is required"))
	}
	if c.Upstream.InspectURL == "" {
		errs = append(errs, errors.New("inspect url is required"))
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Upstream.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}

	// Harvest
	if c.Harvest.PageSize <= 0 || c.Harvest.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("page size must be between 1 and %d", MaxPageSize))
	}
	if c.Harvest.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("max concurrent must be positive"))
	}
	if c.Harvest.MaxConcurrent > MaxConcurrentLimit {
		errs = append(errs, fmt.Errorf("max concurrent should not exceed %d", MaxConcurrentLimit))
	}
	if c.Harvest.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Harvest.BaseDelay < 0 {
		errs = append(errs, errors.New("base delay cannot be negative"))
	}
	if c.Harvest.MaxDelay <= 0 {
		errs = append(errs, errors.New("max delay must be positive"))
	}
	if c.Harvest.MaxIterations < 0 {
		errs = append(errs, errors.New("max iterations cannot be negative"))
	}

	// Storage
	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage root is required"))
	}
	if c.Storage.Depth != 0 && (c.Storage.Depth < 2 || c.Storage.Depth > 6) {
		errs = append(errs, errors.New("storage depth must be 0 (auto) or between 2 and 6"))
	}
	if c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint path is required"))
	}

	// Filter
	if c.Filter.SystemZeroThreshold < 0 || c.Filter.SystemZeroThreshold > 1 ||
		c.Filter.NormalZeroThreshold < 0 || c.Filter.NormalZeroThreshold > 1 {
		errs = append(errs, errors.New("zero thresholds must be between 0 and 1"))
	}
	if c.Filter.ChunkSize <= 0 {
		errs = append(errs, errors.New("filter chunk size must be positive"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["api-key"].(string); ok && v != "" {
		c.Upstream.APIKey = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Harvest.PageSize = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Harvest.MaxConcurrent = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Harvest.MaxRetries = v
	}
	if v, ok := flags["max-iterations"].(int); ok && v >= 0 {
		c.Harvest.MaxIterations = v
	}
	if v, ok := flags["storage-root"].(string); ok && v != "" {
		c.Storage.Root = v
	}
	if v, ok := flags["depth"].(int); ok && v > 0 {
		c.Storage.Depth = v
	}
	if v, ok := flags["checkpoint"].(string); ok && v != "" {
		c.Checkpoint.Path = v
	}
	if v, ok := flags["filter-patterns"].([]string); ok && len(v) > 0 {
		c.Filter.CustomPatterns = append(c.Filter.CustomPatterns, v...)
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tonscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
