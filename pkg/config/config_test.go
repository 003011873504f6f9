package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 100, config.Harvest.PageSize)
	assert.Equal(t, 3, config.Harvest.MaxConcurrent)
	assert.Equal(t, 3, config.Harvest.MaxRetries)
	assert.Equal(t, time.Second, config.Harvest.BaseDelay)
	assert.Equal(t, 60*time.Second, config.Harvest.MaxDelay)
	assert.Equal(t, 0, config.Storage.Depth)
	assert.Equal(t, []string{"-1"}, config.Filter.ReservedShards)
	assert.Equal(t, 64, config.Filter.ShardPayloadLengths["0"])
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TONSCRAPER_API_KEY", "secret-key")
	t.Setenv("TONSCRAPER_PAGE_SIZE", "250")
	t.Setenv("TONSCRAPER_MAX_CONCURRENT", "5")
	t.Setenv("TONSCRAPER_MAX_RETRIES", "7")
	t.Setenv("TONSCRAPER_BASE_DELAY", "250ms")
	t.Setenv("TONSCRAPER_MAX_DELAY", "30s")
	t.Setenv("TONSCRAPER_STORAGE_ROOT", "/tmp/accounts")
	t.Setenv("TONSCRAPER_DEPTH", "4")
	t.Setenv("TONSCRAPER_FILTER_PATTERNS", "^0:dead, ^0:beef ,")
	t.Setenv("TONSCRAPER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "secret-key", config.Upstream.APIKey)
	assert.Equal(t, 250, config.Harvest.PageSize)
	assert.Equal(t, 5, config.Harvest.MaxConcurrent)
	assert.Equal(t, 7, config.Harvest.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, config.Harvest.BaseDelay)
	assert.Equal(t, 30*time.Second, config.Harvest.MaxDelay)
	assert.Equal(t, "/tmp/accounts", config.Storage.Root)
	assert.Equal(t, 4, config.Storage.Depth)
	assert.Equal(t, []string{"^0:dead", "^0:beef"}, config.Filter.CustomPatterns)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("TONSCRAPER_PAGE_SIZE", "lots")
	t.Setenv("TONSCRAPER_MAX_DELAY", "forever")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TONSCRAPER_PAGE_SIZE")
	assert.Contains(t, err.Error(), "TONSCRAPER_MAX_DELAY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"concurrency too high", func(c *Config) { c.Harvest.MaxConcurrent = 11 }, true},
		{"concurrency zero", func(c *Config) { c.Harvest.MaxConcurrent = 0 }, true},
		{"concurrency at bound", func(c *Config) { c.Harvest.MaxConcurrent = 10 }, false},
		{"page size too large", func(c *Config) { c.Harvest.PageSize = MaxPageSize + 1 }, true},
		{"negative retries", func(c *Config) { c.Harvest.MaxRetries = -1 }, true},
		{"depth out of range", func(c *Config) { c.Storage.Depth = 7 }, true},
		{"depth override", func(c *Config) { c.Storage.Depth = 3 }, false},
		{"missing root", func(c *Config) { c.Storage.Root = "" }, true},
		{"missing checkpoint", func(c *Config) { c.Checkpoint.Path = "" }, true},
		{"bad zero threshold", func(c *Config) { c.Filter.NormalZeroThreshold = 1.5 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "chatty" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
upstream:
  graphql_url: http://localhost:8080/graphql
harvest:
  page_size: 50
  max_concurrent: 2
  base_delay: 500ms
storage:
  root: /srv/accounts
  depth: 3
filter:
  reserved_shards: []
  custom_patterns:
    - "^0:ffff"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, "http://localhost:8080/graphql", config.Upstream.GraphQLURL)
	assert.Equal(t, 50, config.Harvest.PageSize)
	assert.Equal(t, 2, config.Harvest.MaxConcurrent)
	assert.Equal(t, 500*time.Millisecond, config.Harvest.BaseDelay)
	assert.Equal(t, "/srv/accounts", config.Storage.Root)
	assert.Equal(t, 3, config.Storage.Depth)
	assert.Empty(t, config.Filter.ReservedShards)
	assert.Equal(t, []string{"^0:ffff"}, config.Filter.CustomPatterns)
	// Untouched sections keep their defaults
	assert.Equal(t, 60*time.Second, config.Harvest.MaxDelay)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harvest:\n  page_size: 20\n  max_concurrent: 2\n"), 0644))

	t.Setenv("TONSCRAPER_MAX_CONCURRENT", "4")

	config, err := Load(path, map[string]interface{}{
		"concurrent": 6,
		"log-level":  "warn",
	})
	require.NoError(t, err)

	assert.Equal(t, 20, config.Harvest.PageSize)
	assert.Equal(t, 6, config.Harvest.MaxConcurrent)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoadFailsValidation(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	_, err = Load("", map[string]interface{}{"concurrent": 50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := DefaultConfig()
	original.Harvest.PageSize = 42
	require.NoError(t, original.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 42, loaded.Harvest.PageSize)
}

func TestShadowedSystemShards(t *testing.T) {
	f := DefaultFilterConfig()
	assert.Equal(t, []string{"-1"}, f.ShadowedSystemShards())

	f.ReservedShards = []string{"-2"}
	assert.Empty(t, f.ShadowedSystemShards())

	f.ReservedShards = []string{"-1", "0"}
	f.SystemShards = []string{"0", "1"}
	assert.Equal(t, []string{"0"}, f.ShadowedSystemShards())
}
