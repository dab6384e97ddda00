package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2, cfg.Build.MinContributorsAtAddress)
	assert.Equal(t, "csv", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 12, cfg.Filter.TopLimit)
	assert.False(t, cfg.Validate(ValidationContextServe).HasErrors())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
build:
  input_path: contributions.csv
  min_contributors_at_address: 3
cache:
  backend: bolt
  ttl: 5m
server:
  addr: ":9000"
`), 0644))

	t.Setenv("ADDRLINKS_BUILD_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("NEO4J_URI", "bolt://graph:7687")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "contributions.csv", cfg.Build.InputPath)
	assert.Equal(t, 3, cfg.Build.MinContributorsAtAddress)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Build.OutputDir)
	assert.Equal(t, "bolt", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	// untouched keys keep their defaults
	assert.Equal(t, "csv", cfg.Storage.Type)
	assert.Equal(t, 500, cfg.Neo4j.BatchSize)
}

func TestLoadPullsSecretsFromKeychain(t *testing.T) {
	keyring.MockInit()
	t.Setenv("NEO4J_PASSWORD", "")
	require.NoError(t, NewKeyringManager().Set(SecretNeo4jPassword, "kc-password"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "kc-password", cfg.Neo4j.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		ctx        ValidationContext
		wantErrors bool
	}{
		{"defaults build", func(c *Config) {}, ValidationContextBuild, false},
		{"zero floor", func(c *Config) { c.Build.MinContributorsAtAddress = 0 }, ValidationContextBuild, true},
		{"unknown storage", func(c *Config) { c.Storage.Type = "parquet" }, ValidationContextBuild, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres" }, ValidationContextBuild, true},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Type = "postgres"
			c.Storage.PostgresDSN = "postgres://u:p@db:5432/addrlinks"
		}, ValidationContextBuild, false},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, ValidationContextServe, true},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, ValidationContextServe, true},
		{"export without password", func(c *Config) { c.Neo4j.Password = "" }, ValidationContextExport, true},
		{"export with password", func(c *Config) { c.Neo4j.Password = "long-enough-secret" }, ValidationContextExport, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate(tt.ctx)
			assert.Equal(t, tt.wantErrors, result.HasErrors(), result.Error())
			if tt.wantErrors {
				assert.Error(t, result.Err())
			} else {
				assert.NoError(t, result.Err())
			}
		})
	}
}

func TestValidateFilterFloorWarning(t *testing.T) {
	cfg := Default()
	cfg.Build.MinContributorsAtAddress = 4
	cfg.Filter.DefaultMinContributors = 2

	result := cfg.Validate(ValidationContextServe)
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}

func TestSaveRoundTrip(t *testing.T) {
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Build.MinContributorsAtAddress = 5
	cfg.Neo4j.Password = "never-written"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Build.MinContributorsAtAddress)
}
