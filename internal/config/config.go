package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Neo4j   Neo4jConfig   `yaml:"neo4j" mapstructure:"neo4j"`
}

// BuildConfig controls the Graph Builder run
type BuildConfig struct {
	InputPath                string `yaml:"input_path" mapstructure:"input_path"`
	OutputDir                string `yaml:"output_dir" mapstructure:"output_dir"`
	MinContributorsAtAddress int    `yaml:"min_contributors_at_address" mapstructure:"min_contributors_at_address"`
	IDScheme                 string `yaml:"id_scheme" mapstructure:"id_scheme"` // "sequential" or "hash"
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "csv", "sqlite", "postgres"
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // "memory", "redis", "bolt"
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	BoltPath      string        `yaml:"bolt_path" mapstructure:"bolt_path"`
}

// FilterConfig holds runtime display defaults
type FilterConfig struct {
	DefaultMinContributors int `yaml:"default_min_contributors" mapstructure:"default_min_contributors"`
	TopLimit               int `yaml:"top_limit" mapstructure:"top_limit"`
}

type ServerConfig struct {
	Addr        string  `yaml:"addr" mapstructure:"addr"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	Watch       bool    `yaml:"watch" mapstructure:"watch"`
	OpenBrowser bool    `yaml:"open_browser" mapstructure:"open_browser"`
}

type Neo4jConfig struct {
	URI       string `yaml:"uri" mapstructure:"uri"`
	User      string `yaml:"user" mapstructure:"user"`
	Password  string `yaml:"password" mapstructure:"password"`
	Database  string `yaml:"database" mapstructure:"database"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			InputPath:                filepath.Join("data", "Cleaned_Full_Address_Contributions.csv"),
			OutputDir:                "data",
			MinContributorsAtAddress: 2,
			IDScheme:                 "sequential",
		},
		Storage: StorageConfig{
			Type:      "csv",
			LocalPath: filepath.Join("data", "addrlinks.db"),
		},
		Cache: CacheConfig{
			Backend:  "memory",
			TTL:      15 * time.Minute,
			BoltPath: filepath.Join("data", "filter-cache.db"),
		},
		Filter: FilterConfig{
			DefaultMinContributors: 2,
			TopLimit:               12,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8501",
			RateLimit: 20,
			Burst:     40,
			Watch:     true,
		},
		Neo4j: Neo4jConfig{
			URI:       "bolt://localhost:7687",
			User:      "neo4j",
			Database:  "neo4j",
			BatchSize: 500,
		},
	}
}

// setDefaults registers every leaf key so env vars and partial files
// overlay the defaults instead of replacing whole sections.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("build.input_path", cfg.Build.InputPath)
	v.SetDefault("build.output_dir", cfg.Build.OutputDir)
	v.SetDefault("build.min_contributors_at_address", cfg.Build.MinContributorsAtAddress)
	v.SetDefault("build.id_scheme", cfg.Build.IDScheme)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.bolt_path", cfg.Cache.BoltPath)

	v.SetDefault("filter.default_min_contributors", cfg.Filter.DefaultMinContributors)
	v.SetDefault("filter.top_limit", cfg.Filter.TopLimit)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.burst", cfg.Server.Burst)
	v.SetDefault("server.watch", cfg.Server.Watch)
	v.SetDefault("server.open_browser", cfg.Server.OpenBrowser)

	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.user", cfg.Neo4j.User)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.batch_size", cfg.Neo4j.BatchSize)
}

// Load loads configuration from file, .env files and the environment
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// ADDRLINKS_BUILD_MIN_CONTRIBUTORS_AT_ADDRESS -> build.min_contributors_at_address
	v.SetEnvPrefix("ADDRLINKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".addrlinks")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".addrlinks"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults apply
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyKeyringSecrets(cfg, NewKeyringManager())

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence; godotenv never
// overrides variables that are already set.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		homeEnvFile := filepath.Join(homeDir, ".addrlinks", ".env")
		if _, err := os.Stat(homeEnvFile); err == nil {
			godotenv.Load(homeEnvFile)
		}
	}
}

// applyEnvOverrides applies conventional (unprefixed) environment variables
func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("INPUT_PATH"); p != "" {
		cfg.Build.InputPath = expandPath(p)
	}
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		cfg.Build.OutputDir = expandPath(dir)
	}
	if n := os.Getenv("MIN_CONTRIBUTORS_AT_ADDRESS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Build.MinContributorsAtAddress = v
		}
	}

	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Cache.RedisPassword = pw
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if pw := os.Getenv("NEO4J_PASSWORD"); pw != "" {
		cfg.Neo4j.Password = pw
	}
}

// applyKeyringSecrets fills secrets that are still empty from the OS keychain
func applyKeyringSecrets(cfg *Config, km *KeyringManager) {
	if cfg.Neo4j.Password != "" && cfg.Storage.PostgresDSN != "" {
		return
	}
	if !km.IsAvailable() {
		return
	}
	if cfg.Neo4j.Password == "" {
		if pw, err := km.Get(SecretNeo4jPassword); err == nil && pw != "" {
			cfg.Neo4j.Password = pw
		}
	}
	if cfg.Storage.PostgresDSN == "" {
		if dsn, err := km.Get(SecretPostgresDSN); err == nil && dsn != "" {
			cfg.Storage.PostgresDSN = dsn
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration as yaml; secrets are never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("build", c.Build)
	v.Set("storage", StorageConfig{Type: c.Storage.Type, LocalPath: c.Storage.LocalPath})
	v.Set("cache", CacheConfig{Backend: c.Cache.Backend, TTL: c.Cache.TTL, RedisAddr: c.Cache.RedisAddr, BoltPath: c.Cache.BoltPath})
	v.Set("filter", c.Filter)
	v.Set("server", c.Server)
	v.Set("neo4j", Neo4jConfig{URI: c.Neo4j.URI, User: c.Neo4j.User, Database: c.Neo4j.Database, BatchSize: c.Neo4j.BatchSize})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
