package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/addrlinks/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextBuild - addrlinks build/ensure needs an input and a store
	ValidationContextBuild ValidationContext = "build"
	// ValidationContextServe - addrlinks serve/mcp needs a store and a result cache
	ValidationContextServe ValidationContext = "serve"
	// ValidationContextExport - addrlinks export needs neo4j
	ValidationContextExport ValidationContext = "export"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ✗ %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ! %s\n", warn))
		}
	}

	return sb.String()
}

// Err converts a failed result into a config error, or nil
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", vr.Error())
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextBuild:
		c.validateBuild(result, true)
		c.validateStorage(result)
	case ValidationContextServe:
		c.validateBuild(result, false)
		c.validateStorage(result)
		c.validateCache(result)
		c.validateFilter(result)
		c.validateServer(result)
	case ValidationContextExport:
		c.validateStorage(result)
		c.validateNeo4j(result)
	case ValidationContextAll:
		c.validateBuild(result, false)
		c.validateStorage(result)
		c.validateCache(result)
		c.validateFilter(result)
		c.validateServer(result)
		c.validateNeo4j(result)
	}

	return result
}

func (c *Config) validateBuild(result *ValidationResult, requireInput bool) {
	if c.Build.InputPath == "" {
		if requireInput {
			result.AddError("build.input_path is required but not set")
		} else {
			result.AddWarning("build.input_path is not set; rebuilds will fail")
		}
	}
	if c.Build.OutputDir == "" {
		result.AddError("build.output_dir is required but not set")
	}
	if c.Build.MinContributorsAtAddress < 1 {
		result.AddError("build.min_contributors_at_address must be >= 1, got %d", c.Build.MinContributorsAtAddress)
	}
	switch c.Build.IDScheme {
	case "", "sequential", "hash":
	default:
		result.AddError("build.id_scheme must be sequential or hash, got %q", c.Build.IDScheme)
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "csv":
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required for postgres storage")
			return
		}
		if !strings.HasPrefix(c.Storage.PostgresDSN, "postgres://") && !strings.HasPrefix(c.Storage.PostgresDSN, "postgresql://") {
			result.AddError("POSTGRES_DSN must start with postgres:// or postgresql://")
		}
		if strings.Contains(c.Storage.PostgresDSN, "sslmode=disable") {
			result.AddWarning("POSTGRES_DSN has sslmode=disable")
		}
	default:
		result.AddError("storage.type must be csv, sqlite or postgres, got %q", c.Storage.Type)
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			result.AddError("cache.redis_addr is required for the redis cache backend")
		}
	case "bolt":
		if c.Cache.BoltPath == "" {
			result.AddError("cache.bolt_path is required for the bolt cache backend")
		}
	default:
		result.AddError("cache.backend must be memory, redis or bolt, got %q", c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		result.AddWarning("cache.ttl is not positive; cached filter results never expire")
	}
}

func (c *Config) validateFilter(result *ValidationResult) {
	if c.Filter.DefaultMinContributors < c.Build.MinContributorsAtAddress {
		result.AddWarning("filter.default_min_contributors (%d) is below the build floor (%d); the floor applies",
			c.Filter.DefaultMinContributors, c.Build.MinContributorsAtAddress)
	}
	if c.Filter.TopLimit <= 0 {
		result.AddWarning("filter.top_limit is not positive, will use 12")
	}
}

func (c *Config) validateServer(result *ValidationResult) {
	if c.Server.Addr == "" {
		result.AddError("server.addr is required but not set")
	}
	if c.Server.RateLimit < 0 {
		result.AddError("server.rate_limit must be >= 0, got %.2f", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.Burst <= 0 {
		result.AddWarning("server.burst is not positive, will use 1")
	}
}

func (c *Config) validateNeo4j(result *ValidationResult) {
	if c.Neo4j.URI == "" {
		result.AddError("NEO4J_URI is required but not set")
	} else if _, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	}

	if c.Neo4j.User == "" {
		result.AddError("NEO4J_USER is required but not set")
	}

	if c.Neo4j.Password == "" {
		result.AddError("NEO4J_PASSWORD is required but not set. Set it via environment variable or `addrlinks config set-secret neo4j-password`.")
	} else if c.Neo4j.Password == "password" || c.Neo4j.Password == "neo4j" {
		result.AddWarning("NEO4J_PASSWORD is set to a very common password (%s)", c.Neo4j.Password)
	}

	if c.Neo4j.Database == "" {
		result.AddWarning("NEO4J_DATABASE is not set, will use 'neo4j' as default")
	}
	if c.Neo4j.BatchSize <= 0 {
		result.AddWarning("neo4j.batch_size is not positive, will use 500")
	}
}
