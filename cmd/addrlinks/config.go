package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/addrlinks/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage addrlinks configuration",
	Long:  `View, validate and initialize addrlinks configuration and keychain secrets.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [build|serve|export|all]",
	Short: "Validate the configuration for a command",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to .addrlinks/config.yaml",
	RunE:  runConfigInit,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <neo4j-password|postgres-dsn> [value]",
	Short: "Store a secret in the OS keychain",
	Long: `Store a secret in the OS keychain instead of the config file.
When value is omitted it is read from the terminal without echo.

Examples:
  addrlinks config set-secret neo4j-password
  echo "$DSN" | addrlinks config set-secret postgres-dsn`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret <neo4j-password|postgres-dsn>",
	Short: "Remove a secret from the OS keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.IsSecret(args[0]) {
			return fmt.Errorf("unknown secret %q", args[0])
		}
		if err := config.NewKeyringManager().Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s from the OS keychain\n", args[0])
		return nil
	},
}

var configForce bool

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()

	fmt.Println("addrlinks configuration")
	fmt.Println(strings.Repeat("=", 40))

	fmt.Printf("\nBuild:\n")
	fmt.Printf("  build.input_path = %s\n", cfg.Build.InputPath)
	fmt.Printf("  build.output_dir = %s\n", cfg.Build.OutputDir)
	fmt.Printf("  build.min_contributors_at_address = %d\n", cfg.Build.MinContributorsAtAddress)
	fmt.Printf("  build.id_scheme = %s\n", cfg.Build.IDScheme)

	fmt.Printf("\nStorage:\n")
	fmt.Printf("  storage.type = %s\n", cfg.Storage.Type)
	fmt.Printf("  storage.local_path = %s\n", cfg.Storage.LocalPath)
	fmt.Printf("  storage.postgres_dsn = %s (source: %s)\n",
		config.MaskSecret(cfg.Storage.PostgresDSN), km.SecretSource(config.SecretPostgresDSN))

	fmt.Printf("\nCache:\n")
	fmt.Printf("  cache.backend = %s\n", cfg.Cache.Backend)
	fmt.Printf("  cache.ttl = %s\n", cfg.Cache.TTL)
	if cfg.Cache.RedisAddr != "" {
		fmt.Printf("  cache.redis_addr = %s\n", cfg.Cache.RedisAddr)
	}
	fmt.Printf("  cache.bolt_path = %s\n", cfg.Cache.BoltPath)

	fmt.Printf("\nFilter:\n")
	fmt.Printf("  filter.default_min_contributors = %d\n", cfg.Filter.DefaultMinContributors)
	fmt.Printf("  filter.top_limit = %d\n", cfg.Filter.TopLimit)

	fmt.Printf("\nServer:\n")
	fmt.Printf("  server.addr = %s\n", cfg.Server.Addr)
	fmt.Printf("  server.rate_limit = %g\n", cfg.Server.RateLimit)
	fmt.Printf("  server.burst = %d\n", cfg.Server.Burst)
	fmt.Printf("  server.watch = %v\n", cfg.Server.Watch)

	fmt.Printf("\nNeo4j:\n")
	fmt.Printf("  neo4j.uri = %s\n", cfg.Neo4j.URI)
	fmt.Printf("  neo4j.user = %s\n", cfg.Neo4j.User)
	fmt.Printf("  neo4j.password = %s (source: %s)\n",
		config.MaskSecret(cfg.Neo4j.Password), km.SecretSource(config.SecretNeo4jPassword))
	fmt.Printf("  neo4j.database = %s\n", cfg.Neo4j.Database)
	fmt.Printf("  neo4j.batch_size = %d\n", cfg.Neo4j.BatchSize)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := config.ValidationContextAll
	if len(args) == 1 {
		ctx = config.ValidationContext(args[0])
	}
	switch ctx {
	case config.ValidationContextBuild, config.ValidationContextServe,
		config.ValidationContextExport, config.ValidationContextAll:
	default:
		return fmt.Errorf("unknown validation context %q", args[0])
	}

	result := cfg.Validate(ctx)
	if !result.HasErrors() && len(result.Warnings) == 0 {
		fmt.Println("Configuration is valid")
		return nil
	}
	fmt.Print(result.Error())
	return result.Err()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = filepath.Join(".addrlinks", "config.yaml")
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !config.IsSecret(name) {
		return fmt.Errorf("unknown secret %q (want %s or %s)",
			name, config.SecretNeo4jPassword, config.SecretPostgresDSN)
	}

	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain is not available; set the value through the environment instead")
	}

	value := ""
	if len(args) == 2 {
		value = args[1]
	} else {
		var err error
		value, err = readSecret(name)
		if err != nil {
			return err
		}
	}

	if err := km.Set(name, value); err != nil {
		return err
	}
	fmt.Printf("Saved %s to the OS keychain\n", name)
	return nil
}

// readSecret prompts without echo on a terminal and reads one line otherwise
func readSecret(name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", name)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s from stdin: %w", name, err)
	}
	return strings.TrimSpace(line), nil
}
