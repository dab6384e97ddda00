package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "addrlinks"

	// SecretNeo4jPassword is the keychain item for the neo4j export password
	SecretNeo4jPassword = "neo4j-password"

	// SecretPostgresDSN is the keychain item for the postgres table store DSN
	SecretPostgresDSN = "postgres-dsn"
)

// secretEnv maps keychain items to the environment variable that overrides them
var secretEnv = map[string]string{
	SecretNeo4jPassword: "NEO4J_PASSWORD",
	SecretPostgresDSN:   "POSTGRES_DSN",
}

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// IsSecret reports whether name is a keychain-backed item
func IsSecret(name string) bool {
	_, ok := secretEnv[name]
	return ok
}

// Set stores a secret in the OS keychain
func (km *KeyringManager) Set(name, value string) error {
	if !IsSecret(name) {
		return fmt.Errorf("unknown secret %q", name)
	}
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	if err := keyring.Set(KeyringService, name, value); err != nil {
		km.logger.Error("failed to save secret to keychain", "secret", name, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("secret saved to keychain", "service", KeyringService, "secret", name)
	return nil
}

// Get reads a secret from the OS keychain; a missing item is not an error
func (km *KeyringManager) Get(name string) (string, error) {
	value, err := keyring.Get(KeyringService, name)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return value, nil
}

// Delete removes a secret from the OS keychain
func (km *KeyringManager) Delete(name string) error {
	err := keyring.Delete(KeyringService, name)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems where no secret service is running.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// SecretSource reports where a secret is coming from: "env", "keychain" or "none"
func (km *KeyringManager) SecretSource(name string) string {
	if env, ok := secretEnv[name]; ok && os.Getenv(env) != "" {
		return "env"
	}
	if v, _ := km.Get(name); v != "" {
		return "keychain"
	}
	return "none"
}

// MaskSecret masks a secret for display
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
