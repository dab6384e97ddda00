package config

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringManager_SetAndGet(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	if err := km.Set(SecretNeo4jPassword, "s3cret-password"); err != nil {
		t.Fatalf("Failed to save secret: %v", err)
	}

	got, err := km.Get(SecretNeo4jPassword)
	if err != nil {
		t.Fatalf("Failed to get secret: %v", err)
	}
	if got != "s3cret-password" {
		t.Errorf("Expected s3cret-password, got %s", got)
	}

	if err := km.Delete(SecretNeo4jPassword); err != nil {
		t.Fatalf("Failed to delete secret: %v", err)
	}
	got, _ = km.Get(SecretNeo4jPassword)
	if got != "" {
		t.Errorf("Expected secret to be gone, got %s", got)
	}
}

func TestKeyringManager_RejectsUnknownSecret(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	if err := km.Set("openai-api-key", "x"); err == nil {
		t.Error("Expected error for unknown secret")
	}
	if err := km.Set(SecretPostgresDSN, ""); err == nil {
		t.Error("Expected error for empty value")
	}
}

func TestSecretSource(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	t.Setenv("NEO4J_PASSWORD", "")
	if src := km.SecretSource(SecretNeo4jPassword); src != "none" {
		t.Errorf("Expected none, got %s", src)
	}

	km.Set(SecretNeo4jPassword, "from-keychain")
	if src := km.SecretSource(SecretNeo4jPassword); src != "keychain" {
		t.Errorf("Expected keychain, got %s", src)
	}

	t.Setenv("NEO4J_PASSWORD", "from-env")
	if src := km.SecretSource(SecretNeo4jPassword); src != "env" {
		t.Errorf("Expected env, got %s", src)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"postgres://user:pw@host/db", "post...t/db"},
	}

	for _, tt := range tests {
		if got := MaskSecret(tt.input); got != tt.expected {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
