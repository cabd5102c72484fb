package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv sets the variables LoadConfig refuses to start without.
func setRequiredEnv(t *testing.T) {
	t.Helper()

	required := map[string]string{
		"RPC_URL":           "http://localhost:8545",
		"PRIVATE_KEY":       "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"STAKING_CONTRACT":  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"GEMINI_API_KEY":    "test-gemini-key",
		"PINATA_API_KEY":    "test-pinata-key",
		"PINATA_SECRET_KEY": "test-pinata-secret",
	}

	for k, v := range required {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("Failed to set %s: %v", k, err)
		}
	}

	t.Cleanup(func() {
		for k := range required {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)

	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("CHAIN_POLL_INTERVAL", "2s"); err != nil {
		t.Fatalf("Failed to set CHAIN_POLL_INTERVAL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("CHAIN_POLL_INTERVAL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Chain.PollInterval != 2*time.Second {
		t.Errorf("Chain.PollInterval = %v, want %v", cfg.Chain.PollInterval, 2*time.Second)
	}

	// Defaults
	if cfg.Ledger.FlushEvery != 10 {
		t.Errorf("Ledger.FlushEvery = %v, want 10", cfg.Ledger.FlushEvery)
	}
	if cfg.Ledger.Retention != 7*24*time.Hour {
		t.Errorf("Ledger.Retention = %v, want 168h", cfg.Ledger.Retention)
	}
	if cfg.Ledger.Store != "file" {
		t.Errorf("Ledger.Store = %v, want file", cfg.Ledger.Store)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	// Deliberately do not set the required variables
	for _, key := range []string{"RPC_URL", "PRIVATE_KEY", "STAKING_CONTRACT", "GEMINI_API_KEY", "PINATA_API_KEY", "PINATA_SECRET_KEY"} {
		_ = os.Unsetenv(key)
	}

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should fail when required variables are missing")
	}
	if !strings.Contains(err.Error(), "RPC_URL") {
		t.Errorf("error should name the missing variable, got: %v", err)
	}
}

func TestLoadConfig_InvalidLedgerStore(t *testing.T) {
	setRequiredEnv(t)

	if err := os.Setenv("LEDGER_STORE", "clickhouse"); err != nil {
		t.Fatalf("Failed to set LEDGER_STORE: %v", err)
	}
	defer func() { _ = os.Unsetenv("LEDGER_STORE") }()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should reject an unknown ledger store")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "TEST_KEY_UNSET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env: %v", err)
				}
				defer func() { _ = os.Unsetenv(tt.key) }()
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	if err := os.Setenv("TEST_INT", "42"); err != nil {
		t.Fatalf("Failed to set env: %v", err)
	}
	defer func() { _ = os.Unsetenv("TEST_INT") }()

	if got := getEnvAsInt("TEST_INT", 7); got != 42 {
		t.Errorf("getEnvAsInt() = %v, want 42", got)
	}
	if got := getEnvAsInt("TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("getEnvAsInt() default = %v, want 7", got)
	}

	if err := os.Setenv("TEST_INT", "not-a-number"); err != nil {
		t.Fatalf("Failed to set env: %v", err)
	}
	if got := getEnvAsInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt() invalid = %v, want 7", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	if err := os.Setenv("TEST_DURATION", "90s"); err != nil {
		t.Fatalf("Failed to set env: %v", err)
	}
	defer func() { _ = os.Unsetenv("TEST_DURATION") }()

	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 90s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_UNSET", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() default = %v, want 1s", got)
	}
}
