// Package config provides configuration management for the NFT generation
// backend. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Chain      ChainConfig
	Generation GenerationConfig
	Pinning    PinningConfig
	Ledger     LedgerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	KeepAliveInterval time.Duration // SSE keep-alive comment cadence
}

// ChainConfig holds blockchain connectivity configuration
type ChainConfig struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	PollInterval    time.Duration
	ConfirmTimeout  time.Duration
}

// GenerationConfig holds AI generation API configuration
type GenerationConfig struct {
	APIKey            string
	BaseURL           string
	TextModel         string
	ImageModel        string
	RequestsPerMinute int
}

// PinningConfig holds IPFS pinning service configuration
type PinningConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	GatewayURL string
}

// LedgerConfig holds idempotency ledger configuration
type LedgerConfig struct {
	Store         string // "file" or "redis"
	Path          string
	FlushEvery    int
	MaxRecords    int
	Retention     time.Duration
	SweepInterval time.Duration
}

// DatabaseConfig holds optional storage backends
type DatabaseConfig struct {
	Redis    RedisConfig
	Postgres PostgresConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PostgresConfig holds Postgres configuration for the processed-event archive
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              getEnv("SERVER_PORT", "3001"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0), // 0: SSE streams stay open
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			KeepAliveInterval: getEnvAsDuration("SSE_KEEPALIVE_INTERVAL", 30*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("RPC_URL", ""),
			PrivateKey:      getEnv("PRIVATE_KEY", ""),
			ContractAddress: getEnv("STAKING_CONTRACT", ""),
			PollInterval:    getEnvAsDuration("CHAIN_POLL_INTERVAL", 5*time.Second),
			ConfirmTimeout:  getEnvAsDuration("CHAIN_CONFIRM_TIMEOUT", 2*time.Minute),
		},
		Generation: GenerationConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			BaseURL:           getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			TextModel:         getEnv("GEMINI_TEXT_MODEL", "gemini-pro"),
			ImageModel:        getEnv("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-preview-image-generation"),
			RequestsPerMinute: getEnvAsInt("GENERATION_REQUESTS_PER_MINUTE", 10),
		},
		Pinning: PinningConfig{
			APIKey:     getEnv("PINATA_API_KEY", ""),
			SecretKey:  getEnv("PINATA_SECRET_KEY", ""),
			BaseURL:    getEnv("PINATA_BASE_URL", "https://api.pinata.cloud"),
			GatewayURL: getEnv("PINATA_GATEWAY_URL", "https://gateway.pinata.cloud/ipfs"),
		},
		Ledger: LedgerConfig{
			Store:         getEnv("LEDGER_STORE", "file"),
			Path:          getEnv("LEDGER_PATH", "processed_events.json"),
			FlushEvery:    getEnvAsInt("LEDGER_FLUSH_EVERY", 10),
			MaxRecords:    getEnvAsInt("LEDGER_MAX_RECORDS", 1000),
			Retention:     getEnvAsDuration("LEDGER_RETENTION", 7*24*time.Hour),
			SweepInterval: getEnvAsDuration("LEDGER_SWEEP_INTERVAL", time.Hour),
		},
		Database: DatabaseConfig{
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
			Postgres: PostgresConfig{
				Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "fishit"),
				User:           getEnv("POSTGRES_USER", "fishit"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks that the settings without sane defaults are present
func (c *Config) validate() error {
	var missing []string

	if c.Chain.RPCURL == "" {
		missing = append(missing, "RPC_URL")
	}
	if c.Chain.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.Chain.ContractAddress == "" {
		missing = append(missing, "STAKING_CONTRACT")
	}
	if c.Generation.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Pinning.APIKey == "" {
		missing = append(missing, "PINATA_API_KEY")
	}
	if c.Pinning.SecretKey == "" {
		missing = append(missing, "PINATA_SECRET_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Ledger.Store != "file" && c.Ledger.Store != "redis" {
		return fmt.Errorf("invalid LEDGER_STORE %q: must be \"file\" or \"redis\"", c.Ledger.Store)
	}
	if c.Ledger.FlushEvery <= 0 {
		return fmt.Errorf("LEDGER_FLUSH_EVERY must be positive, got %d", c.Ledger.FlushEvery)
	}
	if c.Ledger.MaxRecords <= 0 {
		return fmt.Errorf("LEDGER_MAX_RECORDS must be positive, got %d", c.Ledger.MaxRecords)
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
