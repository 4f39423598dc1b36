package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerConfig  ServerConfig  `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig   RedisConfig   `json:"redis"`
	VaultConfig   VaultConfig   `json:"vault"`
	AuthConfig    AuthConfig    `json:"auth"`
	LedgerConfig  LedgerConfig  `json:"ledger"`
	LoggingConfig LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	AllowedOrigins  []string `json:"allowed_origins"`
	RateLimitPerMin int      `json:"rate_limit_per_min"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for webhook secrets
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
	// WebhookSecretPath is the KV v2 path holding the payment-processor
	// webhook HMAC secret.
	WebhookSecretPath string `json:"webhook_secret_path"`
	// WebhookSecret is the fallback secret when Vault is disabled.
	WebhookSecret string `json:"webhook_secret"`
}

// AuthConfig holds staff authentication configuration
type AuthConfig struct {
	Enabled          bool   `json:"enabled"`
	JWTSecret        string `json:"jwt_secret"`
	TokenTTLMinutes  int    `json:"token_ttl_minutes"`
	SeedAdminEmail   string `json:"seed_admin_email"`
	SeedAdminPassword string `json:"seed_admin_password"`
}

// LedgerConfig holds payout ledger behaviour configuration
type LedgerConfig struct {
	// MaxPayoutRetries bounds FAILED -> PROCESSING re-entries before a
	// record requires manual resolution.
	MaxPayoutRetries int `json:"max_payout_retries"`
	// SchedulerIntervalSeconds is how often due PENDING payouts are
	// promoted to SCHEDULED.
	SchedulerIntervalSeconds int `json:"scheduler_interval_seconds"`
	// SchedulerBatchSize caps how many due payouts one tick promotes.
	SchedulerBatchSize int `json:"scheduler_batch_size"`
}

// LoggingConfig holds zerolog configuration
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if cfg.AuthConfig.Enabled && cfg.AuthConfig.JWTSecret == "" {
		return nil, fmt.Errorf("auth is enabled but no JWT secret is configured")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.WebhookSecret = getEnvOrDefault("WEBHOOK_SECRET", cfg.VaultConfig.WebhookSecret)

	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.SeedAdminEmail = getEnvOrDefault("SEED_ADMIN_EMAIL", cfg.AuthConfig.SeedAdminEmail)
	cfg.AuthConfig.SeedAdminPassword = getEnvOrDefault("SEED_ADMIN_PASSWORD", cfg.AuthConfig.SeedAdminPassword)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolString(cfg.LoggingConfig.Pretty)) == "true"
}

func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.RateLimitPerMin == 0 {
		cfg.ServerConfig.RateLimitPerMin = 120
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.AuthConfig.TokenTTLMinutes == 0 {
		cfg.AuthConfig.TokenTTLMinutes = 60
	}
	if cfg.VaultConfig.WebhookSecretPath == "" {
		cfg.VaultConfig.WebhookSecretPath = "secret/data/payout-ledger/webhook"
	}
	if cfg.LedgerConfig.MaxPayoutRetries == 0 {
		cfg.LedgerConfig.MaxPayoutRetries = 3
	}
	if cfg.LedgerConfig.SchedulerIntervalSeconds == 0 {
		cfg.LedgerConfig.SchedulerIntervalSeconds = 60
	}
	if cfg.LedgerConfig.SchedulerBatchSize == 0 {
		cfg.LedgerConfig.SchedulerBatchSize = 500
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
