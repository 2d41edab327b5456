// Package config loads the tunables for the trading core's ambient
// stack: the seed balance and liquidation threshold the risk engine
// uses, the inbox buffer sizes for each custodian, and where the audit
// journal persists. A structured engine.yaml carries these; environment
// variables override it (env beats file beats built-in default).
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trading-core/internal/money"
)

// Config holds the core's startup tunables.
type Config struct {
	// SeedBalance is the balance a freshly created wallet starts with.
	SeedBalance float64 `yaml:"seed_balance"`
	// LiquidationThreshold is the factor of the margin-exhaustion check:
	// a position is liquidated when its initial margin is below
	// (pnl + margin) × LiquidationThreshold.
	LiquidationThreshold float64 `yaml:"liquidation_threshold"`

	// WalletInboxSize and PositionInboxSize size each custodian's
	// buffered command channel.
	WalletInboxSize   int `yaml:"wallet_inbox_size"`
	PositionInboxSize int `yaml:"position_inbox_size"`

	// AuditDBPath is where the audit journal's sqlite file lives. Empty
	// disables the journal entirely.
	AuditDBPath string `yaml:"audit_db_path"`

	// AuditFlushIntervalMs bounds how long an audit record can sit
	// unflushed in the batch writer.
	AuditFlushIntervalMs int `yaml:"audit_flush_interval_ms"`
	AuditBatchSize       int `yaml:"audit_batch_size"`
}

// defaults returns a fully-populated Config before env/file overrides
// are layered on.
func defaults() Config {
	return Config{
		SeedBalance:          10000.0,
		LiquidationThreshold: 0.1,
		WalletInboxSize:      4096,
		PositionInboxSize:    4096,
		AuditDBPath:          "./data/audit.db",
		AuditFlushIntervalMs: 500,
		AuditBatchSize:       50,
	}
}

// Load reads engine.yaml (if present), then applies .env/environment
// overrides.
func Load(yamlPath string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
		// A missing engine.yaml is not an error: defaults carry the core.
	}

	cfg.AuditDBPath = getEnv("AUDIT_DB_PATH", cfg.AuditDBPath)
	cfg.SeedBalance = getEnvFloat("SEED_BALANCE", cfg.SeedBalance)
	cfg.LiquidationThreshold = getEnvFloat("LIQUIDATION_THRESHOLD", cfg.LiquidationThreshold)
	cfg.WalletInboxSize = getEnvInt("WALLET_INBOX_SIZE", cfg.WalletInboxSize)
	cfg.PositionInboxSize = getEnvInt("POSITION_INBOX_SIZE", cfg.PositionInboxSize)
	cfg.AuditFlushIntervalMs = getEnvInt("AUDIT_FLUSH_INTERVAL_MS", cfg.AuditFlushIntervalMs)
	cfg.AuditBatchSize = getEnvInt("AUDIT_BATCH_SIZE", cfg.AuditBatchSize)

	return &cfg, nil
}

// ApplyMoneyConstants overrides the package-level money constants from
// config. Called once at startup before any custodian is constructed;
// this is an explicit opt-in knob, not a runtime toggle.
func (c *Config) ApplyMoneyConstants() {
	money.SeedBalance = money.New(c.SeedBalance)
	money.LiquidationThreshold = money.New(c.LiquidationThreshold)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
