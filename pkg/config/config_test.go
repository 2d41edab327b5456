package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SeedBalance != 10000.0 {
		t.Errorf("SeedBalance = %v, want 10000", cfg.SeedBalance)
	}
	if cfg.LiquidationThreshold != 0.1 {
		t.Errorf("LiquidationThreshold = %v, want 0.1", cfg.LiquidationThreshold)
	}
	if cfg.WalletInboxSize != 4096 || cfg.PositionInboxSize != 4096 {
		t.Errorf("inbox sizes = %d/%d, want 4096/4096", cfg.WalletInboxSize, cfg.PositionInboxSize)
	}
}

func TestLoadYAMLAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	yaml := "seed_balance: 5000\nwallet_inbox_size: 128\naudit_db_path: /tmp/from-yaml.db\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUDIT_DB_PATH", "/tmp/from-env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SeedBalance != 5000 {
		t.Errorf("yaml override lost: SeedBalance = %v", cfg.SeedBalance)
	}
	if cfg.WalletInboxSize != 128 {
		t.Errorf("yaml override lost: WalletInboxSize = %d", cfg.WalletInboxSize)
	}
	if cfg.AuditDBPath != "/tmp/from-env.db" {
		t.Errorf("env must beat yaml: AuditDBPath = %s", cfg.AuditDBPath)
	}
	// Untouched keys keep their defaults.
	if cfg.LiquidationThreshold != 0.1 {
		t.Errorf("default lost: LiquidationThreshold = %v", cfg.LiquidationThreshold)
	}
}

func TestLoadMissingYAMLIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing yaml: %v", err)
	}
	if cfg.SeedBalance != 10000.0 {
		t.Errorf("defaults not applied: SeedBalance = %v", cfg.SeedBalance)
	}
}
