package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("WEARABLE_CLIENT_ID", "test_client_id")
	t.Setenv("WEARABLE_CLIENT_SECRET", "test_client_secret")
	t.Setenv("NUTRITION_CONSUMER_KEY", "test_consumer_key")
	t.Setenv("NUTRITION_CONSUMER_SECRET", "test_consumer_secret")
	t.Setenv("INTERNAL_API_KEY", "test_api_key")
}

func TestLoadConfigWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", cfg.Host)
	}
	if cfg.Port != 4201 {
		t.Errorf("Expected default port 4201, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "./groofit.db" {
		t.Errorf("Expected default database path './groofit.db', got %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.BackfillDailyQuota != 30 {
		t.Errorf("Expected default backfill quota 30, got %d", cfg.BackfillDailyQuota)
	}
	if cfg.BackfillRefreshEvery != 10 {
		t.Errorf("Expected default refresh interval 10, got %d", cfg.BackfillRefreshEvery)
	}
	if cfg.TickInterval != time.Hour {
		t.Errorf("Expected default tick interval 1h, got %s", cfg.TickInterval)
	}

	if cfg.WearableClientID != "test_client_id" {
		t.Errorf("Expected WEARABLE_CLIENT_ID 'test_client_id', got %s", cfg.WearableClientID)
	}
	if cfg.InternalAPIKey != "test_api_key" {
		t.Errorf("Expected INTERNAL_API_KEY 'test_api_key', got %s", cfg.InternalAPIKey)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKFILL_DAILY_QUOTA", "15")
	t.Setenv("TICK_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.BackfillDailyQuota != 15 {
		t.Errorf("Expected backfill quota 15, got %d", cfg.BackfillDailyQuota)
	}
	if cfg.TickInterval != 30*time.Minute {
		t.Errorf("Expected tick interval 30m, got %s", cfg.TickInterval)
	}
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "groofit.yaml")

	content := `host: 192.168.1.1
port: 9000
database_path: /custom/path/groofit.db
log_level: warn
backfill_daily_quota: 20
`
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	t.Setenv("GROOFIT_CONFIG", cfgFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "192.168.1.1" {
		t.Errorf("Expected host '192.168.1.1' from file, got %s", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000 from file, got %d", cfg.Port)
	}
	if cfg.BackfillDailyQuota != 20 {
		t.Errorf("Expected backfill quota 20 from file, got %d", cfg.BackfillDailyQuota)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)

	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "groofit.yaml")
	if err := os.WriteFile(cfgFile, []byte("port: 9000\n"), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	t.Setenv("GROOFIT_CONFIG", cfgFile)
	t.Setenv("PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("Expected env var to override file, got port %d", cfg.Port)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	// Only some of the required values set
	t.Setenv("WEARABLE_CLIENT_ID", "test_client_id")
	t.Setenv("WEARABLE_CLIENT_SECRET", "")
	t.Setenv("NUTRITION_CONSUMER_KEY", "")
	t.Setenv("NUTRITION_CONSUMER_SECRET", "")
	t.Setenv("INTERNAL_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing required configuration")
	}
}

func TestLoadConfigInvalidQuota(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKFILL_DAILY_QUOTA", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for zero backfill quota")
	}
}
