package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Metrics configuration
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsHost    string `yaml:"metrics_host"`
	MetricsPort    int    `yaml:"metrics_port"`

	// Database configuration
	DatabasePath string `yaml:"database_path"`

	// Wearable provider (OAuth2) configuration
	WearableClientID     string `yaml:"wearable_client_id"`
	WearableClientSecret string `yaml:"wearable_client_secret"`
	WearableAuthURL      string `yaml:"wearable_auth_url"`
	WearableTokenURL     string `yaml:"wearable_token_url"`
	WearableAPIBaseURL   string `yaml:"wearable_api_base_url"`

	// Nutrition provider (OAuth1.0a + client credentials) configuration
	NutritionConsumerKey     string `yaml:"nutrition_consumer_key"`
	NutritionConsumerSecret  string `yaml:"nutrition_consumer_secret"`
	NutritionRequestTokenURL string `yaml:"nutrition_request_token_url"`
	NutritionAuthorizeURL    string `yaml:"nutrition_authorize_url"`
	NutritionAccessTokenURL  string `yaml:"nutrition_access_token_url"`
	NutritionOAuth2TokenURL  string `yaml:"nutrition_oauth2_token_url"`
	NutritionAPIBaseURL      string `yaml:"nutrition_api_base_url"`

	// Sync tuning. Durations are env-only (TICK_INTERVAL, STATE_TTL) since
	// yaml.v3 has no native duration decoding.
	BackfillDailyQuota   int           `yaml:"backfill_daily_quota"`
	BackfillRefreshEvery int           `yaml:"backfill_refresh_every"`
	TickInterval         time.Duration `yaml:"-"`
	StateTTL             time.Duration `yaml:"-"`

	// Internal API configuration (scheduler-triggered endpoints)
	InternalAPIKey string `yaml:"internal_api_key"`

	// Logging configuration
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from an optional YAML file (GROOFIT_CONFIG) overlaid
// with environment variables. It fails fast if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Host:           "localhost",
		Port:           4201,
		MetricsEnabled: true,
		MetricsHost:    "localhost",
		MetricsPort:    4202,
		DatabasePath:   "./groofit.db",
		LogLevel:       "info",

		WearableAuthURL:    "https://www.fitbit.com/oauth2/authorize",
		WearableTokenURL:   "https://api.fitbit.com/oauth2/token",
		WearableAPIBaseURL: "https://api.fitbit.com",

		NutritionRequestTokenURL: "https://authentication.fatsecret.com/oauth/request_token",
		NutritionAuthorizeURL:    "https://authentication.fatsecret.com/oauth/authorize",
		NutritionAccessTokenURL:  "https://authentication.fatsecret.com/oauth/access_token",
		NutritionOAuth2TokenURL:  "https://oauth.fatsecret.com/connect/token",
		NutritionAPIBaseURL:      "https://platform.fatsecret.com/rest/server.api",

		BackfillDailyQuota:   30,
		BackfillRefreshEvery: 10,
		TickInterval:         time.Hour,
		StateTTL:             time.Hour,
	}

	if path := os.Getenv("GROOFIT_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	// Required values
	var missingVars []string

	if cfg.WearableClientID == "" {
		missingVars = append(missingVars, "WEARABLE_CLIENT_ID")
	}
	if cfg.WearableClientSecret == "" {
		missingVars = append(missingVars, "WEARABLE_CLIENT_SECRET")
	}
	if cfg.NutritionConsumerKey == "" {
		missingVars = append(missingVars, "NUTRITION_CONSUMER_KEY")
	}
	if cfg.NutritionConsumerSecret == "" {
		missingVars = append(missingVars, "NUTRITION_CONSUMER_SECRET")
	}
	if cfg.InternalAPIKey == "" {
		missingVars = append(missingVars, "INTERNAL_API_KEY")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required configuration: %v", missingVars)
	}

	if cfg.BackfillDailyQuota < 1 {
		return nil, fmt.Errorf("backfill daily quota must be at least 1, got %d", cfg.BackfillDailyQuota)
	}

	return cfg, nil
}

// loadFile overlays values from a YAML config file
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on top of file/default values
func applyEnv(cfg *Config) {
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsHost = getEnv("METRICS_HOST", cfg.MetricsHost)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.WearableClientID = getEnv("WEARABLE_CLIENT_ID", cfg.WearableClientID)
	cfg.WearableClientSecret = getEnv("WEARABLE_CLIENT_SECRET", cfg.WearableClientSecret)
	cfg.WearableAuthURL = getEnv("WEARABLE_AUTH_URL", cfg.WearableAuthURL)
	cfg.WearableTokenURL = getEnv("WEARABLE_TOKEN_URL", cfg.WearableTokenURL)
	cfg.WearableAPIBaseURL = getEnv("WEARABLE_API_BASE_URL", cfg.WearableAPIBaseURL)

	cfg.NutritionConsumerKey = getEnv("NUTRITION_CONSUMER_KEY", cfg.NutritionConsumerKey)
	cfg.NutritionConsumerSecret = getEnv("NUTRITION_CONSUMER_SECRET", cfg.NutritionConsumerSecret)
	cfg.NutritionRequestTokenURL = getEnv("NUTRITION_REQUEST_TOKEN_URL", cfg.NutritionRequestTokenURL)
	cfg.NutritionAuthorizeURL = getEnv("NUTRITION_AUTHORIZE_URL", cfg.NutritionAuthorizeURL)
	cfg.NutritionAccessTokenURL = getEnv("NUTRITION_ACCESS_TOKEN_URL", cfg.NutritionAccessTokenURL)
	cfg.NutritionOAuth2TokenURL = getEnv("NUTRITION_OAUTH2_TOKEN_URL", cfg.NutritionOAuth2TokenURL)
	cfg.NutritionAPIBaseURL = getEnv("NUTRITION_API_BASE_URL", cfg.NutritionAPIBaseURL)

	cfg.BackfillDailyQuota = getEnvInt("BACKFILL_DAILY_QUOTA", cfg.BackfillDailyQuota)
	cfg.BackfillRefreshEvery = getEnvInt("BACKFILL_REFRESH_EVERY", cfg.BackfillRefreshEvery)
	cfg.TickInterval = getEnvDuration("TICK_INTERVAL", cfg.TickInterval)
	cfg.StateTTL = getEnvDuration("STATE_TTL", cfg.StateTTL)

	cfg.InternalAPIKey = getEnv("INTERNAL_API_KEY", cfg.InternalAPIKey)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
