package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string

	// ProjectX gateway credentials. Each accepts several env aliases since
	// deployments name them differently (Topstep resells the same gateway).
	ProjectXBaseURL  string
	ProjectXUsername string
	ProjectXAPIKey   string

	// Sync tuning. Non-positive env values fall back to the defaults.
	InitialLookbackDays     int
	SyncChunkDays           int
	DaySyncLimit            int
	YesterdayRefreshMinutes int

	// Cron expression for the background incremental sync job.
	SyncSchedule string
}

// Env alias groups for the gateway credentials, first non-empty wins.
var (
	baseURLEnvVars = []string{
		"PROJECTX_API_BASE_URL", "PROJECTX_BASE_URL", "PROJECTX_GATEWAY_URL",
		"TOPSTEP_API_BASE_URL", "TOPSTEPX_API_BASE_URL",
	}
	usernameEnvVars = []string{
		"PROJECTX_USERNAME", "PROJECTX_USER_NAME",
		"TOPSTEP_USERNAME", "TOPSTEPX_USERNAME",
	}
	apiKeyEnvVars = []string{
		"PROJECTX_API_KEY", "TOPSTEP_API_KEY", "TOPSTEPX_API_KEY", "PX_API_KEY",
	}
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/trades.db"),

		ProjectXBaseURL:  firstEnv(baseURLEnvVars),
		ProjectXUsername: firstEnv(usernameEnvVars),
		ProjectXAPIKey:   firstEnv(apiKeyEnvVars),

		InitialLookbackDays:     getEnvAsPositiveInt("PROJECTX_INITIAL_LOOKBACK_DAYS", 365),
		SyncChunkDays:           getEnvAsPositiveInt("PROJECTX_SYNC_CHUNK_DAYS", 90),
		DaySyncLimit:            getEnvAsPositiveInt("PROJECTX_DAY_SYNC_LIMIT", 1000),
		YesterdayRefreshMinutes: getEnvAsPositiveInt("PROJECTX_YESTERDAY_REFRESH_MINUTES", 180),

		SyncSchedule: getEnv("PROJECTX_SYNC_SCHEDULE", "0 */5 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	// Gateway credentials stay optional here: the server can serve cached
	// data without them, and the client reports what is missing on first use.
	return nil
}

// MissingCredentials lists the canonical env var for every credential that
// is absent. Empty means the gateway client is fully configured.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.ProjectXBaseURL == "" {
		missing = append(missing, "PROJECTX_API_BASE_URL")
	}
	if c.ProjectXUsername == "" {
		missing = append(missing, "PROJECTX_USERNAME")
	}
	if c.ProjectXAPIKey == "" {
		missing = append(missing, "PROJECTX_API_KEY")
	}
	return missing
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys []string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsPositiveInt(key string, defaultValue int) int {
	if value := getEnvAsInt(key, defaultValue); value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
