package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables take precedence over the YAML file. Secrets such as
// the bot token are usually provided this way.
const envPrefix = "OVERWATCH_"

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) {
	// Logging
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv(envPrefix + "LOG_OUTPUT"); val != "" {
		cfg.Log.Output = val
	}

	// Parameters
	if val := os.Getenv(envPrefix + "BASE_ADDRESS"); val != "" {
		cfg.Parameters.BaseAddress = val
	}
	if val := os.Getenv(envPrefix + "OVERWATCH_TIME"); val != "" {
		cfg.Parameters.OverwatchTime = val
	}
	cfg.Parameters.RuntimeVerboseLevel = GetEnvInt(envPrefix+"VERBOSE_LEVEL", cfg.Parameters.RuntimeVerboseLevel)
	cfg.Parameters.SaveFrames = GetEnvBool(envPrefix+"SAVE_FRAMES", cfg.Parameters.SaveFrames)

	// Model
	if val := os.Getenv(envPrefix + "MODEL_SERVICE_URL"); val != "" {
		cfg.Model.ServiceURL = val
	}
	cfg.Model.Confidence = GetEnvFloat64(envPrefix+"MODEL_CONFIDENCE", cfg.Model.Confidence)
	cfg.Model.Timeout = GetEnvDuration(envPrefix+"MODEL_TIMEOUT", cfg.Model.Timeout)

	// Telegram
	cfg.Telegram.Enabled = GetEnvBool(envPrefix+"TELEGRAM_ENABLED", cfg.Telegram.Enabled)
	if val := os.Getenv(envPrefix + "TELEGRAM_TOKEN"); val != "" {
		cfg.Telegram.Token = val
	}
	if val := os.Getenv(envPrefix + "TELEGRAM_CHAT_ID"); val != "" {
		cfg.Telegram.ChatID = val
	}

	// Storage
	if val := os.Getenv(envPrefix + "DATA_DIR"); val != "" {
		cfg.Storage.DataDir = val
	}

	// Web
	cfg.Web.Enabled = GetEnvBool(envPrefix+"WEB_ENABLED", cfg.Web.Enabled)
	cfg.Web.Port = GetEnvInt(envPrefix+"WEB_PORT", cfg.Web.Port)
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable
func GetEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes" || val == "on"
}

// GetEnvInt gets an integer environment variable
func GetEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}
	return result
}

// GetEnvDuration gets a duration environment variable
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(val); err == nil {
		return duration
	}
	return defaultValue
}

// GetEnvFloat64 gets a float64 environment variable
func GetEnvFloat64(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return defaultValue
	}
	return result
}
