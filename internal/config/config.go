package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cellfate/adapters/similarity"
	"cellfate/domain/lineage"
	"cellfate/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Trend    TrendConfig
	Reduce   ReduceConfig
	Runtime  RuntimeConfig
	Server   ServerConfig
	Database DatabaseConfig
}

// TrendConfig holds the defaults of trend model preparation
type TrendConfig struct {
	TimeKey           string
	NTestPoints       int
	WeightThreshold   float64
	WeightReplacement float64
}

// ReduceConfig holds the defaults of lineage reduction
type ReduceConfig struct {
	Mode          lineage.Mode
	Measure       string
	Normalization lineage.Normalization
	SoftmaxBeta   float64
}

// RuntimeConfig holds execution settings
type RuntimeConfig struct {
	Seed        int64
	Parallelism int
	RscriptPath string
	RTimeout    time.Duration
	LogLevel    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the optional run store. An empty URL disables it.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Trend:    *loadTrendConfig(),
		Runtime:  *loadRuntimeConfig(),
		Server:   *loadServerConfig(),
		Database: *loadDatabaseConfig(),
	}

	reduceConfig, err := loadReduceConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load reduce configuration")
	}
	config.Reduce = *reduceConfig

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadTrendConfig() *TrendConfig {
	return &TrendConfig{
		TimeKey:           getEnvOrDefault("CELLFATE_TIME_KEY", "latent_time"),
		NTestPoints:       getEnvIntOrDefault("CELLFATE_N_TEST_POINTS", 200),
		WeightThreshold:   getEnvFloatOrDefault("CELLFATE_WEIGHT_THRESHOLD", 0.01),
		WeightReplacement: getEnvFloatOrDefault("CELLFATE_WEIGHT_REPLACEMENT", 0.01),
	}
}

func loadReduceConfig() (*ReduceConfig, error) {
	mode, err := lineage.ParseMode(getEnvOrDefault("CELLFATE_REDUCE_MODE", string(lineage.ModeDist)))
	if err != nil {
		return nil, err
	}
	norm, err := lineage.ParseNormalization(getEnvOrDefault("CELLFATE_NORMALIZE_WEIGHTS", string(lineage.NormalizeSoftmax)))
	if err != nil {
		return nil, err
	}
	return &ReduceConfig{
		Mode:          mode,
		Measure:       getEnvOrDefault("CELLFATE_DIST_MEASURE", similarity.MutualInfo),
		Normalization: norm,
		SoftmaxBeta:   getEnvFloatOrDefault("CELLFATE_SOFTMAX_BETA", 1),
	}, nil
}

func loadRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Seed:        int64(getEnvIntOrDefault("CELLFATE_SEED", 0)),
		Parallelism: getEnvIntOrDefault("CELLFATE_PARALLELISM", 0),
		RscriptPath: getEnvOrDefault("RSCRIPT_PATH", ""),
		RTimeout:    getEnvDurationOrDefault("CELLFATE_R_TIMEOUT", 2*time.Minute),
		LogLevel:    strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "release"),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:          getEnvOrDefault("DATABASE_URL", ""),
		MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 4),
	}
}

func validateConfig(config *Config) error {
	if strings.TrimSpace(config.Trend.TimeKey) == "" {
		return errors.ConfigInvalid("time key is required")
	}
	if config.Trend.NTestPoints < 2 {
		return errors.ConfigInvalid(fmt.Sprintf("number of test points must be at least 2, found %d", config.Trend.NTestPoints))
	}
	if config.Trend.WeightThreshold < 0 || config.Trend.WeightThreshold > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("weight threshold must be in [0, 1], found %g", config.Trend.WeightThreshold))
	}
	if !knownMeasure(config.Reduce.Measure) {
		return errors.ConfigInvalid(fmt.Sprintf("unknown distance measure %q, valid measures are: %s",
			config.Reduce.Measure, strings.Join(similarity.Names(), ", ")))
	}
	if config.Reduce.SoftmaxBeta <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("softmax beta must be positive, found %g", config.Reduce.SoftmaxBeta))
	}
	if _, err := strconv.Atoi(config.Server.Port); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("PORT must be a number, found %q", config.Server.Port))
	}
	if config.Runtime.Parallelism < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("parallelism must not be negative, found %d", config.Runtime.Parallelism))
	}
	return nil
}

func knownMeasure(name string) bool {
	for _, n := range similarity.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
