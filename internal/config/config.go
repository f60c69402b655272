// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"

	apperrors "github.com/fincast/fincast/internal/errors"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// DefaultBudget caps objective evaluations when a request omits one.
		DefaultBudget int `env:"OPT_DEFAULT_BUDGET" envDefault:"200"`
		// PenaltyWeight scales the realism penalty subtracted from raw scores.
		PenaltyWeight float64 `env:"OPT_PENALTY_WEIGHT" envDefault:"0.1"`
		// MaxWorkers bounds concurrent strategy runs per ensemble job.
		MaxWorkers int `env:"OPT_MAX_WORKERS" envDefault:"3"`
		// MaxConcurrentJobs bounds simultaneously running optimization jobs.
		MaxConcurrentJobs int `env:"OPT_MAX_CONCURRENT_JOBS" envDefault:"4"`
		// AllocationPolicy is the default budget allocation policy.
		AllocationPolicy string `env:"OPT_ALLOCATION_POLICY" envDefault:"auto"`
		// Seed makes stochastic strategies reproducible when non-zero.
		Seed int64 `env:"OPT_SEED" envDefault:"0"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse environment").
			WithComponent("config").
			WithOperation("Load")
	}

	// Development defaults to verbose logging
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
