package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
//
// Environment variables follow the naming convention MODELGATE_SECTION_FIELD
// (e.g., MODELGATE_BACKEND_API_KEY) and always take precedence over the
// file-based configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, applying defaults, environment
// overrides, and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration populated only from defaults and
// environment overrides. Useful for tests and for running against a local
// backend without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

// applyEnvOverrides applies MODELGATE_* environment variables over cfg.
func applyEnvOverrides(cfg *Config) {
	setString("MODELGATE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	setString("MODELGATE_BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	setString("MODELGATE_BACKEND_API_KEY", &cfg.Backend.APIKey)
	setString("MODELGATE_BACKEND_GENERATION_MODEL", &cfg.Backend.GenerationModel)
	setString("MODELGATE_BACKEND_EMBEDDING_MODEL", &cfg.Backend.EmbeddingModel)
	setDuration("MODELGATE_BACKEND_TIMEOUT", &cfg.Backend.Timeout)

	setInt("MODELGATE_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	setDuration("MODELGATE_BREAKER_OPEN_DURATION", &cfg.Breaker.OpenDuration)
	setInt("MODELGATE_BREAKER_HALF_OPEN_SUCCESSES_TO_CLOSE", &cfg.Breaker.HalfOpenSuccessesToClose)

	setInt("MODELGATE_BATCH_WINDOW_SIZE", &cfg.Batch.WindowSize)
	setDuration("MODELGATE_BATCH_WINDOW_DELAY", &cfg.Batch.WindowDelay)

	setString("MODELGATE_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("MODELGATE_LOG_FORMAT", &cfg.Telemetry.Logging.Format)

	setString("MODELGATE_USAGE_DB_PATH", &cfg.Usage.DBPath)
	if v, ok := os.LookupEnv("MODELGATE_USAGE_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Usage.Enabled = b
		}
	}
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
