package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values that would misbehave at
// runtime. It returns all problems found, joined into one error.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Backend.BaseURL == "" {
		problems = append(problems, "backend.base_url is required")
	}
	if cfg.Backend.GenerationModel == "" {
		problems = append(problems, "backend.generation_model is required")
	}
	if cfg.Backend.EmbeddingModel == "" {
		problems = append(problems, "backend.embedding_model is required")
	}
	if cfg.Backend.DefaultMaxTokens < 1 || cfg.Backend.DefaultMaxTokens > 8000 {
		problems = append(problems, fmt.Sprintf(
			"backend.default_max_tokens must be within [1, 8000], got %d",
			cfg.Backend.DefaultMaxTokens))
	}
	if cfg.Backend.DefaultTemperature < 0 || cfg.Backend.DefaultTemperature > 1 {
		problems = append(problems, fmt.Sprintf(
			"backend.default_temperature must be within [0.0, 1.0], got %g",
			cfg.Backend.DefaultTemperature))
	}
	if cfg.Backend.Timeout <= 0 {
		problems = append(problems, "backend.timeout must be positive")
	}

	if cfg.Breaker.FailureThreshold < 1 {
		problems = append(problems, "breaker.failure_threshold must be at least 1")
	}
	if cfg.Breaker.OpenDuration <= 0 {
		problems = append(problems, "breaker.open_duration must be positive")
	}
	if cfg.Breaker.HalfOpenSuccessesToClose < 1 {
		problems = append(problems, "breaker.half_open_successes_to_close must be at least 1")
	}

	if cfg.Batch.WindowSize < 1 {
		problems = append(problems, "batch.window_size must be at least 1")
	}
	if cfg.Batch.WindowDelay < 0 {
		problems = append(problems, "batch.window_delay cannot be negative")
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf(
			"telemetry.logging.level must be one of debug/info/warn/error, got %q",
			cfg.Telemetry.Logging.Level))
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf(
			"telemetry.logging.format must be json or text, got %q",
			cfg.Telemetry.Logging.Format))
	}

	if cfg.Usage.Enabled && cfg.Usage.DBPath == "" {
		problems = append(problems, "usage.db_path is required when usage is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
