package config

import "time"

// Config is the root configuration structure for modelgate.
type Config struct {
	// Server configures the administrative HTTP server (health, metrics).
	Server ServerConfig `yaml:"server"`

	// Backend configures the model backend transport and per-role defaults.
	Backend BackendConfig `yaml:"backend"`

	// Breaker tunes the per-role circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`

	// Batch tunes the embedding batch orchestrator.
	Batch BatchConfig `yaml:"batch"`

	// Telemetry configures logging, metrics, and the health reporter.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Usage configures the token-usage ledger.
	Usage UsageConfig `yaml:"usage"`
}

// ServerConfig configures the administrative HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8091"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BackendConfig configures the model backend transport and request defaults.
type BackendConfig struct {
	// BaseURL is the backend endpoint base URL.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests to the backend. Usually supplied via
	// the MODELGATE_BACKEND_API_KEY environment variable rather than the
	// config file.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-call deadline. Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// GenerationModel is the default text-generation model identifier.
	GenerationModel string `yaml:"generation_model"`

	// EmbeddingModel is the default embedding model identifier.
	EmbeddingModel string `yaml:"embedding_model"`

	// DefaultMaxTokens is applied when a generation request leaves
	// max-tokens unset. Default: 4096
	DefaultMaxTokens int `yaml:"default_max_tokens"`

	// DefaultTemperature is applied when a generation request leaves
	// temperature unset. Default: 0.7
	DefaultTemperature float64 `yaml:"default_temperature"`

	// DefaultDimensions is applied when an embedding request leaves
	// dimensionality unset. Default: 1024
	DefaultDimensions int `yaml:"default_dimensions"`

	// DefaultNormalize requests unit-length vectors by default.
	// Default: true
	DefaultNormalize *bool `yaml:"default_normalize"`

	// Connection pool tuning.
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// BreakerConfig tunes the per-role circuit breakers. All roles share the
// same tuning; each role still owns an independent breaker instance.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// breaker. Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// OpenDuration is how long a breaker stays open before admitting a
	// recovery probe. Default: 30s
	OpenDuration time.Duration `yaml:"open_duration"`

	// HalfOpenSuccessesToClose is the number of consecutive probe successes
	// required to close a breaker. Default: 2
	HalfOpenSuccessesToClose int `yaml:"half_open_successes_to_close"`
}

// BatchConfig tunes the embedding batch orchestrator.
type BatchConfig struct {
	// WindowSize is the number of texts embedded concurrently per window.
	// Default: 10
	WindowSize int `yaml:"window_size"`

	// WindowDelay is the fixed backpressure delay between windows.
	// Default: 100ms
	WindowDelay time.Duration `yaml:"window_delay"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`

	// HealthReportSchedule is a cron expression for the periodic health
	// reporter. Empty disables it. Default: "@every 30s"
	HealthReportSchedule string `yaml:"health_report_schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text"). Default: "json"
	Format string `yaml:"format"`

	// RedactSecrets masks API keys and bearer tokens in log output.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric collection on. Default: true
	Enabled *bool `yaml:"enabled"`

	// Namespace and Subsystem prefix every metric name.
	// Defaults: "modelgate", "gateway"
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// UsageConfig configures the SQLite token-usage ledger.
type UsageConfig struct {
	// Enabled turns usage recording on. Default: false
	Enabled bool `yaml:"enabled"`

	// DBPath is the SQLite database file path.
	// Default: "modelgate-usage.db"
	DBPath string `yaml:"db_path"`
}
