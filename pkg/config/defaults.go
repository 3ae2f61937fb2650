package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress = "127.0.0.1:8091"
	DefaultReadTimeout   = 15 * time.Second
	DefaultWriteTimeout  = 15 * time.Second

	DefaultBackendTimeout     = 60 * time.Second
	DefaultMaxTokens          = 4096
	DefaultTemperature        = 0.7
	DefaultDimensions         = 1024
	DefaultMaxIdleConns       = 100
	DefaultMaxIdleConnsPH     = 10
	DefaultIdleConnTimeout    = 90 * time.Second

	DefaultFailureThreshold         = 5
	DefaultOpenDuration             = 30 * time.Second
	DefaultHalfOpenSuccessesToClose = 2

	DefaultBatchWindowSize  = 10
	DefaultBatchWindowDelay = 100 * time.Millisecond

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "modelgate"
	DefaultMetricsSubsystem = "gateway"

	DefaultHealthReportSchedule = "@every 30s"

	DefaultUsageDBPath = "modelgate-usage.db"
)

// ApplyDefaults fills unset fields with their default values. It mutates cfg
// in place and is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}

	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.DefaultMaxTokens == 0 {
		cfg.Backend.DefaultMaxTokens = DefaultMaxTokens
	}
	if cfg.Backend.DefaultTemperature == 0 {
		cfg.Backend.DefaultTemperature = DefaultTemperature
	}
	if cfg.Backend.DefaultDimensions == 0 {
		cfg.Backend.DefaultDimensions = DefaultDimensions
	}
	if cfg.Backend.DefaultNormalize == nil {
		normalize := true
		cfg.Backend.DefaultNormalize = &normalize
	}
	if cfg.Backend.MaxIdleConns == 0 {
		cfg.Backend.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Backend.MaxIdleConnsPerHost == 0 {
		cfg.Backend.MaxIdleConnsPerHost = DefaultMaxIdleConnsPH
	}
	if cfg.Backend.IdleConnTimeout == 0 {
		cfg.Backend.IdleConnTimeout = DefaultIdleConnTimeout
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.OpenDuration == 0 {
		cfg.Breaker.OpenDuration = DefaultOpenDuration
	}
	if cfg.Breaker.HalfOpenSuccessesToClose == 0 {
		cfg.Breaker.HalfOpenSuccessesToClose = DefaultHalfOpenSuccessesToClose
	}

	if cfg.Batch.WindowSize == 0 {
		cfg.Batch.WindowSize = DefaultBatchWindowSize
	}
	if cfg.Batch.WindowDelay == 0 {
		cfg.Batch.WindowDelay = DefaultBatchWindowDelay
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.RedactSecrets == nil {
		redact := true
		cfg.Telemetry.Logging.RedactSecrets = &redact
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		enabled := true
		cfg.Telemetry.Metrics.Enabled = &enabled
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.HealthReportSchedule == "" {
		cfg.Telemetry.HealthReportSchedule = DefaultHealthReportSchedule
	}

	if cfg.Usage.DBPath == "" {
		cfg.Usage.DBPath = DefaultUsageDBPath
	}
}
