package config

import "time"

// Default values for configuration fields.
const (
	// Values defaults
	DefaultValuesBackend           = "sqlite"
	DefaultValuesSQLitePath        = "data/values.db"
	DefaultValuesSQLiteBusyTimeout = 5 * time.Second

	// Workspace defaults
	DefaultWorkspaceSource    = "file"
	DefaultWorkspaceTablesDir = "./tables"
	DefaultRepositoryURL      = "sqlite://data/workspace.db"
	DefaultRepositoryMaxConns = 10
	DefaultGitBranch          = "main"
	DefaultGitAuthType        = "none"
	DefaultGitPollInterval    = 30 * time.Second
	DefaultGitPollTimeout     = 10 * time.Second
	DefaultGitCloneDepth      = 1

	// Decision log defaults
	DefaultDecisionLogBackend      = "sqlite"
	DefaultDecisionLogSQLitePath   = "data/decisions.db"
	DefaultDecisionLogMaxOpenConns = 10
	DefaultDecisionLogBusyTimeout  = 5 * time.Second
	DefaultRecorderAsyncBuffer     = 1000
	DefaultRecorderWriteTimeout    = 5 * time.Second
	DefaultRetentionDays           = 30
	DefaultRetentionPruneSchedule  = "0 3 * * *"

	// Server defaults
	DefaultServerListenAddress   = "127.0.0.1:8080"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerIdleTimeout     = 120 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerMaxBodyBytes    = int64(10 << 20)
	DefaultTLSMinVersion         = "1.3"
	DefaultTLSReloadInterval     = 5 * time.Minute
	DefaultRateLimitPerSecond    = 100.0
	DefaultRateLimitBurst        = int64(200)

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "verdict"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "verdict"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/health/live"
	DefaultReadinessPath      = "/health/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ApplyDefaults sets defaults for every field that has its zero value.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Values
	if cfg.Values.Backend == "" {
		cfg.Values.Backend = DefaultValuesBackend
	}
	if cfg.Values.SQLite.Path == "" {
		cfg.Values.SQLite.Path = DefaultValuesSQLitePath
	}
	if cfg.Values.SQLite.BusyTimeout == 0 {
		cfg.Values.SQLite.BusyTimeout = DefaultValuesSQLiteBusyTimeout
	}

	// Workspace
	ws := &cfg.Workspace
	if ws.Source == "" {
		ws.Source = DefaultWorkspaceSource
	}
	if ws.TablesDir == "" {
		ws.TablesDir = DefaultWorkspaceTablesDir
	}
	if ws.Repository.URL == "" {
		ws.Repository.URL = DefaultRepositoryURL
	}
	if ws.Repository.MaxOpenConns == 0 {
		ws.Repository.MaxOpenConns = DefaultRepositoryMaxConns
	}
	if ws.Git.Branch == "" {
		ws.Git.Branch = DefaultGitBranch
	}
	if ws.Git.Auth.Type == "" {
		ws.Git.Auth.Type = DefaultGitAuthType
	}
	if ws.Git.Poll.Interval == 0 {
		ws.Git.Poll.Interval = DefaultGitPollInterval
	}
	if ws.Git.Poll.Timeout == 0 {
		ws.Git.Poll.Timeout = DefaultGitPollTimeout
	}
	if ws.Git.Clone.Depth == 0 {
		ws.Git.Clone.Depth = DefaultGitCloneDepth
	}

	// Decision logs
	dl := &cfg.DecisionLogs
	if dl.Backend == "" {
		dl.Backend = DefaultDecisionLogBackend
	}
	if dl.SQLite.Path == "" {
		dl.SQLite.Path = DefaultDecisionLogSQLitePath
	}
	if dl.SQLite.MaxOpenConns == 0 {
		dl.SQLite.MaxOpenConns = DefaultDecisionLogMaxOpenConns
	}
	if dl.SQLite.BusyTimeout == 0 {
		dl.SQLite.BusyTimeout = DefaultDecisionLogBusyTimeout
	}
	if dl.Recorder.AsyncBuffer == 0 {
		dl.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if dl.Recorder.WriteTimeout == 0 {
		dl.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if dl.Retention.Days == 0 {
		dl.Retention.Days = DefaultRetentionDays
	}
	if dl.Retention.PruneSchedule == "" {
		dl.Retention.PruneSchedule = DefaultRetentionPruneSchedule
	}

	// Server
	srv := &cfg.Server
	if srv.ListenAddress == "" {
		srv.ListenAddress = DefaultServerListenAddress
	}
	if srv.ReadTimeout == 0 {
		srv.ReadTimeout = DefaultServerReadTimeout
	}
	if srv.WriteTimeout == 0 {
		srv.WriteTimeout = DefaultServerWriteTimeout
	}
	if srv.IdleTimeout == 0 {
		srv.IdleTimeout = DefaultServerIdleTimeout
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if srv.MaxBodyBytes == 0 {
		srv.MaxBodyBytes = DefaultServerMaxBodyBytes
	}
	if srv.TLS.MinVersion == "" {
		srv.TLS.MinVersion = DefaultTLSMinVersion
	}
	if srv.TLS.ReloadInterval == 0 {
		srv.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
	if srv.RateLimit.RequestsPerSecond == 0 {
		srv.RateLimit.RequestsPerSecond = DefaultRateLimitPerSecond
	}
	if srv.RateLimit.Burst == 0 {
		srv.RateLimit.Burst = DefaultRateLimitBurst
	}

	// Telemetry
	tel := &cfg.Telemetry
	if tel.Logging.Level == "" {
		tel.Logging.Level = DefaultLoggingLevel
	}
	if tel.Logging.Format == "" {
		tel.Logging.Format = DefaultLoggingFormat
	}
	if tel.Metrics.Path == "" {
		tel.Metrics.Path = DefaultMetricsPath
	}
	if tel.Metrics.Namespace == "" {
		tel.Metrics.Namespace = DefaultMetricsNamespace
	}
	if tel.Tracing.Endpoint == "" {
		tel.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if tel.Tracing.ServiceName == "" {
		tel.Tracing.ServiceName = DefaultTracingServiceName
	}
	if tel.Tracing.SampleRatio == 0 {
		tel.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if tel.Tracing.Timeout == 0 {
		tel.Tracing.Timeout = DefaultTracingTimeout
	}
	if tel.Health.LivenessPath == "" {
		tel.Health.LivenessPath = DefaultLivenessPath
	}
	if tel.Health.ReadinessPath == "" {
		tel.Health.ReadinessPath = DefaultReadinessPath
	}
	if tel.Health.CheckTimeout == 0 {
		tel.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
