package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError listing
// every failed rule, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateValues(&cfg.Values)...)
	errs = append(errs, validateWorkspace(&cfg.Workspace)...)
	errs = append(errs, validateDecisionLogs(&cfg.DecisionLogs)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError
	if cfg.BulkWorkers < 0 {
		errs = append(errs, FieldError{Field: "engine.bulk_workers", Message: "must not be negative"})
	}
	return errs
}

func validateValues(cfg *ValuesConfig) []FieldError {
	var errs []FieldError
	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "values.sqlite.path", Message: "required for the sqlite backend"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "values.sqlite.busy_timeout", Message: "must not be negative"})
		}
	default:
		errs = append(errs, FieldError{Field: "values.backend", Message: fmt.Sprintf("unknown backend %q (want memory or sqlite)", cfg.Backend)})
	}
	return errs
}

func validateWorkspace(cfg *WorkspaceConfig) []FieldError {
	var errs []FieldError

	switch cfg.Source {
	case "file":
		if cfg.TablesDir == "" {
			errs = append(errs, FieldError{Field: "workspace.tables_dir", Message: "required for the file source"})
		}
	case "git":
		errs = append(errs, validateGit(&cfg.Git)...)
	default:
		errs = append(errs, FieldError{Field: "workspace.source", Message: fmt.Sprintf("unknown source %q (want file or git)", cfg.Source)})
	}

	u, err := url.Parse(cfg.Repository.URL)
	if err != nil {
		errs = append(errs, FieldError{Field: "workspace.repository.url", Message: err.Error()})
	} else {
		switch u.Scheme {
		case "memory", "sqlite", "sqlite3", "postgres", "postgresql":
		default:
			errs = append(errs, FieldError{Field: "workspace.repository.url", Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)})
		}
	}
	if cfg.Repository.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "workspace.repository.max_open_conns", Message: "must not be negative"})
	}
	return errs
}

func validateGit(cfg *GitSourceConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{Field: "workspace.git.repository", Message: "required for the git source"})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{Field: "workspace.git.branch", Message: "required for the git source"})
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "workspace.git.auth.token", Message: "required for token auth"})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "workspace.git.auth.ssh_key_path", Message: "required for ssh auth"})
		}
	default:
		errs = append(errs, FieldError{Field: "workspace.git.auth.type", Message: fmt.Sprintf("unknown auth type %q", cfg.Auth.Type)})
	}

	if cfg.Poll.Interval <= 0 {
		errs = append(errs, FieldError{Field: "workspace.git.poll.interval", Message: "must be positive"})
	}
	if cfg.Poll.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "workspace.git.poll.timeout", Message: "must be positive"})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{Field: "workspace.git.clone.depth", Message: "must not be negative"})
	}
	return errs
}

func validateDecisionLogs(cfg *DecisionLogConfig) []FieldError {
	var errs []FieldError
	if cfg.Disabled {
		return nil
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "decision_logs.sqlite.path", Message: "required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "decision_logs.sqlite.max_open_conns", Message: "must not be negative"})
		}
	default:
		errs = append(errs, FieldError{Field: "decision_logs.backend", Message: fmt.Sprintf("unknown backend %q (want memory or sqlite)", cfg.Backend)})
	}

	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "decision_logs.recorder.async_buffer", Message: "must not be negative"})
	}
	if cfg.Recorder.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "decision_logs.recorder.write_timeout", Message: "must not be negative"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "decision_logs.retention.days", Message: "must not be negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "decision_logs.retention.max_records", Message: "must not be negative"})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{Field: "decision_logs.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("must be host:port: %v", err)})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must not be negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "required when TLS is enabled"})
		}
	}
	switch cfg.TLS.MinVersion {
	case "1.2", "1.3":
	default:
		errs = append(errs, FieldError{Field: "server.tls.min_version", Message: fmt.Sprintf("unsupported version %q (want 1.2 or 1.3)", cfg.TLS.MinVersion)})
	}
	if cfg.TLS.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "must not be negative"})
	}

	if cfg.Auth.Enabled {
		if len(cfg.Auth.Keys) == 0 {
			errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
		}
		seen := make(map[string]bool, len(cfg.Auth.Keys))
		for i, k := range cfg.Auth.Keys {
			field := fmt.Sprintf("server.auth.keys[%d]", i)
			if k.Name == "" {
				errs = append(errs, FieldError{Field: field + ".name", Message: "required"})
			}
			if k.Key == "" {
				errs = append(errs, FieldError{Field: field + ".key", Message: "required"})
			} else if seen[k.Key] {
				errs = append(errs, FieldError{Field: field + ".key", Message: "duplicate key"})
			}
			seen[k.Key] = true
		}
	}

	if cfg.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, FieldError{Field: "server.rate_limit.requests_per_second", Message: "must not be negative"})
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, FieldError{Field: "server.rate_limit.burst", Message: "must not be negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown format %q (want json or text)", cfg.Logging.Format)})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.liveness_path", Message: "must start with /"})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "must start with /"})
	}
	return errs
}
