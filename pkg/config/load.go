package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. ${VAR} references in the file are expanded from
// the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))), path)
}

// Parse decodes configuration from YAML, applies defaults and validates it.
// source names the configuration in errors.
func Parse(data []byte, source string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", source, err)
	}

	ApplyDefaults(&cfg)

	if err := resolveKeyFiles(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and then
// applies VERDICT_SECTION_FIELD environment variables, which take
// precedence over the file. An empty path starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// resolveKeyFiles fills API keys given as key_file. Relative paths are
// taken from the working directory.
func resolveKeyFiles(cfg *Config) error {
	for i := range cfg.Server.Auth.Keys {
		k := &cfg.Server.Auth.Keys[i]
		if k.Key != "" || k.KeyFile == "" {
			continue
		}
		data, err := os.ReadFile(k.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to read API key %q: %w", k.Name, err)
		}
		k.Key = strings.TrimSpace(string(data))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Engine
	envBool("VERDICT_ENGINE_DISABLE_SCHEMA_VALIDATION", &cfg.Engine.DisableSchemaValidation)
	envBool("VERDICT_ENGINE_REQUIRE_ALL_PROPERTIES", &cfg.Engine.RequireAllProperties)
	envBool("VERDICT_ENGINE_REQUIRE_FALLBACK", &cfg.Engine.RequireFallback)
	envInt("VERDICT_ENGINE_BULK_WORKERS", &cfg.Engine.BulkWorkers)

	// Values
	envString("VERDICT_VALUES_BACKEND", &cfg.Values.Backend)
	envString("VERDICT_VALUES_SQLITE_PATH", &cfg.Values.SQLite.Path)

	// Workspace
	envString("VERDICT_WORKSPACE_SOURCE", &cfg.Workspace.Source)
	envString("VERDICT_WORKSPACE_TABLES_DIR", &cfg.Workspace.TablesDir)
	envBool("VERDICT_WORKSPACE_WATCH", &cfg.Workspace.Watch)
	envString("VERDICT_WORKSPACE_REPOSITORY_URL", &cfg.Workspace.Repository.URL)
	envString("VERDICT_WORKSPACE_GIT_REPOSITORY", &cfg.Workspace.Git.Repository)
	envString("VERDICT_WORKSPACE_GIT_BRANCH", &cfg.Workspace.Git.Branch)
	envString("VERDICT_WORKSPACE_GIT_PATH", &cfg.Workspace.Git.Path)
	envString("VERDICT_WORKSPACE_GIT_AUTH_TOKEN", &cfg.Workspace.Git.Auth.Token)
	envDuration("VERDICT_WORKSPACE_GIT_POLL_INTERVAL", &cfg.Workspace.Git.Poll.Interval)

	// Decision logs
	envBool("VERDICT_DECISION_LOGS_DISABLED", &cfg.DecisionLogs.Disabled)
	envString("VERDICT_DECISION_LOGS_BACKEND", &cfg.DecisionLogs.Backend)
	envString("VERDICT_DECISION_LOGS_SQLITE_PATH", &cfg.DecisionLogs.SQLite.Path)
	envInt("VERDICT_DECISION_LOGS_RETENTION_DAYS", &cfg.DecisionLogs.Retention.Days)
	envString("VERDICT_DECISION_LOGS_RETENTION_PRUNE_SCHEDULE", &cfg.DecisionLogs.Retention.PruneSchedule)

	// Server
	envString("VERDICT_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("VERDICT_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("VERDICT_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envBool("VERDICT_SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("VERDICT_SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("VERDICT_SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	envBool("VERDICT_SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	envBool("VERDICT_SERVER_RATE_LIMIT_ENABLED", &cfg.Server.RateLimit.Enabled)

	// Telemetry
	envString("VERDICT_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("VERDICT_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envString("VERDICT_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("VERDICT_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("VERDICT_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv("VERDICT_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
