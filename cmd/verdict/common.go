package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/telemetry/logging"
	"mercator-hq/verdict/pkg/workspace"
)

// out returns the writer command output goes to.
func out(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// loadConfig loads the configuration named by --config. A missing default
// config file is not an error: the built-in defaults are used instead.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(configPath())
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg, nil
}

// configPath returns the --config path, or "" when the default file does
// not exist and only defaults and environment overrides apply.
func configPath() string {
	if rootCmd.PersistentFlags().Changed("config") {
		return cfgFile
	}
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return cfgFile
}

// newLogger creates the command logger. Commands other than serve log as
// text to stderr and stay quiet below warnings unless --verbose is set.
func newLogger(cfg *config.Config, quiet bool) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	if quiet {
		lc.Format = "text"
		lc.Level = "warn"
	}
	if verbose {
		lc.Level = "debug"
	}
	return logging.Setup(lc)
}

// openValueStore opens the Dynamic Value store configured in cfg.
func openValueStore(cfg *config.Config, logger *slog.Logger) (dynamic.Store, error) {
	switch cfg.Values.Backend {
	case "memory":
		return dynamic.NewMemoryStore(logger), nil
	case "sqlite":
		return dynamic.NewSQLiteStore(dynamic.SQLiteConfig{
			Path:        cfg.Values.SQLite.Path,
			BusyTimeout: cfg.Values.SQLite.BusyTimeout,
		}, logger)
	default:
		return nil, cli.NewConfigError("values.backend", fmt.Sprintf("unsupported backend %q", cfg.Values.Backend))
	}
}

// localTable is a single table file loaded into a throwaway workspace.
type localTable struct {
	ws     *workspace.Workspace
	rule   *workspace.Rule
	store  dynamic.Store
	logger *slog.Logger
}

func (l *localTable) Close() error {
	return l.store.Close()
}

// openTable loads the table file at path. Dynamic Values come from the
// document's values section; with live set they are read from the
// configured store and the document only fills in missing ones. workers
// overrides the configured bulk concurrency when positive.
func openTable(ctx context.Context, path string, live bool, workers int) (*localTable, error) {
	if path == "" {
		return nil, cli.NewConfigError("table", "--table is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		cfg.Engine.BulkWorkers = workers
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return nil, err
	}

	doc, err := tablefile.LoadFile(path)
	if err != nil {
		return nil, err
	}

	var store dynamic.Store
	if live {
		store, err = openValueStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := keepStoredValues(ctx, doc, store); err != nil {
			store.Close()
			return nil, err
		}
	} else {
		store = dynamic.NewMemoryStore(logger)
	}

	ws := workspace.New(store,
		workspace.WithSettings(workspace.SettingsFromConfig(cfg.Engine)),
		workspace.WithLogger(logger.With("component", "workspace")),
	)
	if err := ws.LoadDocuments(ctx, []*tablefile.Document{doc}); err != nil {
		store.Close()
		return nil, err
	}
	rule, err := ws.Get(doc.Slug)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &localTable{ws: ws, rule: rule, store: store, logger: logger}, nil
}

// keepStoredValues drops seeds from doc for values the store already holds.
func keepStoredValues(ctx context.Context, doc *tablefile.Document, store dynamic.Store) error {
	for name := range doc.Values {
		_, err := store.Get(ctx, name)
		switch {
		case err == nil:
			delete(doc.Values, name)
		case errors.Is(err, dynamic.ErrValueNotFound):
		default:
			return err
		}
	}
	return nil
}

// formatValue renders a request or response value for text output.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v", v)
}
