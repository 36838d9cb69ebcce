package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/recorder"
	"mercator-hq/verdict/pkg/decisionlog/retention"
	"mercator-hq/verdict/pkg/gitsource"
	"mercator-hq/verdict/pkg/server"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/telemetry/health"
	"mercator-hq/verdict/pkg/telemetry/metrics"
	"mercator-hq/verdict/pkg/telemetry/tracing"
	"mercator-hq/verdict/pkg/workspace"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	tablesDir     string
	watch         bool
	published     bool
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workspace over HTTP",
	Long: `Start the HTTP server with the specified configuration.

Tables are loaded from workspace.tables_dir (source "file") or from a git
clone (source "git"), or with --published from the latest versions in the
repository. File sources reload on change with --watch; git sources are
polled. SIGHUP reloads tables on demand. A failed reload keeps the tables
currently served.

Examples:
  # Start with default config
  verdict serve

  # Start with custom config and reload tables on change
  verdict serve --config /etc/verdict/verdict.yaml --watch

  # Serve the published versions instead of the table files
  verdict serve --published

  # Validate config and tables without starting the server
  verdict serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveFlags.tablesDir, "tables", "", "override workspace.tables_dir")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", false, "reload tables when files change")
	serveCmd.Flags().BoolVar(&serveFlags.published, "published", false, "serve the latest published versions from the repository")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and tables without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	config.SetConfig(cfg)

	// Apply flag overrides
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if serveFlags.tablesDir != "" {
		cfg.Workspace.TablesDir = serveFlags.tablesDir
	}
	if serveFlags.watch {
		cfg.Workspace.Watch = true
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	w := out(cmd)
	fmt.Fprintf(w, "Verdict v%s\n", Version)
	fmt.Fprintln(w, "✓ Configuration loaded")

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer tracer.Shutdown(context.Background())

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	store, err := openValueStore(cfg, logger.With("component", "dynamic"))
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer store.Close()
	fmt.Fprintf(w, "✓ Value store opened (%s)\n", cfg.Values.Backend)

	repo, err := workspace.OpenRepository(cfg.Workspace.Repository)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer repo.Close()
	fmt.Fprintln(w, "✓ Version repository opened")

	var (
		decisions decisionlog.Storage
		rec       *recorder.Recorder
	)
	if !cfg.DecisionLogs.Disabled && !serveFlags.dryRun {
		decisions, err = openDecisionStorage(&cfg.DecisionLogs)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer decisions.Close()

		rec = recorder.NewRecorder(decisions, &recorder.Config{
			Enabled:      true,
			AsyncBuffer:  cfg.DecisionLogs.Recorder.AsyncBuffer,
			WriteTimeout: cfg.DecisionLogs.Recorder.WriteTimeout,
		})
		defer rec.Close()

		if cfg.DecisionLogs.Retention.PruneSchedule != "" {
			pruner := retention.NewPruner(decisions, retentionConfig(cfg.DecisionLogs.Retention))
			if err := pruner.Start(ctx); err != nil {
				logger.Warn("failed to start retention scheduler", "error", err)
			} else {
				defer pruner.Stop()
				if next := pruner.NextPruning(); next != nil {
					logger.Debug("decision log retention scheduler started", "next_pruning", next)
				}
			}
		}
		fmt.Fprintf(w, "✓ Decision log initialized (%s)\n", cfg.DecisionLogs.Backend)
	}

	wsOpts := []workspace.Option{
		workspace.WithRepository(repo),
		workspace.WithMetrics(collector),
		workspace.WithTracer(tracer),
		workspace.WithSettings(workspace.SettingsFromConfig(cfg.Engine)),
		workspace.WithLogger(logger.With("component", "workspace")),
	}
	if rec != nil {
		wsOpts = append(wsOpts, workspace.WithRecorder(rec))
	}
	ws := workspace.New(store, wsOpts...)

	source, err := startSource(ctx, cfg, ws, logger)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer source.stop()
	fmt.Fprintf(w, "✓ Workspace loaded (%d rules from %s)\n", len(ws.List()), source.name)

	if serveFlags.dryRun {
		fmt.Fprintln(w, "✓ Configuration valid")
		return nil
	}

	srv := server.NewServer(cfg, ws,
		server.WithDecisionLog(decisions),
		server.WithMetrics(collector),
		server.WithTracer(tracer),
		server.WithHealth(health.New(cfg.Telemetry.Health.CheckTimeout)),
		server.WithBuildInfo(server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate}),
		server.WithLogger(logger.With("component", "server")),
	)

	// SIGHUP reloads tables from the active source, the API keys and the
	// TLS certificate.
	hup, stopHUP := cli.ReloadSignals()
	defer stopHUP()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("reload requested")
				if err := source.reload(ctx); err != nil {
					logger.Error("reload failed", "error", err)
				}
				if err := config.ReloadConfig(configPath()); err != nil {
					logger.Error("config reload failed", "error", err)
				} else {
					srv.ReloadAPIKeys(config.GetConfig().Server.Auth.Keys)
				}
				if err := srv.ReloadCertificates(); err != nil {
					logger.Error("certificate reload failed", "error", err)
				}
			}
		}
	}()

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Server listening on %s://%s\n", scheme, cfg.Server.ListenAddress)
	fmt.Fprintf(w, "✓ Health endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Health.ReadinessPath)
	fmt.Fprintf(w, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	if cfg.Server.Auth.Enabled {
		fmt.Fprintf(w, "✓ API key auth enabled (%d keys)\n", len(cfg.Server.Auth.Keys))
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(w, "✓ Server stopped")
	return nil
}

// tableSource is where the served tables come from.
type tableSource struct {
	name   string
	reload func(ctx context.Context) error
	stop   func()
}

// startSource loads the workspace from the configured source and starts
// watching it for changes.
func startSource(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (*tableSource, error) {
	if serveFlags.published {
		src := &tableSource{name: "repository", reload: ws.Load, stop: func() {}}
		return src, ws.Load(ctx)
	}

	switch cfg.Workspace.Source {
	case "git":
		return startGitSource(ctx, cfg, ws, logger)
	default:
		return startFileSource(ctx, cfg, ws, logger)
	}
}

func startFileSource(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (*tableSource, error) {
	dir := cfg.Workspace.TablesDir
	reload := func(ctx context.Context) error { return ws.LoadDir(ctx, dir) }
	src := &tableSource{name: dir, reload: reload, stop: func() {}}

	if err := reload(ctx); err != nil {
		return nil, err
	}
	if !cfg.Workspace.Watch || serveFlags.dryRun {
		return src, nil
	}

	wc := tablefile.DefaultWatchConfig()
	wc.Path = dir
	watcher, err := tablefile.NewWatcher(wc, logger.With("component", "tablefile.watcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go func() {
		// Watch blocks until ctx is cancelled; reload errors are logged there.
		if err := watcher.Watch(ctx, func() error { return reload(ctx) }); err != nil && ctx.Err() == nil {
			logger.Error("table watcher stopped", "error", err)
		}
	}()
	src.stop = func() { watcher.Stop() }
	logger.Info("watching tables", "dir", dir)
	return src, nil
}

func startGitSource(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (*tableSource, error) {
	repo, err := gitsource.NewRepository(cfg.Workspace.Git)
	if err != nil {
		return nil, err
	}
	if err := repo.Clone(ctx); err != nil {
		return nil, err
	}

	dir := repo.TablesPath()
	if err := ws.LoadDir(ctx, dir); err != nil {
		return nil, err
	}

	poller := gitsource.NewPoller(repo, cfg.Workspace.Git.Poll.Interval, func(dir string) error {
		return ws.LoadDir(ctx, dir)
	}, logger.With("component", "gitsource"))

	src := &tableSource{
		name:   cfg.Workspace.Git.Repository,
		reload: poller.Check,
		stop:   func() {},
	}
	if serveFlags.dryRun {
		return src, nil
	}
	if err := poller.Start(ctx); err != nil {
		return nil, err
	}
	src.stop = poller.Stop
	return src, nil
}
