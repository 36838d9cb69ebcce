package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/server/middleware"
	"mercator-hq/verdict/pkg/telemetry/health"
	"mercator-hq/verdict/pkg/telemetry/metrics"
	"mercator-hq/verdict/pkg/telemetry/tracing"
	"mercator-hq/verdict/pkg/workspace"
)

// BuildInfo is reported by GET /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server serves a workspace over HTTP.
type Server struct {
	config    config.ServerConfig
	telemetry config.TelemetryConfig

	workspace *workspace.Workspace
	decisions decisionlog.Storage
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	health    *health.Checker
	build     BuildInfo
	logger    *slog.Logger

	apiKeys *middleware.APIKeys
	limiter *middleware.RateLimiter
	certs   *certReloader

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures a Server.
type Option func(*Server)

// WithDecisionLog serves GET /v1/decisions from storage.
func WithDecisionLog(storage decisionlog.Storage) Option {
	return func(s *Server) { s.decisions = storage }
}

// WithMetrics serves the collector's registry on the metrics path.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithTracer starts a server span per request.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithHealth uses checker for the readiness probe.
func WithHealth(checker *health.Checker) Option {
	return func(s *Server) { s.health = checker }
}

// WithBuildInfo sets what GET /version reports.
func WithBuildInfo(info BuildInfo) Option {
	return func(s *Server) { s.build = info }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server for ws. The workspace is registered as a
// readiness check.
func NewServer(cfg *config.Config, ws *workspace.Workspace, opts ...Option) *Server {
	s := &Server{
		config:       cfg.Server,
		telemetry:    cfg.Telemetry,
		workspace:    ws,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default().With("component", "server")
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.health == nil {
		s.health = health.New(cfg.Telemetry.Health.CheckTimeout)
	}
	if s.config.Auth.Enabled {
		s.apiKeys = middleware.NewAPIKeys(s.config.Auth.Keys)
	}
	if s.config.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
	}

	s.health.RegisterCheck("workspace", ws.Ping)
	if s.decisions != nil {
		s.health.RegisterCheck("decision_log", func(ctx context.Context) error {
			_, err := s.decisions.Count(ctx, &decisionlog.Query{Limit: 1})
			return err
		})
	}
	return s
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and blocks until ctx is cancelled, Shutdown is called
// or the server fails. With TLS enabled the listener is wrapped and the
// certificate files are watched for renewals.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	if s.config.TLS.Enabled {
		certs, err := newCertReloader(s.config.TLS, s.logger)
		if err != nil {
			s.mu.Unlock()
			ln.Close()
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.certs = certs
		ln = tls.NewListener(ln, certs.tlsConfig(s.config.TLS.MinVersion))
		go certs.Watch(ctx, s.config.TLS.ReloadInterval)
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return nil
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		defer close(s.shutdownChan)

		s.mu.RLock()
		running, srv := s.isRunning, s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// ReloadCertificates reloads the TLS key pair from disk. It is a no-op
// when TLS is disabled or the server has not started.
func (s *Server) ReloadCertificates() error {
	s.mu.RLock()
	certs := s.certs
	s.mu.RUnlock()
	if certs == nil {
		return nil
	}
	return certs.Reload()
}

// ReloadAPIKeys replaces the accepted API keys. Enabling or disabling auth
// needs a restart, so it is a no-op when auth is disabled.
func (s *Server) ReloadAPIKeys(keys []config.APIKeyConfig) {
	if s.apiKeys == nil {
		return
	}
	s.apiKeys.Replace(keys)
	s.logger.Info("API keys reloaded", "keys", len(keys))
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
