package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/samaanhq/shipyard/internal/shell/api"
	"github.com/samaanhq/shipyard/internal/shell/docker"
	"github.com/samaanhq/shipyard/internal/shell/platform"
	"github.com/samaanhq/shipyard/internal/shell/registry"
	"github.com/samaanhq/shipyard/internal/shell/runner"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the Shipyard application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	docker     docker.Client
	worker     *runner.Worker
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Connect to Docker
	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify Docker connection
	if err := d.Ping(); err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	ctx := context.Background()

	// Create registry credential provider
	reg, err := registry.New(ctx, registry.Config{
		Type:     cfg.Registry.Type,
		Server:   cfg.Registry.Server,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password,
		Region:   cfg.Registry.Region,
	})
	if err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}
	logger.Info("registry provider configured", "type", cfg.Registry.Type)

	// Create secret backends: local always, AWS Secrets Manager when enabled
	backends := []secrets.Backend{secrets.NewLocalBackend(cfg.Secrets.MasterKey)}
	if cfg.Secrets.AWS.Enabled {
		awssm, err := secrets.NewAWSSMBackend(ctx, cfg.Secrets.AWS.Region, cfg.Secrets.AWS.Prefix)
		if err != nil {
			s.Close()
			d.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
		backends = append(backends, awssm)
		logger.Info("awssm secret backend enabled",
			"region", cfg.Secrets.AWS.Region,
			"prefix", cfg.Secrets.AWS.Prefix,
		)
	}
	sec := secrets.NewManager(s, logger, backends...)

	// Create deploy targets
	targets := platform.Targets(platform.Config{
		HTTPEndpoint: cfg.Platform.HTTPEndpoint,
		HTTPToken:    cfg.Platform.HTTPToken,
		DOToken:      cfg.Platform.DOToken,
	}, logger)
	if len(targets) == 0 {
		logger.Warn("no deploy targets configured, deploy steps will fail")
	}

	// Create run executor and queue worker
	r := runner.NewRunner(s, d, reg, sec, targets, cfg.Workspace.WorkDir, logger)

	workerCfg := runner.DefaultWorkerConfig()
	if cfg.Worker.Interval > 0 {
		workerCfg.Interval = cfg.Worker.Interval
	}
	if cfg.Worker.RunTimeout > 0 {
		workerCfg.RunTimeout = cfg.Worker.RunTimeout
	}
	worker := runner.NewWorker(s, r, workerCfg, logger)

	// Create HTTP handler
	handler := api.NewHandler(s, d, sec, logger, cfg.Workspace.EnvDir, cfg.Auth.Enabled)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		docker:     d,
		worker:     worker,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start run queue worker
	s.worker.Start()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop run queue worker, waits for an in-flight run to finish its step
	s.worker.Stop()

	// Close Docker client
	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
