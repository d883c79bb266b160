package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/clipkit/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP render API",
		Long: `Start the HTTP render API.

Render requests name a source file and a destination path on this host, and
clipkit reads and writes them with its own permissions. Set MEDIA_ROOT to
confine both to one directory tree; relative request paths are then taken
relative to it and anything resolving outside it is rejected. Without
MEDIA_ROOT every path is trusted, so only expose the API to trusted callers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg, logger, deps, err := root.setup(ctx)
	if err != nil {
		return err
	}

	logger.Info("starting clipkit API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Int("max_concurrent_renders", cfg.MaxConcurrentRenders),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.String("media_root", cfg.MediaRoot),
	)
	if cfg.MediaRoot == "" {
		logger.Warn("MEDIA_ROOT is not set; render requests may read and write any path")
	}

	handlers := server.NewHandlers(deps.Service, logger,
		server.WithPlanner(deps.Executor),
		server.WithMediaRoot(cfg.MediaRoot),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.Service.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stop renders: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
