package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the review API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"source", cfg.Data.Source,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer eventBus.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	reloader := worker.NewReloadWorker(eventBus, a.session)
	if err := reloader.Start(); err != nil {
		return fmt.Errorf("failed to start reload worker: %w", err)
	}

	// The first load runs in the background; /ready reports loading until it lands.
	go func() {
		if _, err := a.session.Load(ctx); err != nil {
			slog.Warn("initial dataset load discarded", "error", err)
		}
	}()

	srv := api.NewServer(cfg.Server, api.Deps{
		Session: a.session,
		Repo:    a.repo,
		Cache:   a.cache,
		Bus:     eventBus,
		Worker:  reloader,
		Source:  cfg.Data.Source,
		Version: Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		reloader.Stop()
		return err
	}

	slog.Info("shutting down...")

	if err := reloader.Stop(); err != nil {
		slog.Error("failed to stop reload worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}
