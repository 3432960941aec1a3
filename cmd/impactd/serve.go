package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/server"
)

const (
	shutdownTimeout = 10 * time.Second
	poolCleanup     = 5 * time.Minute
)

func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if addr == "" {
				addr = ":" + cfg.Port
			}
			return serve(cmd.Context(), cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":$PORT\")")

	return cmd
}

func serve(parent context.Context, cfg *config.Config, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg)
	app, err := server.New(cfg, log)
	if err != nil {
		return err
	}
	defer database.ClosePool()

	go app.Pages.Start(ctx)
	go func() {
		ticker := time.NewTicker(poolCleanup)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := database.CleanupIdleConnections(); n > 0 {
					log.WithField("closed", n).Info("Closed idle backend clients")
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Writes may include a photo upload to storage.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).WithField("environment", cfg.Environment).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
