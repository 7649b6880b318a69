package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/accounts/internal/api"
	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/repository"
	"github.com/dom/accounts/internal/service"
	"github.com/dom/accounts/internal/storage/s3"
	"github.com/dom/accounts/internal/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "accounts"

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Create tables and indexes before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.Env).With(slog.String("env", cfg.Env))

	shutdownTracing, tracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	users, closeStore, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(context.Background())

	if migrate {
		if err := users.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	blobs, err := s3.New(ctx, s3.Config{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		Bucket:         cfg.S3.Bucket,
		PublicURL:      cfg.S3.PublicURL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	hub := events.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	publishers := events.Multi{hub}
	if cfg.NATSURL != "" {
		bus, err := events.NewBus(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer bus.Close()
		publishers = append(publishers, bus)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	services := service.NewServices(
		&repository.Repositories{User: users, Blobs: blobs},
		issuer,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		publishers,
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(services, hub, cfg, log, tracing),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", srv.Addr), slog.String("store", cfg.Store))
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

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
