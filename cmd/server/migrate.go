package main

import (
	"context"
	"log/slog"

	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/logger"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users table or collection indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Env)

			users, closeStore, err := openUserStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore(context.Background())

			if err := users.Migrate(ctx); err != nil {
				return err
			}

			log.Info("migration complete", slog.String("store", cfg.Store))
			return nil
		},
	}
}
