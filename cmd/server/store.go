package main

import (
	"context"
	"fmt"

	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/repository"
	"github.com/dom/accounts/internal/repository/mongodb"
	"github.com/dom/accounts/internal/repository/postgres"
	gormLogger "gorm.io/gorm/logger"
)

type closeFunc func(context.Context) error

// openUserStore connects to the store selected by cfg.Store.
func openUserStore(ctx context.Context, cfg *config.Config) (repository.UserRepository, closeFunc, error) {
	switch cfg.Store {
	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		return mongodb.NewUserRepository(client.Database(cfg.MongoDatabase)), client.Disconnect, nil

	default:
		db, err := postgres.NewConnection(cfg.DatabaseURL, gormLogLevel(cfg.Env))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(db), func(context.Context) error { return sqlDB.Close() }, nil
	}
}

func gormLogLevel(env string) gormLogger.LogLevel {
	switch env {
	case config.EnvLocal:
		return gormLogger.Info
	case config.EnvDev:
		return gormLogger.Warn
	default:
		return gormLogger.Silent
	}
}
