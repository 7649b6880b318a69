package postgres

import (
	"github.com/dom/accounts/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewRepositories(db *gorm.DB, blobs repository.BlobStore) *repository.Repositories {
	return &repository.Repositories{
		User:  NewUserRepository(db),
		Blobs: blobs,
	}
}
