package db

import (
	"fmt"

	"pagespace/internal/config"
	"pagespace/internal/logging"
	"pagespace/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance.
type GormDB struct {
	*gorm.DB
}

// NewGorm initializes a new GORM database connection and migrates the schema.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Workspace{},
		&models.Page{},
		&models.Block{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.WithComponent("db").Info().
		Str("host", cfg.DBHost).
		Str("database", cfg.DBName).
		Msg("database connected and migrated")

	return &GormDB{db}, nil
}

// Close closes the underlying database connection.
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
