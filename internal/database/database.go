// Package database opens the MySQL connection and runs schema migration.
package database

import (
	"fmt"

	"github.com/communekit/core/internal/config"
	"github.com/communekit/core/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a MySQL connection and optionally runs auto-migration.
func Connect(cfg *config.AppConfig, autoMigrate bool) (*gorm.DB, error) {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return db, nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsProd() {
		return logger.Warn
	}
	return logger.Info
}

func openDB(cfg *config.AppConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               cfg.Database.DSNValue(),
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

// migrate runs GORM auto-migration for all models.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.UserModel{},
		&models.UserSession{},
		&models.APIToken{},
		&models.Event{},
		&models.Comment{},
		&models.Notification{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() == "mysql" {
		if err := db.Exec("ALTER TABLE `comments` MODIFY COLUMN `content` TEXT NOT NULL").Error; err != nil {
			return err
		}
		if err := db.Exec("ALTER TABLE `comments` MODIFY COLUMN `quoted_text` TEXT NULL").Error; err != nil {
			return err
		}
	}

	return nil
}
