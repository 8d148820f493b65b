package database

import (
	"log"
	"log/slog"

	"vision-backend/internal/database/versions/migration_0"
	"vision-backend/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Runs instead of the individual migrations when no previous migration
		// is recorded, creating the latest schema directly.

		log.Println("clean database detected, running full schema initialization")

		dbType := db.Dialector.Name()
		if dbType == "sqlite" || dbType == "sqlite3" {
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		return txn.AutoMigrate(&Model{}, &UsageRecord{})
	})

	return migrator
}
