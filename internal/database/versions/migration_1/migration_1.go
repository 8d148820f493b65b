package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type Model struct {
	Description string
}

type UsageRecord struct {
	Endpoint string `gorm:"size:20"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Model{}, "Description"); err != nil {
		return fmt.Errorf("error adding Description column: %w", err)
	}

	if err := db.Migrator().AddColumn(&UsageRecord{}, "Endpoint"); err != nil {
		return fmt.Errorf("error adding Endpoint column: %w", err)
	}

	if err := db.Model(&UsageRecord{}).
		Where("endpoint IS NULL").
		Update("endpoint", "multiple").Error; err != nil {
		return fmt.Errorf("error setting default value for Endpoint: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&UsageRecord{}, "Endpoint"); err != nil {
		return fmt.Errorf("error dropping Endpoint column: %w", err)
	}

	if err := db.Migrator().DropColumn(&Model{}, "Description"); err != nil {
		return fmt.Errorf("error dropping Description column: %w", err)
	}

	return nil
}
