package migration_0

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Model struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name         string `gorm:"uniqueIndex;not null"`
	Type         string `gorm:"size:20;not null"`
	Status       string `gorm:"size:20;not null"`
	CreationTime time.Time
}

type UsageRecord struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestId string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`

	ModelName string `gorm:"index"`

	ImageCount        int
	ProcessingSeconds float64
	Cost              float64

	TopClasses datatypes.JSON
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&Model{}, &UsageRecord{})
}
