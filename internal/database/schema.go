package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ModelQueued  string = "QUEUED"
	ModelLoading string = "LOADING"
	ModelReady   string = "READY"
	ModelFailed  string = "FAILED"
)

type Model struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name         string `gorm:"uniqueIndex;not null"`
	Type         string `gorm:"size:20;not null"`
	Status       string `gorm:"size:20;not null"`
	Description  string
	CreationTime time.Time
}

type UsageRecord struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestId string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`

	ModelName string `gorm:"index"`
	Endpoint  string `gorm:"size:20"`

	ImageCount        int
	ProcessingSeconds float64
	Cost              float64

	TopClasses datatypes.JSON // [["class_1", ...], ...]
}
