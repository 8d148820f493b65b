package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateModelStatus(ctx context.Context, txn *gorm.DB, modelId uuid.UUID, status string) error {
	if err := txn.WithContext(ctx).Model(&Model{Id: modelId}).Update("status", status).Error; err != nil {
		slog.Error("error updating model status", "model_id", modelId, "status", status, "error", err)
		return err
	}
	return nil
}

func GetModelByName(ctx context.Context, db *gorm.DB, name string) (Model, error) {
	var model Model
	if err := db.WithContext(ctx).Where("name = ?", name).First(&model).Error; err != nil {
		return Model{}, err
	}
	return model, nil
}

func ListModels(ctx context.Context, db *gorm.DB, status string) ([]Model, error) {
	var models []Model
	query := db.WithContext(ctx).Order("name")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}
	return models, nil
}

func NewUsageRecord(requestId, modelName, endpoint string, timestamp time.Time, imageCount int, processingSeconds, cost float64, topClasses [][]string) (UsageRecord, error) {
	classes, err := json.Marshal(topClasses)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("error serializing top classes: %w", err)
	}

	return UsageRecord{
		Id:                uuid.New(),
		RequestId:         requestId,
		Timestamp:         timestamp.UTC(),
		ModelName:         modelName,
		Endpoint:          endpoint,
		ImageCount:        imageCount,
		ProcessingSeconds: processingSeconds,
		Cost:              cost,
		TopClasses:        classes,
	}, nil
}

func SaveUsageRecord(ctx context.Context, db *gorm.DB, record UsageRecord) error {
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error saving usage record", "request_id", record.RequestId, "error", err)
		return fmt.Errorf("error saving usage record: %w", err)
	}
	return nil
}

type UsageFilter struct {
	ModelName string
	Limit     int
	Offset    int
}

// ListUsageRecords returns records newest first.
func ListUsageRecords(ctx context.Context, db *gorm.DB, filter UsageFilter) ([]UsageRecord, error) {
	query := db.WithContext(ctx).Order("timestamp DESC")
	if filter.ModelName != "" {
		query = query.Where("model_name = ?", filter.ModelName)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []UsageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing usage records: %w", err)
	}
	return records, nil
}
