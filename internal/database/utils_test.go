package database_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vision-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

func TestUsageRecords(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, model := range []string{"resnet", "vit", "resnet"} {
		record, err := database.NewUsageRecord(
			uuid.NewString(), model, "multiple", base.Add(time.Duration(i)*time.Minute),
			i+1, 0.5, 0.05, [][]string{{"class_1", "class_2"}},
		)
		require.NoError(t, err)
		require.NoError(t, database.SaveUsageRecord(ctx, db, record))
	}

	records, err := database.ListUsageRecords(ctx, db, database.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3, records[0].ImageCount, "newest record first")
	assert.Equal(t, 1, records[2].ImageCount)

	var classes [][]string
	require.NoError(t, json.Unmarshal(records[0].TopClasses, &classes))
	assert.Equal(t, [][]string{{"class_1", "class_2"}}, classes)

	filtered, err := database.ListUsageRecords(ctx, db, database.UsageFilter{ModelName: "resnet", Limit: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "resnet", filtered[0].ModelName)
	assert.Equal(t, 3, filtered[0].ImageCount)

	paged, err := database.ListUsageRecords(ctx, db, database.UsageFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, 1, paged[0].ImageCount)
}

func TestModels(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	ready := database.Model{Id: uuid.New(), Name: "resnet", Type: "onnx", Status: database.ModelReady, CreationTime: time.Now()}
	queued := database.Model{Id: uuid.New(), Name: "alexnet", Type: "onnx", Status: database.ModelQueued, CreationTime: time.Now()}
	require.NoError(t, db.Create(&ready).Error)
	require.NoError(t, db.Create(&queued).Error)

	all, err := database.ListModels(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alexnet", all[0].Name)

	readyOnly, err := database.ListModels(ctx, db, database.ModelReady)
	require.NoError(t, err)
	require.Len(t, readyOnly, 1)
	assert.Equal(t, "resnet", readyOnly[0].Name)

	require.NoError(t, database.UpdateModelStatus(ctx, db, queued.Id, database.ModelFailed))
	model, err := database.GetModelByName(ctx, db, "alexnet")
	require.NoError(t, err)
	assert.Equal(t, database.ModelFailed, model.Status)

	_, err = database.GetModelByName(ctx, db, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
