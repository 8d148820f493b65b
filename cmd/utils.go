package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/database"
	"vision-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

type CatalogEntry struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Dir         string `yaml:"dir"`
}

type Catalog struct {
	Models []CatalogEntry `yaml:"models"`
}

func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("error reading model catalog %s: %w", path, err)
	}

	var catalog Catalog
	if err := yaml.UnmarshalStrict(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("error parsing model catalog %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i, entry := range catalog.Models {
		if entry.Name == "" {
			return Catalog{}, fmt.Errorf("model catalog entry %d has no name", i)
		}
		if seen[entry.Name] {
			return Catalog{}, fmt.Errorf("model '%s' is listed more than once", entry.Name)
		}
		seen[entry.Name] = true

		if entry.Type == "" {
			catalog.Models[i].Type = string(core.OnnxClassifier)
		}
	}

	return catalog, nil
}

// InitializeModels registers every catalog model and uploads its local
// directory to the object store unless artifacts are already present.
func InitializeModels(ctx context.Context, db *gorm.DB, store storage.ObjectStore, bucket string, catalog Catalog) error {
	if err := store.CreateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("error creating model bucket: %w", err)
	}

	for _, entry := range catalog.Models {
		if err := initializeModel(ctx, db, store, bucket, entry); err != nil {
			return err
		}
	}
	return nil
}

func initializeModel(ctx context.Context, db *gorm.DB, store storage.ObjectStore, bucket string, entry CatalogEntry) error {
	if _, err := core.GetModelLoader(core.ModelType(entry.Type)); err != nil {
		return fmt.Errorf("model '%s': %w", entry.Name, err)
	}

	model, err := database.GetModelByName(ctx, db, entry.Name)
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return fmt.Errorf("error querying model: %w", err)
	}

	if isNew {
		model = database.Model{
			Id:           uuid.New(),
			Name:         entry.Name,
			Type:         entry.Type,
			Status:       database.ModelQueued,
			Description:  entry.Description,
			CreationTime: time.Now(),
		}
		if err := db.WithContext(ctx).Create(&model).Error; err != nil {
			return fmt.Errorf("failed to create model record: %w", err)
		}
	} else if model.Description != entry.Description {
		if err := db.WithContext(ctx).Model(&model).Update("description", entry.Description).Error; err != nil {
			return fmt.Errorf("failed to update model record: %w", err)
		}
	}

	objs, err := store.ListObjects(ctx, bucket, model.Id.String()+"/")
	if err != nil {
		slog.Error("failed to list stored objects for model", "model", entry.Name, "model_id", model.Id, "error", err)
	} else if len(objs) > 0 {
		slog.Info("model already uploaded, skipping upload", "model", entry.Name, "model_id", model.Id)
		return database.UpdateModelStatus(ctx, db, model.Id, database.ModelReady)
	}

	if entry.Dir == "" {
		slog.Warn("model has no stored artifacts and no local dir", "model", entry.Name)
		return database.UpdateModelStatus(ctx, db, model.Id, database.ModelFailed)
	}

	info, err := os.Stat(entry.Dir)
	if err != nil || !info.IsDir() {
		slog.Warn("local model dir does not exist, skipping upload", "model", entry.Name, "dir", entry.Dir)
		return database.UpdateModelStatus(ctx, db, model.Id, database.ModelFailed)
	}

	if err := database.UpdateModelStatus(ctx, db, model.Id, database.ModelLoading); err != nil {
		return err
	}

	if err := store.UploadDir(ctx, bucket, model.Id.String(), entry.Dir); err != nil {
		database.UpdateModelStatus(ctx, db, model.Id, database.ModelFailed) //nolint:errcheck
		return fmt.Errorf("error uploading model '%s': %w", entry.Name, err)
	}

	slog.Info("successfully uploaded model", "model", entry.Name, "model_id", model.Id)
	return database.UpdateModelStatus(ctx, db, model.Id, database.ModelReady)
}
