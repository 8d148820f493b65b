package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/core/utils"
	"vision-backend/internal/database"
	"vision-backend/internal/storage"

	"gorm.io/gorm"
)

const (
	maxConcurrentLoads = 1024
	downloadSuffix     = ".download"
)

type cacheEntry struct {
	unit         *cachedUnit
	lastAccessed time.Time
}

// CatalogProvider resolves model names against the model catalog, pulling
// artifacts from the object store on first use and keeping at most maxSize
// loaded units in memory.
type CatalogProvider struct {
	db          *gorm.DB
	storage     storage.ObjectStore
	modelBucket string
	localDir    string

	loadLocks *utils.MutexMap

	mu      sync.Mutex
	units   map[string]*cacheEntry
	maxSize int
}

var _ core.ModelProvider = (*CatalogProvider)(nil)

func NewCatalogProvider(db *gorm.DB, storage storage.ObjectStore, modelBucket, localDir string, maxSize int) *CatalogProvider {
	return &CatalogProvider{
		db:          db,
		storage:     storage,
		modelBucket: modelBucket,
		localDir:    localDir,
		loadLocks:   utils.NewMutexMap(maxConcurrentLoads),
		units:       make(map[string]*cacheEntry),
		maxSize:     max(maxSize, 1),
	}
}

// acquireCached leases the cached unit for name, if there is one.
func (p *CatalogProvider) acquireCached(name string) (*cachedUnit, func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.units[name]
	if !ok {
		return nil, nil, false
	}
	entry.lastAccessed = time.Now()
	return entry.unit, entry.unit.acquire(), true
}

// insertAndAcquire adds unit to the cache, evicting the least recently used
// entries to make room, and leases it to the caller.
func (p *CatalogProvider) insertAndAcquire(name string, unit *cachedUnit) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.units) >= p.maxSize {
		oldestName := ""
		var oldestTime time.Time
		for n, entry := range p.units {
			if oldestName == "" || entry.lastAccessed.Before(oldestTime) {
				oldestName = n
				oldestTime = entry.lastAccessed
			}
		}

		evicted := p.units[oldestName]
		delete(p.units, oldestName)
		slog.Info("evicting model from cache", "model", oldestName, "leases", evicted.unit.leases())
		evicted.unit.evict()
	}

	p.units[name] = &cacheEntry{unit: unit, lastAccessed: time.Now()}
	return unit.acquire()
}

func (p *CatalogProvider) Resolve(ctx context.Context, name string) (core.InferenceUnit, func(), error) {
	if unit, release, ok := p.acquireCached(name); ok {
		return unit, release, nil
	}

	var unit *cachedUnit
	var release func()
	err := p.loadLocks.WithLock(name, func() error {
		if cached, cachedRelease, ok := p.acquireCached(name); ok {
			unit, release = cached, cachedRelease
			return nil
		}

		loaded, err := p.load(ctx, name)
		if err != nil {
			return err
		}

		unit = &cachedUnit{unit: loaded}
		release = p.insertAndAcquire(name, unit)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return unit, release, nil
}

func (p *CatalogProvider) load(ctx context.Context, name string) (core.InferenceUnit, error) {
	model, err := database.GetModelByName(ctx, p.db, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrModelNotFound, name)
		}
		slog.Error("error querying model", "model", name, "error", err)
		return nil, fmt.Errorf("error querying model '%s': %w", name, err)
	}

	if model.Status != database.ModelReady {
		return nil, fmt.Errorf("%w: '%s' has status %s", core.ErrModelNotFound, name, model.Status)
	}

	loader, err := core.GetModelLoader(core.ModelType(model.Type))
	if err != nil {
		return nil, err
	}

	localDir := filepath.Join(p.localDir, model.Id.String())
	if _, err := os.Stat(localDir); os.IsNotExist(err) {
		slog.Info("model not found locally, downloading from object store", "model", name, "model_id", model.Id)

		if err := p.download(ctx, model.Id.String(), localDir); err != nil {
			return nil, fmt.Errorf("failed to download model '%s': %w", name, err)
		}
	}

	start := time.Now()
	unit, err := loader(localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load model '%s': %w", name, err)
	}
	slog.Info("model loaded", "model", name, "type", model.Type, "duration", time.Since(start))

	return unit, nil
}

// download fetches the artifacts into a staging dir and renames it into place,
// so localDir only ever exists with a complete download.
func (p *CatalogProvider) download(ctx context.Context, modelId string, localDir string) error {
	stagingDir := filepath.Join(p.localDir, "."+modelId+downloadSuffix)
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("failed to clear staging dir: %w", err)
	}

	if err := p.storage.DownloadDir(ctx, p.modelBucket, modelId, stagingDir, false); err != nil {
		os.RemoveAll(stagingDir) //nolint:errcheck
		return err
	}

	if err := os.Rename(stagingDir, localDir); err != nil {
		os.RemoveAll(stagingDir) //nolint:errcheck
		return fmt.Errorf("failed to move model into cache: %w", err)
	}
	return nil
}

// Warmup loads the named models concurrently so the first request against
// each of them does not pay the load cost.
func (p *CatalogProvider) Warmup(ctx context.Context, names []string, maxWorkers int) error {
	results := utils.RunInPool(func(name string) (struct{}, error) {
		_, release, err := p.Resolve(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		release()
		return struct{}{}, nil
	}, names, maxWorkers)

	var errs []error
	for _, result := range results {
		if result.Error != nil {
			slog.Error("error warming up model", "model", names[result.Index], "error", result.Error)
			errs = append(errs, result.Error)
		}
	}
	return errors.Join(errs...)
}

func (p *CatalogProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, entry := range p.units {
		if leases := entry.unit.leases(); leases > 0 {
			slog.Warn("releasing model that is still in use", "model", name, "leases", leases)
		}
		entry.unit.Release()
		delete(p.units, name)
	}
}
