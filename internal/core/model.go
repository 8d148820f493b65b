package core

import (
	"context"
	"fmt"
	"sync"

	"vision-backend/internal/core/types"
)

// ModelType represents the runtime used to execute a model
type ModelType string

const (
	OnnxClassifier ModelType = "onnx"
)

// InferenceUnit is a loaded, read-only model. Apply must be safe to call from
// multiple goroutines at once on the same unit.
type InferenceUnit interface {
	Apply(image *types.DecodedImage) (*types.RawInferenceOutput, error)

	Release()
}

// Labeler is implemented by units that ship their own class label table.
type Labeler interface {
	Labels() []string
}

type ModelProvider interface {
	// Resolve returns ErrModelNotFound (wrapped) for unknown names. The unit
	// stays usable until release is called; release must be called exactly once.
	Resolve(ctx context.Context, name string) (unit InferenceUnit, release func(), err error)
}

type UsageSink interface {
	Record(ctx context.Context, record types.UsageRecord)
}

type ModelLoader func(modelDir string) (InferenceUnit, error)

var (
	loadersMu    sync.RWMutex
	modelLoaders = map[ModelType]ModelLoader{
		OnnxClassifier: LoadOnnxModel,
	}
)

func RegisterModelLoader(modelType ModelType, loader ModelLoader) {
	loadersMu.Lock()
	defer loadersMu.Unlock()

	modelLoaders[modelType] = loader
}

func GetModelLoader(modelType ModelType) (ModelLoader, error) {
	loadersMu.RLock()
	defer loadersMu.RUnlock()

	loader, ok := modelLoaders[modelType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for model type '%s'", modelType)
	}
	return loader, nil
}
