package core

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"vision-backend/internal/core/types"
)

// RunInference executes one forward pass. Errors and panics raised by the unit
// are reported as ErrInference so a single bad image cannot take down a worker.
func RunInference(unit InferenceUnit, image *types.DecodedImage) (output *types.RawInferenceOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during model inference", "panic", r, "stack", string(debug.Stack()))
			output, err = nil, fmt.Errorf("%w: panic: %v", ErrInference, r)
		}
	}()

	output, err = unit.Apply(image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if output == nil {
		return nil, fmt.Errorf("%w: model returned no output", ErrInference)
	}
	return output, nil
}
