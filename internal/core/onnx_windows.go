//go:build windows

package core

import (
	"errors"

	"vision-backend/internal/core/types"
)

var ErrOnnxNotSupportedOnWindows = errors.New("ONNX models are not supported on Windows")

type OnnxModel struct{}

func LoadOnnxModel(modelDir string) (InferenceUnit, error) {
	return nil, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxModel) Apply(image *types.DecodedImage) (*types.RawInferenceOutput, error) {
	return nil, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxModel) Release() {
	// no-op
}
