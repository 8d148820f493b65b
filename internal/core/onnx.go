//go:build !windows

package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vision-backend/internal/core/types"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxModelFile    = "model.onnx"
	onnxMetadataFile = "metadata.json"
)

type OnnxMetadata struct {
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	NumClasses int64    `json:"num_classes"`
	Classes    []string `json:"classes"`
}

// OnnxModel wraps a DynamicAdvancedSession. Tensors are allocated per call, so
// a single session can serve concurrent Apply calls.
type OnnxModel struct {
	session  *ort.DynamicAdvancedSession
	metadata OnnxMetadata
}

func loadOnnxMetadata(path string) (OnnxMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OnnxMetadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata OnnxMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return OnnxMetadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if metadata.NumClasses <= 0 {
		metadata.NumClasses = int64(len(metadata.Classes))
	}
	if metadata.NumClasses <= 0 {
		return OnnxMetadata{}, fmt.Errorf("metadata must specify num_classes or classes")
	}

	return metadata, nil
}

func LoadOnnxModel(modelDir string) (InferenceUnit, error) {
	metadata, err := loadOnnxMetadata(filepath.Join(modelDir, onnxMetadataFile))
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, onnxModelFile),
		[]string{metadata.InputName},
		[]string{metadata.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &OnnxModel{session: session, metadata: metadata}, nil
}

func (m *OnnxModel) Apply(image *types.DecodedImage) (*types.RawInferenceOutput, error) {
	inT, err := ort.NewTensor(ort.NewShape(image.Shape()...), image.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inT.Destroy()

	outShape := []int64{1, m.metadata.NumClasses}
	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	scores := make([]float32, m.metadata.NumClasses)
	copy(scores, outT.GetData())

	return &types.RawInferenceOutput{Shape: outShape, Scores: scores}, nil
}

func (m *OnnxModel) Labels() []string {
	return m.metadata.Classes
}

func (m *OnnxModel) Release() {
	if m.session != nil {
		m.session.Destroy()
	}
}
