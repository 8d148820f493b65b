package core

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"vision-backend/internal/core/types"
)

const topK = 5

func PlaceholderLabel(classIdx int) string {
	return fmt.Sprintf("class_%d", classIdx)
}

func validateOutput(raw *types.RawInferenceOutput) error {
	if raw == nil {
		return fmt.Errorf("%w: missing model output", ErrPostprocess)
	}

	numClasses := len(raw.Scores)
	if numClasses == 0 {
		return fmt.Errorf("%w: model output has no classes", ErrPostprocess)
	}

	if len(raw.Shape) > 0 {
		if len(raw.Shape) != 2 || raw.Shape[0] != 1 || raw.Shape[1] != int64(numClasses) {
			return fmt.Errorf("%w: expected output shape [1 %d], got %v", ErrPostprocess, numClasses, raw.Shape)
		}
	}

	for i, score := range raw.Scores {
		if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
			return fmt.Errorf("%w: non finite score at class %d", ErrPostprocess, i)
		}
	}

	return nil
}

func softmax(scores []float32) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, float64(s))
	}

	probs := make([]float64, len(scores))
	total := 0.0
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - maxScore)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}

// Postprocess ranks the 5 most probable classes of a 1xC score vector. Labels
// come from the provided table when it covers the class index, otherwise a
// class_<index> placeholder is used.
func Postprocess(raw *types.RawInferenceOutput, labels []string) (*types.RankedResult, error) {
	if err := validateOutput(raw); err != nil {
		return nil, err
	}

	probs := softmax(raw.Scores)

	indices := make([]int, len(probs))
	for i := range indices {
		indices[i] = i
	}
	// Stable sort keeps ascending class order among equal probabilities.
	slices.SortStableFunc(indices, func(a, b int) int {
		return cmp.Compare(probs[b], probs[a])
	})

	k := min(topK, len(indices))
	result := &types.RankedResult{
		Probabilities: make([]float64, k),
		Labels:        make([]string, k),
	}
	for i, classIdx := range indices[:k] {
		result.Probabilities[i] = probs[classIdx]
		if classIdx < len(labels) && labels[classIdx] != "" {
			result.Labels[i] = labels[classIdx]
		} else {
			result.Labels[i] = PlaceholderLabel(classIdx)
		}
	}

	return result, nil
}
