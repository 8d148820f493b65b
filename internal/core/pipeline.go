package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vision-backend/internal/core/types"
	"vision-backend/internal/core/utils"
)

// Pipeline runs decode -> inference -> postprocess for every image of a request
// on a shared worker pool and assembles the results in request order.
type Pipeline struct {
	provider ModelProvider
	pool     *utils.Pool
	usage    UsageSink
}

func NewPipeline(provider ModelProvider, pool *utils.Pool, usage UsageSink) *Pipeline {
	return &Pipeline{provider: provider, pool: pool, usage: usage}
}

func (p *Pipeline) inferImage(unit InferenceUnit) func(int, string) (*types.RawInferenceOutput, error) {
	return func(idx int, payload string) (*types.RawInferenceOutput, error) {
		image, err := DecodeImage(payload)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", idx, err)
		}

		output, err := RunInference(unit, image)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", idx, err)
		}
		return output, nil
	}
}

// Run fails the whole request if any image fails; no partial results are
// returned. The model is resolved before any image is decoded.
func (p *Pipeline) Run(ctx context.Context, endpoint string, req types.InferenceRequest) (*types.InferenceResponse, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("%w: request contains no images", ErrInvalidImage)
	}

	slog.Info("processing inference request", "request_id", req.Id, "model", req.ModelName, "images", len(req.Images))

	unit, release, err := p.provider.Resolve(ctx, req.ModelName)
	if err != nil {
		slog.Error("unable to resolve model", "model", req.ModelName, "error", err)
		return nil, err
	}

	var labels []string
	if labeler, ok := unit.(Labeler); ok {
		labels = labeler.Labels()
	}

	start := time.Now()

	batch := utils.SubmitBatch(ctx, p.pool, req.Images, p.inferImage(unit))
	// The unit is held until the last submitted image returns, even if the
	// request gives up waiting before then.
	go func() {
		<-batch.Done()
		release()
	}()

	outputs, err := batch.Wait(ctx)
	if err != nil {
		slog.Error("inference batch did not complete", "request_id", req.Id, "error", err)
		return nil, fmt.Errorf("inference batch did not complete: %w", err)
	}

	for _, output := range outputs {
		if output.Error != nil {
			slog.Error("image failed, aborting batch", "request_id", req.Id, "image", output.Index, "error", output.Error)
			return nil, output.Error
		}
	}

	res := &types.InferenceResponse{
		Id:         req.Id,
		Timestamp:  req.Timestamp,
		Logits:     make([][]float64, len(outputs)),
		TopClasses: make([][]string, len(outputs)),
	}

	for i, output := range outputs {
		ranked, err := Postprocess(output.Result, labels)
		if err != nil {
			slog.Error("error postprocessing model output", "request_id", req.Id, "image", i, "error", err)
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		res.Logits[i] = ranked.Probabilities
		res.TopClasses[i] = ranked.Labels
	}

	elapsed := time.Since(start).Seconds()
	res.Cost = ComputeCost(len(req.Images), elapsed)

	if p.usage != nil {
		p.usage.Record(ctx, types.UsageRecord{
			RequestId:         req.Id,
			Timestamp:         time.Now().UTC(),
			ModelName:         req.ModelName,
			Endpoint:          endpoint,
			ImageCount:        len(req.Images),
			ProcessingSeconds: elapsed,
			Cost:              res.Cost,
			TopClasses:        res.TopClasses,
		})
	}

	slog.Info("inference request complete", "request_id", req.Id, "model", req.ModelName, "elapsed", elapsed, "cost", res.Cost)

	return res, nil
}
