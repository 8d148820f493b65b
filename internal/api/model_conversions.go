package api

import (
	"encoding/json"
	"log/slog"

	"vision-backend/internal/core/types"
	"vision-backend/internal/database"
	"vision-backend/pkg/api"
)

func convertModel(m database.Model) api.Model {
	return api.Model{
		Id:          m.Id,
		Name:        m.Name,
		Type:        m.Type,
		Status:      m.Status,
		Description: m.Description,
	}
}

func convertModels(ms []database.Model) []api.Model {
	models := make([]api.Model, 0, len(ms))
	for _, m := range ms {
		models = append(models, convertModel(m))
	}
	return models
}

func convertUsageRecord(r database.UsageRecord) api.UsageRecord {
	record := api.UsageRecord{
		RequestId:         r.RequestId,
		Timestamp:         r.Timestamp,
		ModelName:         r.ModelName,
		Endpoint:          r.Endpoint,
		ImageCount:        r.ImageCount,
		ProcessingSeconds: r.ProcessingSeconds,
		Cost:              r.Cost,
	}

	if len(r.TopClasses) > 0 {
		if err := json.Unmarshal(r.TopClasses, &record.TopClasses); err != nil {
			slog.Error("error parsing stored top classes", "request_id", r.RequestId, "error", err)
		}
	}

	return record
}

func convertUsageRecords(rs []database.UsageRecord) []api.UsageRecord {
	records := make([]api.UsageRecord, 0, len(rs))
	for _, r := range rs {
		records = append(records, convertUsageRecord(r))
	}
	return records
}

func convertInferenceRequest(req api.InferenceRequest) types.InferenceRequest {
	return types.InferenceRequest{
		Id:        req.Id,
		Timestamp: req.Timestamp,
		Images:    req.ImageBase64,
		ModelName: req.ModelName,
	}
}

func convertInferenceResponse(res *types.InferenceResponse) api.InferenceResponse {
	return api.InferenceResponse{
		Id:          res.Id,
		Timestamp:   res.Timestamp,
		Logits:      res.Logits,
		Top5Classes: res.TopClasses,
		Cost:        res.Cost,
	}
}
