package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/database"
	"vision-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SingleEndpoint   = "single"
	MultipleEndpoint = "multiple"

	defaultUsageLimit = 100
	maxUsageLimit     = 1000

	healthTimeFormat = "2006-01-02 15:04:05"
)

type BackendService struct {
	db              *gorm.DB
	pipeline        *core.Pipeline
	requestTimeout  time.Duration
	maxRequestBytes int64
}

// NewBackendService creates the service. A maxRequestBytes of 0 leaves
// inference request bodies unbounded.
func NewBackendService(db *gorm.DB, pipeline *core.Pipeline, requestTimeout time.Duration, maxRequestBytes int64) *BackendService {
	return &BackendService{db: db, pipeline: pipeline, requestTimeout: requestTimeout, maxRequestBytes: maxRequestBytes}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.Health))
	r.Get("/models", RestHandler(s.ListModels))
	r.Get("/usage", RestHandler(s.ListUsage))
	r.Route("/vision", func(r chi.Router) {
		if s.maxRequestBytes > 0 {
			r.Use(middleware.RequestSize(s.maxRequestBytes))
		}
		r.Post("/inference", RestHandler(s.Inference))
		r.Post("/inference/multiple", RestHandler(s.InferenceMultiple))
	})
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{Status: "ok", Time: time.Now().UTC().Format(healthTimeFormat)}, nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	models, err := database.ListModels(r.Context(), s.db, database.ModelReady)
	if err != nil {
		slog.Error("error listing models", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing models")
	}
	return convertModels(models), nil
}

func (s *BackendService) ListUsage(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.UsageQuery](r)
	if err != nil {
		return nil, err
	}

	if query.Limit < 0 || query.Offset < 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "limit and offset must be non-negative")
	}
	if query.Limit == 0 {
		query.Limit = defaultUsageLimit
	}
	query.Limit = min(query.Limit, maxUsageLimit)

	records, err := database.ListUsageRecords(r.Context(), s.db, database.UsageFilter{
		ModelName: query.ModelName,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		slog.Error("error listing usage records", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing usage records")
	}

	return convertUsageRecords(records), nil
}

func (s *BackendService) Inference(r *http.Request) (any, error) {
	req, err := parseInferenceRequest(r)
	if err != nil {
		return nil, err
	}

	if len(req.ImageBase64) > 1 {
		slog.Warn("single image endpoint received multiple images, using the first", "request_id", req.Id, "images", len(req.ImageBase64))
		req.ImageBase64 = req.ImageBase64[:1]
	}

	return s.runInference(r.Context(), SingleEndpoint, req)
}

func (s *BackendService) InferenceMultiple(r *http.Request) (any, error) {
	req, err := parseInferenceRequest(r)
	if err != nil {
		return nil, err
	}

	return s.runInference(r.Context(), MultipleEndpoint, req)
}

func parseInferenceRequest(r *http.Request) (api.InferenceRequest, error) {
	req, err := ParseRequest[api.InferenceRequest](r)
	if err != nil {
		return req, err
	}

	if len(req.ImageBase64) == 0 {
		return req, CodedErrorf(http.StatusUnprocessableEntity, "image_base64 must contain at least one image")
	}
	if strings.TrimSpace(req.ModelName) == "" {
		return req, CodedErrorf(http.StatusUnprocessableEntity, "model_name is required")
	}

	if req.Id == "" {
		req.Id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if req.Timestamp == "" {
		req.Timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	}

	return req, nil
}

func (s *BackendService) runInference(ctx context.Context, endpoint string, req api.InferenceRequest) (any, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	res, err := s.pipeline.Run(ctx, endpoint, convertInferenceRequest(req))
	if err != nil {
		return nil, inferenceError(req.Id, err)
	}

	return convertInferenceResponse(res), nil
}

func inferenceError(requestId string, err error) error {
	switch {
	case errors.Is(err, core.ErrInvalidImage):
		slog.Info("rejected invalid image", "request_id", requestId, "error", err)
		return CodedErrorf(http.StatusBadRequest, "Invalid image format")
	case errors.Is(err, core.ErrModelNotFound):
		return CodedErrorf(http.StatusNotFound, "Model not found")
	case errors.Is(err, context.DeadlineExceeded):
		slog.Error("inference request timed out", "request_id", requestId, "error", err)
		return CodedErrorf(http.StatusGatewayTimeout, "Request timed out")
	case errors.Is(err, context.Canceled):
		return CodedErrorf(http.StatusServiceUnavailable, "Request cancelled")
	default:
		slog.Error("error running inference", "request_id", requestId, "error", err)
		return CodedErrorf(http.StatusInternalServerError, "Error in model inference")
	}
}
