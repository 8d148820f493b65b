package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"vision-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

var ErrRequestFailed = errors.New("request failed")

type Client struct {
	client *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func EncodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if !res.IsSuccess() {
		if detail, ok := res.Error().(*api.ErrorDetail); ok && detail.Detail != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, res.StatusCode(), detail.Detail)
		}
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, res.StatusCode(), res.String())
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var health api.HealthResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&api.ErrorDetail{}).
		Get("/v1/health")
	return health, checkResponse(res, err)
}

func (c *Client) ListModels(ctx context.Context) ([]api.Model, error) {
	var models []api.Model
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&models).
		SetError(&api.ErrorDetail{}).
		Get("/v1/models")
	return models, checkResponse(res, err)
}

func (c *Client) Usage(ctx context.Context, query api.UsageQuery) ([]api.UsageRecord, error) {
	params := map[string]string{}
	if query.ModelName != "" {
		params["model_name"] = query.ModelName
	}
	if query.Limit > 0 {
		params["limit"] = strconv.Itoa(query.Limit)
	}
	if query.Offset > 0 {
		params["offset"] = strconv.Itoa(query.Offset)
	}

	var records []api.UsageRecord
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&records).
		SetError(&api.ErrorDetail{}).
		Get("/v1/usage")
	return records, checkResponse(res, err)
}

func (c *Client) infer(ctx context.Context, path string, req api.InferenceRequest) (api.InferenceResponse, error) {
	var out api.InferenceResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&api.ErrorDetail{}).
		Post(path)
	return out, checkResponse(res, err)
}

func (c *Client) Infer(ctx context.Context, modelName, imageBase64 string) (api.InferenceResponse, error) {
	return c.infer(ctx, "/v1/vision/inference", api.InferenceRequest{ImageBase64: []string{imageBase64}, ModelName: modelName})
}

func (c *Client) InferMultiple(ctx context.Context, modelName string, imagesBase64 []string) (api.InferenceResponse, error) {
	return c.infer(ctx, "/v1/vision/inference/multiple", api.InferenceRequest{ImageBase64: imagesBase64, ModelName: modelName})
}
