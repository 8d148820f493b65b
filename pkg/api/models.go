package api

import (
	"time"

	"github.com/google/uuid"
)

type InferenceRequest struct {
	Id          string   `json:"id,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	ImageBase64 []string `json:"image_base64"`
	ModelName   string   `json:"model_name"`
}

type InferenceResponse struct {
	Id          string      `json:"id"`
	Timestamp   string      `json:"timestamp"`
	Logits      [][]float64 `json:"logits"`
	Top5Classes [][]string  `json:"top_5_classes"`
	Cost        float64     `json:"cost"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type Model struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
}

type UsageQuery struct {
	ModelName string `schema:"model_name"`
	Limit     int    `schema:"limit"`
	Offset    int    `schema:"offset"`
}

type UsageRecord struct {
	RequestId         string     `json:"request_id"`
	Timestamp         time.Time  `json:"timestamp"`
	ModelName         string     `json:"model_name"`
	Endpoint          string     `json:"endpoint"`
	ImageCount        int        `json:"image_count"`
	ProcessingSeconds float64    `json:"processing_seconds"`
	Cost              float64    `json:"cost"`
	TopClasses        [][]string `json:"top_5_classes"`
}

type ErrorDetail struct {
	Detail string `json:"detail"`
}
