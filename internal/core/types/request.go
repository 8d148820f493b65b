package types

import "time"

type InferenceRequest struct {
	Id        string
	Timestamp string
	Images    []string
	ModelName string
}

type InferenceResponse struct {
	Id         string
	Timestamp  string
	Logits     [][]float64
	TopClasses [][]string
	Cost       float64
}

type UsageRecord struct {
	RequestId         string
	Timestamp         time.Time
	ModelName         string
	Endpoint          string
	ImageCount        int
	ProcessingSeconds float64
	Cost              float64
	TopClasses        [][]string
}
