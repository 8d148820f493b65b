package messaging

import (
	"context"
	"time"
)

const (
	UsageQueue      = "usage_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type UsageRecordPayload struct {
	RequestId         string
	Timestamp         time.Time
	ModelName         string
	Endpoint          string
	ImageCount        int
	ProcessingSeconds float64
	Cost              float64
	TopClasses        [][]string
}

type Publisher interface {
	PublishUsageRecord(ctx context.Context, payload UsageRecordPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
