package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/core/types"
	"vision-backend/internal/messaging"
)

const publishTimeout = 5 * time.Second

// PublisherSink forwards usage records to the message queue. Publishing never
// blocks or fails the request that produced the record.
type PublisherSink struct {
	publisher messaging.Publisher

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

var _ core.UsageSink = (*PublisherSink)(nil)

func NewPublisherSink(publisher messaging.Publisher) *PublisherSink {
	return &PublisherSink{publisher: publisher}
}

func ToPayload(record types.UsageRecord) messaging.UsageRecordPayload {
	return messaging.UsageRecordPayload{
		RequestId:         record.RequestId,
		Timestamp:         record.Timestamp,
		ModelName:         record.ModelName,
		Endpoint:          record.Endpoint,
		ImageCount:        record.ImageCount,
		ProcessingSeconds: record.ProcessingSeconds,
		Cost:              record.Cost,
		TopClasses:        record.TopClasses,
	}
}

func (s *PublisherSink) Record(ctx context.Context, record types.UsageRecord) {
	payload := ToPayload(record)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		slog.Error("usage sink is closed, dropping usage record", "request_id", payload.RequestId)
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.publisher.PublishUsageRecord(ctx, payload); err != nil {
			slog.Error("error publishing usage record", "request_id", payload.RequestId, "error", err)
		}
	}()
}

// Close stops accepting records and waits for pending publishes to finish. It
// does not close the underlying publisher.
func (s *PublisherSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.pending.Wait()
}

type MemorySink struct {
	mu      sync.Mutex
	records []types.UsageRecord
}

var _ core.UsageSink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, record types.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
}

func (s *MemorySink) Records() []types.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.UsageRecord, len(s.records))
	copy(out, s.records)
	return out
}
