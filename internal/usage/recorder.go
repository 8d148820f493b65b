package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"vision-backend/internal/database"
	"vision-backend/internal/messaging"

	"gorm.io/gorm"
)

// Recorder consumes usage records from the queue and persists them.
type Recorder struct {
	db       *gorm.DB
	reciever messaging.Reciever
}

func NewRecorder(db *gorm.DB, reciever messaging.Reciever) *Recorder {
	return &Recorder{db: db, reciever: reciever}
}

// Start blocks until the reciever's task channel is closed.
func (r *Recorder) Start() {
	slog.Info("starting usage recorder")

	for task := range r.reciever.Tasks() {
		r.ProcessTask(task)
	}

	slog.Info("usage recorder stopped")
}

func (r *Recorder) Stop() {
	slog.Info("stopping usage recorder")

	r.reciever.Close()
}

func (r *Recorder) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.UsageQueue:
		var payload messaging.UsageRecordPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling usage record", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = r.saveUsageRecord(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (r *Recorder) saveUsageRecord(ctx context.Context, payload messaging.UsageRecordPayload) error {
	record, err := database.NewUsageRecord(
		payload.RequestId, payload.ModelName, payload.Endpoint, payload.Timestamp,
		payload.ImageCount, payload.ProcessingSeconds, payload.Cost, payload.TopClasses,
	)
	if err != nil {
		return fmt.Errorf("invalid usage record: %w", err)
	}

	if err := database.SaveUsageRecord(ctx, r.db, record); err != nil {
		return err
	}

	slog.Debug("usage record saved", "request_id", payload.RequestId, "model", payload.ModelName)
	return nil
}
