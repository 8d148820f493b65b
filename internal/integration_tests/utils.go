package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/core/types"
	"vision-backend/internal/database"
	"vision-backend/internal/messaging"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const stubModelType core.ModelType = "stub"

// stubClassifier scores each class by how close the image's mean red value is
// to the class's target, so bright and dark images rank differently.
type stubClassifier struct {
	classes []string
}

func (m *stubClassifier) Apply(img *types.DecodedImage) (*types.RawInferenceOutput, error) {
	plane := img.Data[:types.ImageHeight*types.ImageWidth]
	mean := float32(0)
	for _, v := range plane {
		mean += v
	}
	mean /= float32(len(plane))

	scores := make([]float32, len(m.classes))
	for i := range scores {
		target := -2 + 4*float32(i)/float32(max(len(scores)-1, 1))
		diff := mean - target
		scores[i] = -diff * diff
	}
	return &types.RawInferenceOutput{Shape: []int64{1, int64(len(scores))}, Scores: scores}, nil
}

func (m *stubClassifier) Labels() []string { return m.classes }

func (m *stubClassifier) Release() {}

type stubMetadata struct {
	Classes []string `json:"classes"`
}

func loadStubClassifier(modelDir string) (core.InferenceUnit, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var metadata stubMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &stubClassifier{classes: metadata.Classes}, nil
}

func init() {
	core.RegisterModelLoader(stubModelType, loadStubClassifier)
}

func writeStubModel(t *testing.T, classes []string) string {
	dir := t.TempDir()
	metadata, err := json.Marshal(stubMetadata{Classes: classes})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), metadata, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("stub"), 0644))
	return dir
}

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) (*messaging.RabbitMQPublisher, *messaging.RabbitMQReceiver) {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.12.11-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	publisher, err := messaging.NewRabbitMQPublisher(connStr)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	receiver, err := messaging.NewRabbitMQReceiver(connStr)
	require.NoError(t, err)
	t.Cleanup(receiver.Close)

	return publisher, receiver
}

func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
