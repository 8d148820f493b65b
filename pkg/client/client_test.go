package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vision-backend/pkg/api"
	"vision-backend/pkg/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", Time: "2024-05-01 00:00:00"}) //nolint:errcheck
	})
	mux.HandleFunc("/v1/usage", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resnet", r.URL.Query().Get("model_name"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]api.UsageRecord{{RequestId: "a"}, {RequestId: "b"}}) //nolint:errcheck
	})
	mux.HandleFunc("/v1/vision/inference/multiple", func(w http.ResponseWriter, r *http.Request) {
		var req api.InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.ModelName != "resnet" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorDetail{Detail: "Model not found"}) //nolint:errcheck
			return
		}

		res := api.InferenceResponse{Id: "x", Timestamp: "1"}
		for range req.ImageBase64 {
			res.Logits = append(res.Logits, []float64{1})
			res.Top5Classes = append(res.Top5Classes, []string{"cat"})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient(t *testing.T) {
	server := newServer(t)
	c := client.New(server.URL, 5*time.Second)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	records, err := c.Usage(ctx, api.UsageQuery{ModelName: "resnet", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	res, err := c.InferMultiple(ctx, "resnet", []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, res.Top5Classes, 2)

	_, err = c.InferMultiple(ctx, "missing", []string{"a"})
	require.ErrorIs(t, err, client.ErrRequestFailed)
	assert.Contains(t, err.Error(), "Model not found")
	assert.Contains(t, err.Error(), "404")
}

func TestEncodeImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	encoded, err := client.EncodeImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8gd29ybGQ=", encoded)

	_, err = client.EncodeImageFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
