package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		ServiceURL:          server.URL + "/",
		Timeout:             5 * time.Second,
		ConfidenceThreshold: 0.5,
		EnabledClasses:      []int{0},
		ImageSize:           640,
	}, logger.NewNopLogger())
}

func TestClient_Detect(t *testing.T) {
	var got InferenceRequest
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/inference", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(InferenceResponse{
			BoundingBoxes: []BoundingBox{
				{X1: 100, Y1: 200, X2: 300, Y2: 400, Confidence: 0.85, ClassID: 0, ClassName: "person"},
			},
			InferenceTimeMs: 45.2,
			DetectionCount:  1,
		})
	})

	dets, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 48)))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, Detection{
		ClassID:    0,
		ClassName:  "person",
		Confidence: 0.85,
		Box:        Box{X1: 100, Y1: 200, X2: 300, Y2: 400},
	}, dets[0])

	// The request carries a decodable JPEG and the configured hints.
	data, err := base64.StdEncoding.DecodeString(got.Image)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	require.NotNil(t, got.ConfidenceThreshold)
	assert.Equal(t, 0.5, *got.ConfidenceThreshold)
	assert.Equal(t, []int{0}, got.EnabledClasses)
	assert.Equal(t, 640, got.ImageSize)
}

func TestClient_Detect_ServiceError(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestClient_Detect_ContextCancelled(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
}

func TestClient_HealthCheck(t *testing.T) {
	var unhealthy atomic.Bool
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	assert.NoError(t, client.HealthCheck(context.Background()))
	unhealthy.Store(true)
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestClient_GetStats(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inference/stats", r.URL.Path)
		json.NewEncoder(w).Encode(InferenceStats{TotalInferences: 3, TotalTimeMs: 30, AverageTimeMs: 10})
	})

	stats, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInferences)
	assert.Equal(t, 10.0, stats.AverageTimeMs)
}
