package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// Client is an HTTP client for the object detection service
type Client struct {
	serviceURL          string
	httpClient          *http.Client
	logger              *logger.Logger
	confidenceThreshold float64
	enabledClasses      []int
	imageSize           int
	jpegQuality         int
}

// ClientConfig contains configuration for the detector client
type ClientConfig struct {
	ServiceURL          string
	Timeout             time.Duration
	ConfidenceThreshold float64
	EnabledClasses      []int
	ImageSize           int
	JPEGQuality         int
}

// NewClient creates a new detector service client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.JPEGQuality == 0 {
		config.JPEGQuality = 90
	}

	return &Client{
		serviceURL: strings.TrimRight(config.ServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:              log,
		confidenceThreshold: config.ConfidenceThreshold,
		enabledClasses:      config.EnabledClasses,
		imageSize:           config.ImageSize,
		jpegQuality:         config.JPEGQuality,
	}
}

// Detect implements Detector. The service filters by class and confidence
// as a hint; callers still apply Filter locally.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	data, err := video.EncodeJPEG(img, c.jpegQuality)
	if err != nil {
		return nil, err
	}

	req := InferenceRequest{
		Image:     base64.StdEncoding.EncodeToString(data),
		ImageSize: c.imageSize,
	}
	if c.confidenceThreshold > 0 {
		threshold := c.confidenceThreshold
		req.ConfidenceThreshold = &threshold
	}
	if len(c.enabledClasses) > 0 {
		req.EnabledClasses = c.enabledClasses
	}

	resp, err := c.inferRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	dets := make([]Detection, 0, len(resp.BoundingBoxes))
	for _, b := range resp.BoundingBoxes {
		dets = append(dets, b.toDetection())
	}
	return dets, nil
}

// inferRequest performs a single inference request
func (c *Client) inferRequest(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	requestDuration := time.Since(startTime)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var inferenceResp InferenceResponse
	if err := json.Unmarshal(body, &inferenceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug(
		"Inference completed",
		"detection_count", len(inferenceResp.BoundingBoxes),
		"inference_time_ms", inferenceResp.InferenceTimeMs,
		"request_duration_ms", requestDuration.Milliseconds(),
	)

	return &inferenceResp, nil
}

// GetStats retrieves inference statistics from the detector service
func (c *Client) GetStats(ctx context.Context) (*InferenceStats, error) {
	url := fmt.Sprintf("%s/api/v1/inference/stats", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector service returned status %d", resp.StatusCode)
	}

	var stats InferenceStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &stats, nil
}

// HealthCheck checks if the detector service is ready
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health/ready", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service health check failed: status %d", resp.StatusCode)
	}

	return nil
}
