package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Orlik-B/NVR-surveillance/internal/health"
	"github.com/Orlik-B/NVR-surveillance/internal/orchestrator"
	"github.com/Orlik-B/NVR-surveillance/internal/pipeline"
	"github.com/Orlik-B/NVR-surveillance/internal/state"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	mjpegBoundary    = "frame"
)

// cameraView joins the pipeline state and capture statistics of a camera
type cameraView struct {
	CameraID string             `json:"camera_id"`
	Pipeline pipeline.Status    `json:"pipeline"`
	Stream   *video.SourceStats `json:"stream,omitempty"`
}

// handleHealth returns the aggregated health report
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  health.StatusHealthy,
			"service": ServiceName,
		})
		return
	}

	report := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// handleStatus reports the run deadline and the phase of every camera
func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.startTime)
	body := gin.H{
		"version":        s.version,
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	if s.overwatch != nil {
		remaining := s.overwatch.Remaining()
		body["remaining"] = pipeline.FormatRemaining(remaining)
		body["remaining_seconds"] = int64(remaining.Seconds())
		if deadline := s.overwatch.Deadline(); !deadline.IsZero() {
			body["deadline"] = deadline.Format(time.RFC3339)
		}
		body["cameras"] = s.overwatch.Statuses()
	}

	c.JSON(http.StatusOK, body)
}

// handleListCameras lists every camera with its pipeline and stream state
func (s *Server) handleListCameras(c *gin.Context) {
	if !s.requireOverwatch(c) {
		return
	}

	views := s.cameraViews()
	c.JSON(http.StatusOK, gin.H{
		"cameras": views,
		"count":   len(views),
	})
}

// handleGetCamera returns a single camera
func (s *Server) handleGetCamera(c *gin.Context) {
	if !s.requireOverwatch(c) {
		return
	}

	cameraID := c.Param("id")
	for _, view := range s.cameraViews() {
		if view.CameraID == cameraID {
			c.JSON(http.StatusOK, view)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error": fmt.Sprintf("Camera not found: %s", cameraID),
	})
}

func (s *Server) cameraViews() []cameraView {
	stats := make(map[string]video.SourceStats)
	for _, st := range s.overwatch.SourceStats() {
		stats[st.CameraID] = st
	}

	statuses := s.overwatch.Statuses()
	views := make([]cameraView, 0, len(statuses))
	for _, status := range statuses {
		view := cameraView{CameraID: status.CameraID, Pipeline: status}
		if st, ok := stats[status.CameraID]; ok {
			view.Stream = &st
		}
		views = append(views, view)
	}
	return views
}

// handleSingleFrame returns the latest annotated frame as JPEG
func (s *Server) handleSingleFrame(c *gin.Context) {
	if !s.requireOverwatch(c) {
		return
	}

	data, _, err := s.overwatch.LiveView(c.Param("id"))
	if err != nil {
		s.liveViewError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// handleMJPEGStream streams annotated frames as multipart JPEG. A part is
// written only when the camera produced a new frame.
func (s *Server) handleMJPEGStream(c *gin.Context) {
	if !s.requireOverwatch(c) {
		return
	}

	cameraID := c.Param("id")
	if _, _, err := s.overwatch.LiveView(cameraID); err != nil && !errors.Is(err, orchestrator.ErrNoLiveFrame) {
		s.liveViewError(c, err)
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Pragma", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.LogDebug("MJPEG stream opened", "camera", cameraID, "client_ip", c.ClientIP())
	defer s.LogDebug("MJPEG stream closed", "camera", cameraID)

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		data, seq, err := s.overwatch.LiveView(cameraID)
		if err == nil && seq != lastSeq {
			if !writePart(c, data) {
				return
			}
			lastSeq = seq
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
		}
	}
}

func writePart(c *gin.Context, frame []byte) bool {
	w := c.Writer
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
		return false
	}
	if _, err := w.Write(frame); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return false
	}
	w.Flush()
	return true
}

func (s *Server) liveViewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownCamera):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Camera not found: %s", c.Param("id"))})
	case errors.Is(err, orchestrator.ErrLiveViewDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": "Live view is disabled for this camera"})
	case errors.Is(err, orchestrator.ErrNoLiveFrame):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No frame processed yet"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleListAlerts lists persisted alerts, newest first
func (s *Server) handleListAlerts(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	cameraID := c.Query("camera")
	alerts, err := s.history.ListAlerts(c.Request.Context(), cameraID, limit)
	if err != nil {
		s.LogError("Failed to list alerts", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list alerts: %v", err),
		})
		return
	}

	total, err := s.history.CountAlerts(c.Request.Context(), cameraID)
	if err != nil {
		s.LogError("Failed to count alerts", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to count alerts: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
		"total":  total,
	})
}

// handleListFailures lists persisted camera failure notices, newest first
func (s *Server) handleListFailures(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	failures, err := s.history.ListCameraFailures(c.Request.Context(), c.Query("camera"), limit)
	if err != nil {
		s.LogError("Failed to list camera failures", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list camera failures: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"failures": failures,
		"count":    len(failures),
	})
}

// handleListRuns lists overwatch runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	runs, err := s.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.LogError("Failed to list runs", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list runs: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns a single overwatch run
func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	run, err := s.history.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, state.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Run not found: %s", c.Param("id")),
		})
		return
	}
	if err != nil {
		s.LogError("Failed to get run", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get run: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid limit: %s", raw),
		})
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func (s *Server) requireOverwatch(c *gin.Context) bool {
	if s.overwatch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Overwatch not available"})
		return false
	}
	return true
}

func (s *Server) requireHistory(c *gin.Context) bool {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History not available"})
		return false
	}
	return true
}
