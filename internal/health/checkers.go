package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/storage"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// StatsSource reports capture statistics of one camera
type StatsSource interface {
	Stats() video.SourceStats
	Healthy() bool
}

// CameraChecker checks that camera streams deliver frames
type CameraChecker struct {
	sources []StatsSource
}

func NewCameraChecker(sources ...StatsSource) *CameraChecker {
	return &CameraChecker{sources: sources}
}

func (c *CameraChecker) Name() string {
	return "cameras"
}

// Check is degraded while some streams are unhealthy and unhealthy when
// none is healthy
func (c *CameraChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if len(c.sources) == 0 {
		check.Status = StatusUnhealthy
		check.Message = "No cameras configured"
		return check
	}

	unhealthy := 0
	for _, src := range c.sources {
		stats := src.Stats()
		check.Details[stats.CameraID] = stats
		if !src.Healthy() {
			unhealthy++
		}
	}

	switch {
	case unhealthy == 0:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d cameras streaming", len(c.sources))
	case unhealthy == len(c.sources):
		check.Status = StatusUnhealthy
		check.Message = "No camera is streaming"
	default:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d of %d cameras unhealthy", unhealthy, len(c.sources))
	}

	return check
}

// Readiness is satisfied by ai.Client
type Readiness interface {
	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context) (*ai.InferenceStats, error)
}

// DetectorChecker checks detector service connectivity
type DetectorChecker struct {
	detector   Readiness
	serviceURL string
}

func NewDetectorChecker(detector Readiness, serviceURL string) *DetectorChecker {
	return &DetectorChecker{detector: detector, serviceURL: serviceURL}
}

func (c *DetectorChecker) Name() string {
	return "detector"
}

func (c *DetectorChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"url": c.serviceURL},
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// Without detections every tick is empty, but frames keep flowing.
	if err := c.detector.HealthCheck(ctx); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Detector service unreachable: %v", err)
		return check
	}

	if stats, err := c.detector.GetStats(ctx); err == nil {
		check.Details["total_inferences"] = stats.TotalInferences
		check.Details["average_time_ms"] = stats.AverageTimeMs
	}

	check.Status = StatusHealthy
	check.Message = "Detector service is reachable"
	return check
}

// Pinger is satisfied by state.Manager
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker checks database connectivity
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	return check
}

// StorageChecker checks that detection frames can be written
type StorageChecker struct {
	framesDir string
	disk      *storage.DiskMonitor
}

// NewStorageChecker creates a storage checker. disk may be nil.
func NewStorageChecker(framesDir string, disk *storage.DiskMonitor) *StorageChecker {
	return &StorageChecker{framesDir: framesDir, disk: disk}
}

func (c *StorageChecker) Name() string {
	return "storage"
}

func (c *StorageChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"frames_dir": c.framesDir},
	}

	if err := os.MkdirAll(c.framesDir, 0755); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to create frames directory: %v", err)
		return check
	}

	probe, err := os.CreateTemp(c.framesDir, ".health-*")
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Frames directory not writable: %v", err)
		return check
	}
	probe.Close()
	os.Remove(filepath.Clean(probe.Name()))
	check.Details["frames_dir_writable"] = true

	if c.disk != nil {
		usage, err := c.disk.GetUsage(ctx)
		if err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Failed to read disk usage: %v", err)
			return check
		}
		check.Details["disk"] = usage
		if usage.UsagePercent >= c.disk.MaxUsagePercent() {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Disk usage %.1f%% above limit, frames are not saved", usage.UsagePercent)
			return check
		}
	}

	check.Status = StatusHealthy
	check.Message = "Frames directory writable"
	return check
}
