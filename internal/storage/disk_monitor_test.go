package storage

import (
	"context"
	"testing"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

func TestNewDiskMonitor_DefaultLimit(t *testing.T) {
	monitor := NewDiskMonitor(t.TempDir(), 0, logger.NewNopLogger())
	if monitor.MaxUsagePercent() != 90 {
		t.Errorf("Expected default max usage 90, got %f", monitor.MaxUsagePercent())
	}
}

func TestDiskMonitor_GetUsage(t *testing.T) {
	monitor := NewDiskMonitor(t.TempDir(), 80.0, logger.NewNopLogger())

	usage, err := monitor.GetUsage(context.Background())
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}

	if usage.TotalBytes <= 0 {
		t.Error("TotalBytes should be greater than 0")
	}
	if usage.AvailableBytes < 0 {
		t.Error("AvailableBytes should not be negative")
	}
	if usage.UsagePercent < 0 || usage.UsagePercent > 100 {
		t.Errorf("UsagePercent should be between 0 and 100, got %f", usage.UsagePercent)
	}
}

func TestDiskMonitor_IsDiskFull(t *testing.T) {
	ctx := context.Background()

	full, err := NewDiskMonitor(t.TempDir(), 100, logger.NewNopLogger()).IsDiskFull(ctx)
	if err != nil {
		t.Fatalf("IsDiskFull failed: %v", err)
	}
	if full {
		t.Error("Disk should not be full with a 100% limit")
	}
}

func TestDiskMonitor_Caching(t *testing.T) {
	monitor := NewDiskMonitor(t.TempDir(), 80.0, logger.NewNopLogger())
	ctx := context.Background()

	usage1, err := monitor.GetUsage(ctx)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	usage2, err := monitor.GetUsage(ctx)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}

	if *usage1 != *usage2 {
		t.Error("Cached usage should return the same values")
	}
}

func TestDiskMonitor_MissingPath(t *testing.T) {
	monitor := NewDiskMonitor("/nonexistent/overwatch/frames", 80.0, logger.NewNopLogger())
	if _, err := monitor.GetUsage(context.Background()); err == nil {
		t.Error("Expected an error for a missing path")
	}
}
