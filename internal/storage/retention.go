package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// RetentionPolicy removes saved frames older than the retention period
type RetentionPolicy struct {
	dir           string
	retentionDays int
	logger        *logger.Logger
	mu            sync.Mutex
	enforcing     bool
	now           func() time.Time
}

// NewRetentionPolicy creates a retention policy for dir. A zero retention
// keeps every frame.
func NewRetentionPolicy(dir string, retentionDays int, log *logger.Logger) *RetentionPolicy {
	return &RetentionPolicy{
		dir:           dir,
		retentionDays: retentionDays,
		logger:        log,
		now:           time.Now,
	}
}

// Enforce deletes expired frames and returns how many were removed
func (r *RetentionPolicy) Enforce(ctx context.Context) (int, error) {
	if r.retentionDays <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	if r.enforcing {
		r.mu.Unlock()
		return 0, fmt.Errorf("retention policy is already being enforced")
	}
	r.enforcing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.enforcing = false
		r.mu.Unlock()
	}()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list frames: %w", err)
	}

	expirationTime := r.now().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)

	deletedCount := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return deletedCount, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(expirationTime) {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to delete expired frame", "path", path, "error", err)
			continue
		}
		deletedCount++
	}

	if deletedCount > 0 {
		r.logger.Info("Deleted expired frames", "count", deletedCount, "retention_days", r.retentionDays)
	}

	return deletedCount, nil
}
