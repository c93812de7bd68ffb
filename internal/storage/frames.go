package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// FrameTimestampLayout names saved detection frames
const FrameTimestampLayout = "2006_01_02___15_04_05"

// ErrDiskFull is returned by Save when the frames volume is above its usage limit
var ErrDiskFull = errors.New("frames volume is above its usage limit")

// FrameStore writes annotated detection frames to disk
type FrameStore struct {
	logger  *logger.Logger
	dir     string
	quality int
	disk    *DiskMonitor
	mu      sync.Mutex
}

// FrameStoreConfig contains frame store configuration
type FrameStoreConfig struct {
	Dir     string
	Quality int // JPEG quality (1-100, default 85)
	Disk    *DiskMonitor
}

// NewFrameStore creates the frames directory and returns a store writing into it
func NewFrameStore(config FrameStoreConfig, log *logger.Logger) (*FrameStore, error) {
	quality := config.Quality
	if quality < 1 || quality > 100 {
		quality = 85
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %w", err)
	}

	return &FrameStore{
		logger:  log,
		dir:     config.Dir,
		quality: quality,
		disk:    config.Disk,
	}, nil
}

// Dir returns the directory frames are written to
func (s *FrameStore) Dir() string {
	return s.dir
}

// FramePath returns the file a frame of cameraID taken at ts is saved to
func (s *FrameStore) FramePath(cameraID string, ts time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.jpg", ts.Format(FrameTimestampLayout), sanitize(cameraID)))
}

// Save encodes img as JPEG and writes it under the frames directory
func (s *FrameStore) Save(ctx context.Context, cameraID string, ts time.Time, img image.Image) (string, error) {
	data, err := video.EncodeJPEG(img, s.quality)
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return s.SaveJPEG(ctx, cameraID, ts, data)
}

// SaveJPEG writes already encoded JPEG bytes. Two frames of the same camera
// within one second share a name; the later one wins.
func (s *FrameStore) SaveJPEG(ctx context.Context, cameraID string, ts time.Time, data []byte) (string, error) {
	if s.disk != nil {
		full, err := s.disk.IsDiskFull(ctx)
		if err != nil {
			s.logger.Warn("Failed to check disk usage", "error", err)
		} else if full {
			return "", ErrDiskFull
		}
	}

	path := s.FramePath(cameraID, ts)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write frame: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move frame into place: %w", err)
	}

	s.logger.Debug("Saved detection frame", "path", path, "camera", cameraID, "size", len(data))
	return path, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
