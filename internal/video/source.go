package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

var (
	// ErrNotReady is returned by Latest before the first frame arrived
	ErrNotReady = errors.New("no frame captured yet")
	// ErrUnhealthy is returned by Latest while consecutive read failures
	// are at or above the unhealthy threshold
	ErrUnhealthy = errors.New("stream unhealthy")
	// ErrSourceStopped is returned by Latest after Stop
	ErrSourceStopped = errors.New("source stopped")
)

// SourceConfig contains frame source configuration
type SourceConfig struct {
	CameraID          string
	URL               string
	ReconnectInterval time.Duration
	UnhealthyAfter    int // consecutive failures before Latest reports ErrUnhealthy
}

// SourceStats contains capture statistics
type SourceStats struct {
	CameraID            string    `json:"camera_id"`
	Connected           bool      `json:"connected"`
	Healthy             bool      `json:"healthy"`
	FramesCaptured      uint64    `json:"frames_captured"`
	ReadFailures        uint64    `json:"read_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFrameTime       time.Time `json:"last_frame_time,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Source continuously reads one stream in the background and keeps only
// the most recent frame. Reads never wait for the consumer and the
// consumer never waits for a read.
type Source struct {
	config SourceConfig
	dialer Dialer
	logger *logger.Logger
	now    func() time.Time

	mu                  sync.RWMutex
	latest              *Frame
	seq                 uint64
	connected           bool
	stopped             bool
	framesCaptured      uint64
	readFailures        uint64
	consecutiveFailures int
	lastError           error

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSource creates a frame source. Nothing is read until Start.
func NewSource(config SourceConfig, dialer Dialer, log *logger.Logger) *Source {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 2 * time.Second
	}
	if config.UnhealthyAfter <= 0 {
		config.UnhealthyAfter = 3
	}

	return &Source{
		config: config,
		dialer: dialer,
		logger: log.With("camera", config.CameraID),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// CameraID returns the camera this source reads
func (s *Source) CameraID() string {
	return s.config.CameraID
}

// Start launches the capture goroutine. Calling Start more than once has
// no effect. The capture stops when ctx is cancelled or Stop is called.
func (s *Source) Start(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		var runCtx context.Context
		runCtx, s.cancel = context.WithCancel(ctx)
		s.mu.Unlock()

		started = true
		go s.run(runCtx)
	})
	if !started {
		return fmt.Errorf("source %s already started or stopped", s.config.CameraID)
	}

	s.logger.Info("Frame source started", "reconnect_interval", s.config.ReconnectInterval)
	return nil
}

// Stop cancels the capture goroutine and waits for it to release the
// stream. Safe to call more than once and before Start.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		<-s.done
		s.logger.Info("Frame source stopped")
	})
}

// Latest returns the most recent frame without blocking. With ErrUnhealthy
// or ErrSourceStopped the last frame, if any, is returned alongside.
func (s *Source) Latest() (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.stopped:
		return s.latest, ErrSourceStopped
	case s.consecutiveFailures >= s.config.UnhealthyAfter:
		return s.latest, ErrUnhealthy
	case s.latest == nil:
		return nil, ErrNotReady
	}
	return s.latest, nil
}

// Healthy reports whether consecutive failures are below the threshold
func (s *Source) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures < s.config.UnhealthyAfter
}

// Stats returns capture statistics
func (s *Source) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SourceStats{
		CameraID:            s.config.CameraID,
		Connected:           s.connected,
		Healthy:             s.consecutiveFailures < s.config.UnhealthyAfter,
		FramesCaptured:      s.framesCaptured,
		ReadFailures:        s.readFailures,
		ConsecutiveFailures: s.consecutiveFailures,
	}
	if s.latest != nil {
		stats.LastFrameTime = s.latest.Timestamp
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// run is the capture loop: dial, read until failure, back off, repeat
func (s *Source) run(ctx context.Context) {
	defer close(s.done)

	var reader StreamReader
	defer func() {
		if reader != nil {
			s.closeReader(reader)
		}
		s.setConnected(false)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if reader == nil {
			r, err := s.dialer.Dial(ctx, s.config.URL)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.recordFailure(fmt.Errorf("failed to open stream: %w", err))
				if !s.wait(ctx) {
					return
				}
				continue
			}
			reader = r
			s.setConnected(true)
			s.logger.Debug("Stream opened")
		}

		data, err := reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.recordFailure(fmt.Errorf("failed to read frame: %w", err))
			s.closeReader(reader)
			reader = nil
			s.setConnected(false)
			if !s.wait(ctx) {
				return
			}
			continue
		}

		if err := s.publish(data); err != nil {
			s.recordFailure(err)
		}
	}
}

// publish decodes data and swaps it into the slot
func (s *Source) publish(data []byte) error {
	s.mu.Lock()
	seq := s.seq + 1
	s.mu.Unlock()

	frame, err := DecodeFrame(s.config.CameraID, seq, s.now(), data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	recovered := s.consecutiveFailures >= s.config.UnhealthyAfter
	s.seq = seq
	s.latest = frame
	s.framesCaptured++
	s.consecutiveFailures = 0
	s.lastError = nil
	s.mu.Unlock()

	if recovered {
		s.logger.Info("Stream recovered")
	}
	return nil
}

func (s *Source) recordFailure(err error) {
	s.mu.Lock()
	s.readFailures++
	s.consecutiveFailures++
	s.lastError = err
	failures := s.consecutiveFailures
	s.mu.Unlock()

	switch {
	case failures == 1:
		s.logger.Warn("Stream read failed, reconnecting", "error", err)
	case failures == s.config.UnhealthyAfter:
		s.logger.Error("Stream unhealthy", "consecutive_failures", failures, "error", err)
	default:
		s.logger.Debug("Stream read failed", "consecutive_failures", failures, "error", err)
	}
}

func (s *Source) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Source) closeReader(reader StreamReader) {
	if err := reader.Close(); err != nil {
		s.logger.Debug("Failed to close stream", "error", err)
	}
}

// wait sleeps for the reconnect interval; false when ctx ended first
func (s *Source) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.config.ReconnectInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
