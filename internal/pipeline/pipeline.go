// Package pipeline turns the frames of one camera into confirmed alerts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/alert"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/notify"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
	"github.com/Orlik-B/NVR-surveillance/internal/zone"
)

// ErrStaleFrame is recorded when the source keeps returning an old frame
var ErrStaleFrame = errors.New("frame did not advance")

// FrameSource is the read side of a video.Source
type FrameSource interface {
	CameraID() string
	Latest() (*video.Frame, error)
}

// FrameSaver persists annotated detection frames
type FrameSaver interface {
	Save(ctx context.Context, cameraID string, ts time.Time, img image.Image) (string, error)
}

// Config contains pipeline configuration for one camera
type Config struct {
	Camera              config.CameraConfig
	MinDetectionsInARow int
	Classes             []int // empty = every class
	MinConfidence       float64
	ImageSize           int // width frames are resized to before detection
	DetectTimeout       time.Duration
	FailureNoticeAfter  int
	FailureBackoff      time.Duration // least time one failed tick takes
	StaleFrameTimeout   time.Duration // 0 disables stale detection
	MinTickDuration     time.Duration
	SaveFrames          bool
	JPEGQuality         int
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithFrameSaver sets where frames are saved when Config.SaveFrames is on
func WithFrameSaver(saver FrameSaver) Option {
	return func(p *Pipeline) { p.saver = saver }
}

// WithEventBus publishes alert and camera events to bus
func WithEventBus(bus *service.EventBus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithRemaining supplies the time left in the overwatch for the frame overlay
func WithRemaining(remaining func() time.Duration) Option {
	return func(p *Pipeline) { p.remaining = remaining }
}

// Pipeline is the per-camera detection state machine. Tick must be called
// from a single goroutine; Status and LiveView are safe from any.
type Pipeline struct {
	config    Config
	source    FrameSource
	detector  ai.Detector
	throttle  *alert.Throttle
	notifier  *notify.Leveled
	saver     FrameSaver
	bus       *service.EventBus
	remaining func() time.Duration
	logger    *logger.Logger
	zoom      video.Margins
	zones     [][4]float64

	mu    sync.RWMutex
	state RuntimeState
	live  liveView
}

// New creates a pipeline for one camera
func New(cfg Config, source FrameSource, detector ai.Detector, throttle *alert.Throttle, notifier *notify.Leveled, log *logger.Logger, opts ...Option) *Pipeline {
	if cfg.MinDetectionsInARow < 1 {
		cfg.MinDetectionsInARow = 1
	}
	if cfg.FailureNoticeAfter < 1 {
		cfg.FailureNoticeAfter = 5
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = DefaultFailureBackoff
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = 5 * time.Second
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}

	p := &Pipeline{
		config:   cfg,
		source:   source,
		detector: detector,
		throttle: throttle,
		notifier: notifier,
		logger:   log.With("camera", source.CameraID()),
	}
	if z := cfg.Camera.ZoomIn; z.Enabled {
		p.zoom = video.Margins{Left: z.Left, Right: z.Right, Top: z.Top, Bottom: z.Bottom}
	}
	for _, z := range cfg.Camera.Zones {
		p.zones = append(p.zones, [4]float64(z))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CameraID returns the camera this pipeline watches
func (p *Pipeline) CameraID() string {
	return p.source.CameraID()
}

const (
	// idlePollInterval bounds how fast Run polls a source with no new frame
	idlePollInterval = 10 * time.Millisecond

	// DefaultFailureBackoff is how long a tick without a usable frame lasts,
	// the time a blocking read would have waited for one
	DefaultFailureBackoff = 750 * time.Millisecond
)

// Run ticks until ctx is done, spending at least MinTickDuration per tick.
// A failed tick lasts at least FailureBackoff.
func (p *Pipeline) Run(ctx context.Context) {
	delayer := NewLoopDelayer(p.config.MinTickDuration)
	idle := NewLoopDelayer(idlePollInterval)
	backoff := NewLoopDelayer(max(p.config.FailureBackoff, p.config.MinTickDuration))
	for {
		started := time.Now()
		if ctx.Err() != nil {
			return
		}

		wait := delayer
		switch result := p.Tick(ctx, started); {
		case result.Outcome == OutcomeFailure:
			wait = backoff
		case result.Outcome == OutcomeIdle && delayer.Delay(started) == 0:
			wait = idle
		}
		if !wait.Wait(ctx, started) {
			return
		}
	}
}

// Tick runs one iteration of the state machine at now
func (p *Pipeline) Tick(ctx context.Context, now time.Time) TickResult {
	frame, err := p.source.Latest()
	if err != nil {
		return p.fail(ctx, now, err)
	}

	p.mu.RLock()
	lastSeq := p.state.LastSeq
	p.mu.RUnlock()

	if frame.Seq == lastSeq {
		if p.config.StaleFrameTimeout > 0 && frame.Age(now) > p.config.StaleFrameTimeout {
			return p.fail(ctx, now, fmt.Errorf("%w: seq %d is %v old", ErrStaleFrame, frame.Seq, frame.Age(now).Round(time.Millisecond)))
		}
		return p.idle()
	}

	p.recover(frame, now)
	return p.process(ctx, frame, now)
}

func (p *Pipeline) idle() TickResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return TickResult{
		Outcome:          OutcomeIdle,
		Phase:            phaseFor(p.state.DetectionsInARow, p.config.MinDetectionsInARow),
		DetectionsInARow: p.state.DetectionsInARow,
	}
}

// fail counts a tick without a usable frame. The failure notice is sent
// once, on the tick the counter reaches the configured count.
func (p *Pipeline) fail(ctx context.Context, now time.Time, err error) TickResult {
	p.mu.Lock()
	p.state.FailureCount++
	p.state.LastError = err
	count := p.state.FailureCount
	notifyNow := count == p.config.FailureNoticeAfter && !p.state.FailureNotified
	if notifyNow {
		p.state.FailureNotified = true
	}
	result := TickResult{
		Outcome:          OutcomeFailure,
		Phase:            phaseFor(p.state.DetectionsInARow, p.config.MinDetectionsInARow),
		DetectionsInARow: p.state.DetectionsInARow,
		FailureCount:     count,
		FailureNotified:  notifyNow,
		Err:              err,
	}
	p.mu.Unlock()

	if !notifyNow {
		p.logger.Debug("No usable frame", "failures", count, "error", err)
		return result
	}

	p.logger.Error("Camera keeps failing", "failures", count, "error", err)
	text := fmt.Sprintf("camera %s has failed %d times", p.CameraID(), count)
	if sendErr := p.notifier.Text(ctx, notify.LevelFailure, text); sendErr != nil {
		p.logger.Warn("Failed to send failure notice", "error", sendErr)
	}
	p.publish(service.EventTypeCameraStreamUnhealthy, now, map[string]interface{}{
		"camera_id":            p.CameraID(),
		"consecutive_failures": count,
		"error":                err.Error(),
	})
	return result
}

// recover resets the failure counter on a fresh frame and re-arms the notice
func (p *Pipeline) recover(frame *video.Frame, now time.Time) {
	p.mu.Lock()
	failures := p.state.FailureCount
	notified := p.state.FailureNotified
	p.state.FailureCount = 0
	p.state.FailureNotified = false
	p.state.LastError = nil
	p.state.LastSeq = frame.Seq
	p.state.LastFrameAt = frame.Timestamp
	p.state.FramesProcessed++
	p.mu.Unlock()

	if failures > 0 {
		p.logger.Info("Camera delivering frames again", "failures", failures)
	}
	if notified {
		p.publish(service.EventTypeCameraStreamRecovered, now, map[string]interface{}{
			"camera_id":            p.CameraID(),
			"consecutive_failures": failures,
		})
	}
}

func (p *Pipeline) process(ctx context.Context, frame *video.Frame, now time.Time) TickResult {
	prepared := video.Prepare(frame.Image, p.zoom, p.config.ImageSize)
	bounds := prepared.Bounds()

	dets := p.detect(ctx, prepared)
	dets = ai.Filter(dets, p.config.Classes, p.config.MinConfidence)
	dets = zone.Filter(dets, p.config.Camera.Zones, bounds.Dx(), bounds.Dy())

	p.mu.Lock()
	if len(dets) > 0 {
		p.state.DetectionsInARow++
		p.state.LastDetectionAt = now
	} else {
		p.state.DetectionsInARow = 0
	}
	inARow := p.state.DetectionsInARow
	processed := p.state.FramesProcessed
	p.mu.Unlock()

	result := TickResult{
		Outcome:          OutcomeProcessed,
		Phase:            phaseFor(inARow, p.config.MinDetectionsInARow),
		Detections:       len(dets),
		DetectionsInARow: inARow,
	}

	var annotated image.Image
	if result.Phase == PhaseConfirmed || p.config.Camera.ShowCameraWindow {
		annotated = video.Annotate(prepared, p.overlay(dets, inARow, processed))
	}

	if result.Phase == PhaseConfirmed {
		p.raise(ctx, now, annotated, dets, &result)
	}

	if p.config.Camera.ShowCameraWindow {
		p.publishLive(annotated)
	}

	return result
}

// detect calls the detector with a per-tick timeout. Errors are logged and
// count as an empty result; the call is never retried.
func (p *Pipeline) detect(ctx context.Context, img image.Image) []ai.Detection {
	dctx, cancel := context.WithTimeout(ctx, p.config.DetectTimeout)
	defer cancel()

	dets, err := p.detector.Detect(dctx, img)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("Detection failed", "error", err)
		}
		return nil
	}
	return dets
}

// raise sends a confirmed detection unless the throttle holds it back.
// Throttled alerts are dropped and only counted; the next sent alert
// carries the count.
func (p *Pipeline) raise(ctx context.Context, now time.Time, annotated image.Image, dets []ai.Detection, result *TickResult) {
	cameraID := p.CameraID()

	if !p.throttle.TryFire(cameraID, now) {
		p.mu.Lock()
		p.state.AlertsThrottled++
		p.state.ThrottledSinceAlert++
		p.mu.Unlock()

		result.AlertThrottled = true
		p.logger.Debug("Alert throttled", "remaining", p.throttle.Remaining(cameraID, now))
		return
	}

	best, _ := ai.Best(dets)

	if p.config.SaveFrames && p.saver != nil {
		path, err := p.saver.Save(ctx, cameraID, now, annotated)
		if err != nil {
			p.logger.Warn("Failed to save detection frame", "error", err)
		} else {
			result.FramePath = path
		}
	}

	sent := false
	if p.notifier.Enabled(notify.LevelAlert) {
		data, err := video.EncodeJPEG(annotated, p.config.JPEGQuality)
		if err == nil {
			err = p.notifier.Image(ctx, notify.LevelAlert, data, Caption(cameraID, best, result.DetectionsInARow))
		}
		if err != nil {
			p.logger.Warn("Failed to send alert", "error", err)
		} else {
			sent = true
		}
	}

	p.mu.Lock()
	p.state.AlertsSent++
	p.state.LastAlertAt = now
	throttledBefore := p.state.ThrottledSinceAlert
	p.state.ThrottledSinceAlert = 0
	p.mu.Unlock()

	result.AlertSent = true
	p.logger.Info("Detection confirmed",
		"class", best.ClassName,
		"confidence", best.Confidence,
		"detections_in_a_row", result.DetectionsInARow,
		"frame_path", result.FramePath,
	)
	p.publish(service.EventTypeAlertSent, now, map[string]interface{}{
		"camera_id":           cameraID,
		"class_name":          best.ClassName,
		"confidence":          best.Confidence,
		"detections_in_a_row": result.DetectionsInARow,
		"frame_path":          result.FramePath,
		"throttled_before":    throttledBefore,
		"sent":                sent,
	})
}

// Caption summarises the highest-confidence detection of an alert
func Caption(cameraID string, best ai.Detection, inARow int) string {
	name := best.ClassName
	if name == "" {
		name = fmt.Sprintf("class %d", best.ClassID)
	}
	return fmt.Sprintf("%s: %s %.2f (%d in a row)", cameraID, name, best.Confidence, inARow)
}

func (p *Pipeline) overlay(dets []ai.Detection, inARow int, processed uint64) video.Overlay {
	overlay := video.Overlay{Zones: p.zones}
	for _, d := range dets {
		overlay.Boxes = append(overlay.Boxes, video.Box{
			X1:    int(d.Box.X1),
			Y1:    int(d.Box.Y1),
			X2:    int(d.Box.X2),
			Y2:    int(d.Box.Y2),
			Label: fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence),
		})
	}
	if p.remaining != nil {
		overlay.Lines = append(overlay.Lines, FormatRemaining(p.remaining()))
	}
	overlay.Lines = append(overlay.Lines,
		fmt.Sprintf("frames %d", processed),
		fmt.Sprintf("in a row %d", inARow),
	)
	return overlay
}

func (p *Pipeline) publish(eventType service.EventType, now time.Time, data map[string]interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(service.Event{
		Type:      eventType,
		Source:    "pipeline/" + p.CameraID(),
		Timestamp: now,
		Data:      data,
	})
}

// Status returns a snapshot of the pipeline state
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		CameraID:            p.CameraID(),
		Phase:               phaseFor(p.state.DetectionsInARow, p.config.MinDetectionsInARow),
		DetectionsInARow:    p.state.DetectionsInARow,
		ConsecutiveFailures: p.state.FailureCount,
		FramesProcessed:     p.state.FramesProcessed,
		AlertsSent:          p.state.AlertsSent,
		AlertsThrottled:     p.state.AlertsThrottled,
		LiveView:            p.config.Camera.ShowCameraWindow,
		LastFrameAt:         p.state.LastFrameAt,
		LastDetectionAt:     p.state.LastDetectionAt,
		LastAlertAt:         p.state.LastAlertAt,
	}
	if p.state.LastError != nil {
		status.LastError = p.state.LastError.Error()
	}
	return status
}
