// Package orchestrator runs one capture and detection loop per camera for
// the length of an overwatch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/alert"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/notify"
	"github.com/Orlik-B/NVR-surveillance/internal/pipeline"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// ServiceName is the name the orchestrator registers under
const ServiceName = "overwatch"

var (
	// ErrAlreadyRunning is returned when Run or Start is called twice
	ErrAlreadyRunning = errors.New("overwatch already started")
	// ErrUnknownCamera is returned for a camera name that is not configured
	ErrUnknownCamera = errors.New("unknown camera")
	// ErrLiveViewDisabled is returned for cameras without show_camera_window
	ErrLiveViewDisabled = errors.New("live view disabled for camera")
	// ErrNoLiveFrame is returned before a camera processed its first frame
	ErrNoLiveFrame = errors.New("no live frame yet")
)

// Camera is a source and the pipeline consuming it
type Camera struct {
	Source   *video.Source
	Pipeline *pipeline.Pipeline
}

// Deps are the collaborators shared by every camera
type Deps struct {
	Dialer   video.Dialer
	Detector ai.Detector
	Notifier *notify.Leveled
	Frames   pipeline.FrameSaver // optional
	EventBus *service.EventBus   // optional
}

// Orchestrator owns every camera of an overwatch run
type Orchestrator struct {
	*service.ServiceBase

	duration  time.Duration
	heartbeat time.Duration
	cameras   []Camera
	byID      map[string]*pipeline.Pipeline
	throttle  *alert.Throttle
	notifier  *notify.Leveled
	logger    *logger.Logger
	now       func() time.Time

	mu        sync.RWMutex
	started   bool
	startedAt time.Time
	deadline  time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	panics    map[string]interface{}
}

// New builds one source and pipeline per configured camera
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Orchestrator, error) {
	duration, err := cfg.Parameters.OverwatchDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid overwatch time: %w", err)
	}

	o := &Orchestrator{
		ServiceBase: service.NewServiceBase(ServiceName, log),
		duration:    duration,
		heartbeat:   cfg.Parameters.StatusInterval(),
		byID:        make(map[string]*pipeline.Pipeline, len(cfg.Cameras)),
		notifier:    deps.Notifier,
		logger:      log,
		now:         time.Now,
		done:        make(chan struct{}),
		panics:      make(map[string]interface{}),
	}
	if deps.EventBus != nil {
		o.SetEventBus(deps.EventBus)
	}

	o.throttle = alert.NewThrottle(cfg.Telegram.FrameTimeout())

	for _, cam := range cfg.Cameras {
		if _, dup := o.byID[cam.Name]; dup {
			return nil, fmt.Errorf("duplicate camera name: %s", cam.Name)
		}

		source := video.NewSource(video.SourceConfig{
			CameraID:          cam.Name,
			URL:               cfg.StreamURL(cam),
			ReconnectInterval: cfg.Stream.ReconnectInterval,
			UnhealthyAfter:    cfg.Stream.UnhealthyAfter,
		}, deps.Dialer, log)

		opts := []pipeline.Option{pipeline.WithRemaining(o.Remaining)}
		if deps.Frames != nil {
			opts = append(opts, pipeline.WithFrameSaver(deps.Frames))
		}
		if deps.EventBus != nil {
			opts = append(opts, pipeline.WithEventBus(deps.EventBus))
		}

		p := pipeline.New(pipeline.Config{
			Camera:              cam,
			MinDetectionsInARow: cfg.Parameters.MinDetectionsInARow,
			Classes:             cfg.Model.DetectionClasses,
			MinConfidence:       cfg.Model.Confidence,
			ImageSize:           cfg.Model.ImgSize,
			DetectTimeout:       cfg.Model.Timeout,
			FailureNoticeAfter:  cfg.Parameters.TimeoutCountBeforeMessage,
			FailureBackoff:      cfg.Stream.FailureBackoff,
			StaleFrameTimeout:   cfg.Parameters.StaleFrameTimeout,
			MinTickDuration:     cfg.Parameters.MainLoopMinimum(),
			SaveFrames:          cfg.Parameters.SaveFrames,
			JPEGQuality:         cfg.Storage.JPEGQuality,
		}, source, deps.Detector, o.throttle, deps.Notifier, log, opts...)

		o.cameras = append(o.cameras, Camera{Source: source, Pipeline: p})
		o.byID[cam.Name] = p
	}

	return o, nil
}

// Start runs the overwatch in the background. The run ends at the deadline,
// when ctx is cancelled or on Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, err := o.begin(ctx)
	if err != nil {
		return err
	}
	go o.run(runCtx)
	return nil
}

// Run runs the overwatch and blocks until it has finished
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, err := o.begin(ctx)
	if err != nil {
		return err
	}
	o.run(runCtx)
	return nil
}

// Stop ends the run early and waits for every camera to be released
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()

	if cancel == nil {
		o.stopSources()
		return nil
	}
	cancel()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("overwatch did not finish: %w", ctx.Err())
	}
}

// Done is closed once a started run has finished
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil, ErrAlreadyRunning
	}
	o.started = true
	o.startedAt = o.now()
	o.deadline = o.startedAt.Add(o.duration)

	runCtx, cancel := context.WithDeadline(ctx, o.deadline)
	o.cancel = cancel
	return runCtx, nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	defer o.cancel()
	defer o.stopSources()

	o.GetStatus().SetStatus(service.StatusRunning)
	o.LogInfo("Starting overwatch",
		"cameras", len(o.cameras),
		"duration", o.duration,
		"deadline", o.Deadline(),
		"alert_interval", o.throttle.Interval(),
	)
	o.sendLifecycle(ctx, "Starting overwatch")
	o.PublishEvent(service.EventTypeOverwatchStarted, map[string]interface{}{
		"cameras":  len(o.cameras),
		"deadline": o.Deadline(),
	})

	for _, cam := range o.cameras {
		if err := cam.Source.Start(ctx); err != nil {
			o.LogError("Failed to start frame source", err, "camera", cam.Source.CameraID())
		}
	}

	var wg sync.WaitGroup
	for _, cam := range o.cameras {
		wg.Add(1)
		go func(p *pipeline.Pipeline) {
			defer wg.Done()
			o.runPipeline(ctx, p)
		}(cam.Pipeline)
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		NewHeartbeat(o.heartbeat, o.beat).Run(hbCtx)
	}()

	<-ctx.Done()
	reason := "deadline reached"
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "stopped"
	}

	wg.Wait()
	hbCancel()
	<-hbDone
	o.stopSources()

	o.GetStatus().SetStatus(service.StatusStopped)
	o.LogInfo("Finishing overwatch", "reason", reason, "ran_for", o.now().Sub(o.startedAt).Round(time.Second))

	// The run context is already done; the farewell gets its own budget.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o.sendLifecycle(finishCtx, "Finishing overwatch")
	o.PublishEvent(service.EventTypeOverwatchFinished, map[string]interface{}{
		"reason": reason,
	})
}

// runPipeline isolates a camera: a panic is logged and only that camera stops
func (o *Orchestrator) runPipeline(ctx context.Context, p *pipeline.Pipeline) {
	defer func() {
		if r := recover(); r != nil {
			o.mu.Lock()
			o.panics[p.CameraID()] = r
			o.mu.Unlock()
			o.logger.Error("Camera pipeline panicked",
				"camera", p.CameraID(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	p.Run(ctx)
}

func (o *Orchestrator) stopSources() {
	o.stopOnce.Do(func() {
		for _, cam := range o.cameras {
			cam.Source.Stop()
		}
	})
}

func (o *Orchestrator) sendLifecycle(ctx context.Context, text string) {
	if err := o.notifier.Text(ctx, notify.LevelLifecycle, text); err != nil {
		o.LogWarn("Failed to send notification", "text", text, "error", err)
	}
}

func (o *Orchestrator) beat(now time.Time) {
	fields := []interface{}{"remaining", pipeline.FormatRemaining(o.remainingAt(now))}
	for _, s := range o.Statuses() {
		fields = append(fields, s.CameraID, s.FramesProcessed)
	}
	o.LogInfo("Overwatch still running", fields...)
}

// Deadline returns when the run ends, zero before it started
func (o *Orchestrator) Deadline() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.deadline
}

// Remaining returns the time left in the run. Before the run it is the
// full duration.
func (o *Orchestrator) Remaining() time.Duration {
	return o.remainingAt(o.now())
}

func (o *Orchestrator) remainingAt(now time.Time) time.Duration {
	o.mu.RLock()
	deadline := o.deadline
	o.mu.RUnlock()

	if deadline.IsZero() {
		return o.duration
	}
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}

// Statuses returns a snapshot per camera, sorted by camera name
func (o *Orchestrator) Statuses() []pipeline.Status {
	o.mu.RLock()
	panics := make(map[string]interface{}, len(o.panics))
	for k, v := range o.panics {
		panics[k] = v
	}
	o.mu.RUnlock()

	statuses := make([]pipeline.Status, 0, len(o.cameras))
	for _, cam := range o.cameras {
		s := cam.Pipeline.Status()
		if r, ok := panics[s.CameraID]; ok {
			s.LastError = fmt.Sprintf("pipeline stopped: %v", r)
		}
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].CameraID < statuses[j].CameraID })
	return statuses
}

// Cameras returns every camera in configuration order
func (o *Orchestrator) Cameras() []Camera {
	return append([]Camera(nil), o.cameras...)
}

// Pipeline returns the pipeline of a camera
func (o *Orchestrator) Pipeline(cameraID string) (*pipeline.Pipeline, bool) {
	p, ok := o.byID[cameraID]
	return p, ok
}

// SourceStats returns capture statistics per camera in configuration order
func (o *Orchestrator) SourceStats() []video.SourceStats {
	stats := make([]video.SourceStats, 0, len(o.cameras))
	for _, cam := range o.cameras {
		stats = append(stats, cam.Source.Stats())
	}
	return stats
}

// LiveView returns the latest annotated JPEG of a camera and its sequence
func (o *Orchestrator) LiveView(cameraID string) ([]byte, uint64, error) {
	p, ok := o.Pipeline(cameraID)
	if !ok {
		return nil, 0, ErrUnknownCamera
	}
	if !p.Status().LiveView {
		return nil, 0, ErrLiveViewDisabled
	}
	data, seq, ok := p.LiveView()
	if !ok {
		return nil, 0, ErrNoLiveFrame
	}
	return data, seq, nil
}
