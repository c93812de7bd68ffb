package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
)

// Recorder persists alert, camera failure and run events from the event bus
type Recorder struct {
	*service.ServiceBase

	manager *Manager
	logger  *logger.Logger

	mu     sync.Mutex
	runID  string
	events <-chan service.Event
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder writing through manager
func NewRecorder(manager *Manager, log *logger.Logger) *Recorder {
	return &Recorder{
		ServiceBase: service.NewServiceBase("recorder", log),
		manager:     manager,
		logger:      log,
	}
}

// Start subscribes to the event bus and persists events in the background
func (r *Recorder) Start(ctx context.Context) error {
	bus := r.GetEventBus()
	if bus == nil {
		return fmt.Errorf("recorder has no event bus")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("recorder already started")
	}

	r.events = bus.SubscribeAll()
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(runCtx)

	r.GetStatus().SetStatus(service.StatusRunning)
	r.LogInfo("Recorder started")
	return nil
}

// Stop persists events already queued and stops the recorder
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if bus := r.GetEventBus(); bus != nil {
		bus.Unsubscribe("", r.events)
	}
	r.GetStatus().SetStatus(service.StatusStopped)
	r.LogInfo("Recorder stopped")
	return nil
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				return
			}
			r.handle(event)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// drain writes events that were published before the stop
func (r *Recorder) drain() {
	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				return
			}
			r.handle(event)
		default:
			return
		}
	}
}

func (r *Recorder) handle(event service.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Handle(ctx, event); err != nil {
		r.LogError("Failed to record event", err, "event_type", string(event.Type))
	}
}

// Handle persists a single event. Events of other types are ignored.
func (r *Recorder) Handle(ctx context.Context, event service.Event) error {
	switch event.Type {
	case service.EventTypeAlertSent:
		_, err := r.manager.SaveAlert(ctx, AlertRecord{
			CameraID:         stringField(event.Data, "camera_id"),
			ClassName:        stringField(event.Data, "class_name"),
			Confidence:       floatField(event.Data, "confidence"),
			DetectionsInARow: intField(event.Data, "detections_in_a_row"),
			FramePath:        stringField(event.Data, "frame_path"),
			Sent:             boolField(event.Data, "sent"),
			ThrottledBefore:  intField(event.Data, "throttled_before"),
			CreatedAt:        event.Timestamp,
		})
		return err

	case service.EventTypeCameraStreamUnhealthy:
		_, err := r.manager.SaveCameraFailure(ctx, CameraFailure{
			CameraID:            stringField(event.Data, "camera_id"),
			ConsecutiveFailures: intField(event.Data, "consecutive_failures"),
			Error:               stringField(event.Data, "error"),
			CreatedAt:           event.Timestamp,
		})
		return err

	case service.EventTypeOverwatchStarted:
		deadline, _ := event.Data["deadline"].(time.Time)
		id, err := r.manager.StartRun(ctx, intField(event.Data, "cameras"), event.Timestamp, deadline)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.runID = id
		r.mu.Unlock()
		return nil

	case service.EventTypeOverwatchFinished:
		r.mu.Lock()
		id := r.runID
		r.runID = ""
		r.mu.Unlock()
		if id == "" {
			return nil
		}
		return r.manager.FinishRun(ctx, id, stringField(event.Data, "reason"), event.Timestamp)
	}
	return nil
}

// RunID returns the ID of the run in progress, empty when none
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

func boolField(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func floatField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
