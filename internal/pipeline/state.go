package pipeline

import (
	"fmt"
	"time"
)

// Phase is the confirmation state of a camera
type Phase int

const (
	// PhaseIdle means the last processed frame had no detection
	PhaseIdle Phase = iota
	// PhaseAccumulating means detections are being counted towards the threshold
	PhaseAccumulating
	// PhaseConfirmed means the threshold was reached on the last processed frame
	PhaseConfirmed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAccumulating:
		return "accumulating"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets Phase render as its name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhaseAccumulating, PhaseConfirmed} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// phaseFor derives the phase from the detections counter
func phaseFor(inARow, threshold int) Phase {
	switch {
	case inARow == 0:
		return PhaseIdle
	case inARow < threshold:
		return PhaseAccumulating
	default:
		return PhaseConfirmed
	}
}

// RuntimeState is the per-camera mutable state owned by one pipeline
type RuntimeState struct {
	DetectionsInARow int
	FailureCount     int
	FailureNotified  bool
	FramesProcessed  uint64
	LastSeq          uint64
	AlertsSent       uint64
	AlertsThrottled  uint64
	// ThrottledSinceAlert counts confirmed ticks held back since the last alert
	ThrottledSinceAlert int
	LastFrameAt      time.Time
	LastDetectionAt  time.Time
	LastAlertAt      time.Time
	LastError        error
}

// Status is a point-in-time copy of a pipeline's state
type Status struct {
	CameraID            string    `json:"camera_id"`
	Phase               Phase     `json:"phase"`
	DetectionsInARow    int       `json:"detections_in_a_row"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FramesProcessed     uint64    `json:"frames_processed"`
	AlertsSent          uint64    `json:"alerts_sent"`
	AlertsThrottled     uint64    `json:"alerts_throttled"`
	LiveView            bool      `json:"live_view"`
	LastFrameAt         time.Time `json:"last_frame_at,omitempty"`
	LastDetectionAt     time.Time `json:"last_detection_at,omitempty"`
	LastAlertAt         time.Time `json:"last_alert_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Outcome classifies what a tick did
type Outcome int

const (
	// OutcomeFailure means no usable frame was available
	OutcomeFailure Outcome = iota
	// OutcomeIdle means the frame had already been processed and is still fresh
	OutcomeIdle
	// OutcomeProcessed means a new frame went through detection
	OutcomeProcessed
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeFailure:
		return "failure"
	case OutcomeIdle:
		return "idle"
	case OutcomeProcessed:
		return "processed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TickResult reports the effect of a single tick
type TickResult struct {
	Outcome          Outcome
	Phase            Phase
	Detections       int // detections kept after class, confidence and zone filtering
	DetectionsInARow int
	FailureCount     int
	FailureNotified  bool // the failure notice was emitted on this tick
	AlertSent        bool
	AlertThrottled   bool
	FramePath        string
	Err              error
}

// FormatRemaining renders a duration as HH:MM:SS. Negative durations
// render as 00:00:00 and hours may exceed 99.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
