// Package notify delivers operator notifications.
package notify

import (
	"context"
	"errors"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// ErrDisabled is returned by a sink that is switched off
var ErrDisabled = errors.New("notifications disabled")

// Verbosity levels. A message is delivered when its level is at or below
// the configured runtime verbosity.
const (
	LevelAlert     = 1 // detection images
	LevelFailure   = 2 // camera failure notices
	LevelLifecycle = 3 // start and finish of the overwatch
)

// Sink sends messages to the operator
type Sink interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, jpeg []byte, caption string) error
}

// Leveled gates a sink by verbosity
type Leveled struct {
	sink      Sink
	verbosity int
}

// NewLeveled wraps sink so that only messages with level <= verbosity pass
func NewLeveled(sink Sink, verbosity int) *Leveled {
	return &Leveled{sink: sink, verbosity: verbosity}
}

// Enabled reports whether messages of level are delivered
func (l *Leveled) Enabled(level int) bool {
	return l != nil && l.sink != nil && level <= l.verbosity
}

// Text sends text when level is enabled
func (l *Leveled) Text(ctx context.Context, level int, text string) error {
	if !l.Enabled(level) {
		return nil
	}
	return l.sink.SendText(ctx, text)
}

// Image sends a JPEG with a caption when level is enabled
func (l *Leveled) Image(ctx context.Context, level int, jpeg []byte, caption string) error {
	if !l.Enabled(level) {
		return nil
	}
	return l.sink.SendImage(ctx, jpeg, caption)
}

// LogSink writes notifications to the log. It stands in for a chat sink
// when none is configured.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink that logs every message
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// SendText logs text
func (s *LogSink) SendText(ctx context.Context, text string) error {
	s.logger.Info("Notification", "text", text)
	return nil
}

// SendImage logs the caption and image size
func (s *LogSink) SendImage(ctx context.Context, jpeg []byte, caption string) error {
	s.logger.Info("Notification image", "caption", caption, "bytes", len(jpeg))
	return nil
}
