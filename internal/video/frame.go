package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Frame is a single decoded video frame. A published frame is never
// mutated; drawing happens on a copy.
type Frame struct {
	CameraID  string      // Camera this frame came from
	Seq       uint64      // Monotonic per source, starts at 1
	Timestamp time.Time   // Capture time
	Image     image.Image // Decoded pixels
	Data      []byte      // Original JPEG bytes
	Width     int
	Height    int
}

// DecodeFrame decodes a JPEG payload into a Frame
func DecodeFrame(cameraID string, seq uint64, ts time.Time, data []byte) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}

	bounds := img.Bounds()
	return &Frame{
		CameraID:  cameraID,
		Seq:       seq,
		Timestamp: ts,
		Image:     img,
		Data:      data,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// Age returns how old the frame is at now
func (f *Frame) Age(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}
