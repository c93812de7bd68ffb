package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

const testCamera = "Camera_1"

type fakeSource struct {
	mu    sync.Mutex
	frame *video.Frame
	err   error
}

func (s *fakeSource) CameraID() string { return testCamera }

func (s *fakeSource) Latest() (*video.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.err
}

func (s *fakeSource) set(frame *video.Frame, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame, s.err = frame, err
}

// push publishes a new frame with the next sequence number
func (s *fakeSource) push(ts time.Time) *video.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seq uint64 = 1
	if s.frame != nil {
		seq = s.frame.Seq + 1
	}
	s.frame, s.err = newFrame(seq, ts), nil
	return s.frame
}

func newFrame(seq uint64, ts time.Time) *video.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 50, 255})
		}
	}
	return &video.Frame{CameraID: testCamera, Seq: seq, Timestamp: ts, Image: img, Width: 100, Height: 100}
}

// scriptedDetector returns the next entry of results on each call and
// nothing once the script runs out
type scriptedDetector struct {
	mu      sync.Mutex
	results [][]ai.Detection
	err     error
	calls   int
}

func (d *scriptedDetector) Detect(ctx context.Context, img image.Image) ([]ai.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.results) == 0 {
		return nil, nil
	}
	next := d.results[0]
	d.results = d.results[1:]
	return next, nil
}

func (d *scriptedDetector) setAlways(dets []ai.Detection, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = nil
	for i := 0; i < n; i++ {
		d.results = append(d.results, dets)
	}
}

// person returns a detection whose bottom-centre lands at (cx, bottom) of a
// 100x100 frame
func person(cx, bottom, confidence float64) ai.Detection {
	return ai.Detection{
		ClassID:    0,
		ClassName:  "person",
		Confidence: confidence,
		Box:        ai.Box{X1: cx - 5, Y1: bottom - 20, X2: cx + 5, Y2: bottom},
	}
}

type sentMessage struct {
	text    string
	image   bool
	caption string
}

type recordingSink struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
}

func (s *recordingSink) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{text: text})
	return s.err
}

func (s *recordingSink) SendImage(ctx context.Context, jpeg []byte, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{image: true, caption: caption})
	return s.err
}

func (s *recordingSink) all() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.messages...)
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []string
}

func (s *recordingSaver) Save(ctx context.Context, cameraID string, ts time.Time, img image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := cameraID + "_" + ts.Format("150405") + ".jpg"
	s.saved = append(s.saved, path)
	return path, nil
}
