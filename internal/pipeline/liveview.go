package pipeline

import (
	"image"
	"sync"

	"github.com/Orlik-B/NVR-surveillance/internal/video"
)

// liveView holds the most recent annotated frame as JPEG. Like the capture
// slot it keeps one frame and readers never wait for the writer.
type liveView struct {
	mu   sync.RWMutex
	data []byte
	seq  uint64
}

func (p *Pipeline) publishLive(img image.Image) {
	data, err := video.EncodeJPEG(img, p.config.JPEGQuality)
	if err != nil {
		p.logger.Warn("Failed to encode live view frame", "error", err)
		return
	}

	p.live.mu.Lock()
	p.live.data = data
	p.live.seq++
	p.live.mu.Unlock()
}

// LiveView returns the latest annotated JPEG and its sequence number. ok is
// false when the camera has no live view or nothing was processed yet.
func (p *Pipeline) LiveView() (data []byte, seq uint64, ok bool) {
	p.live.mu.RLock()
	defer p.live.mu.RUnlock()

	if p.live.data == nil {
		return nil, 0, false
	}
	return p.live.data, p.live.seq, true
}
