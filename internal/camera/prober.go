// Package camera checks that camera streams are reachable before an
// overwatch starts.
package camera

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph264"
	"github.com/pion/rtp"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// ErrNoPackets is returned when a stream was set up but no RTP packet
// arrived before the probe timeout
var ErrNoPackets = errors.New("no RTP packets received")

// ProbeResult describes a reachable stream
type ProbeResult struct {
	CameraID     string        `json:"camera_id"`
	URL          string        `json:"url"` // credentials redacted
	Formats      []string      `json:"formats"`
	H264         bool          `json:"h264"`
	FirstPacket  time.Duration `json:"first_packet"`
	AccessUnit   bool          `json:"access_unit"` // a full H.264 access unit was decoded
	ProbeElapsed time.Duration `json:"probe_elapsed"`
}

// Prober opens a short RTSP session per camera
type Prober struct {
	logger  *logger.Logger
	timeout time.Duration
}

// NewProber creates a prober. timeout bounds the whole probe of one camera.
func NewProber(timeout time.Duration, log *logger.Logger) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{logger: log, timeout: timeout}
}

// Probe describes the stream, sets up every media and waits for the first
// RTP packet
func (p *Prober) Probe(ctx context.Context, cameraID, rawURL string) (*ProbeResult, error) {
	started := time.Now()
	result := &ProbeResult{CameraID: cameraID, URL: RedactURL(rawURL)}
	log := p.logger.With("camera", cameraID, "url", result.URL)

	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := &gortsplib.Client{
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(client.Close) }
	defer closeClient()

	// Client calls do not take a context, so cancellation closes the client
	// and unblocks whatever call is in flight.
	stop := context.AfterFunc(ctx, closeClient)
	defer stop()

	desc, _, err := client.Describe(u)
	if err != nil {
		return nil, p.wrap(ctx, "failed to describe stream", err)
	}

	media, h264 := findH264(desc)
	for _, m := range desc.Medias {
		for _, f := range m.Formats {
			result.Formats = append(result.Formats, f.Codec())
		}
	}
	result.H264 = h264 != nil

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return nil, p.wrap(ctx, "failed to setup stream", err)
	}

	firstPacket := make(chan struct{})
	accessUnit := make(chan struct{})
	var firstOnce, auOnce sync.Once

	client.OnPacketRTPAny(func(m *description.Media, f format.Format, pkt *rtp.Packet) {
		firstOnce.Do(func() { close(firstPacket) })
	})

	if h264 != nil {
		decoder := &rtph264.Decoder{}
		if err := decoder.Init(); err != nil {
			return nil, fmt.Errorf("failed to init decoder: %w", err)
		}
		client.OnPacketRTP(media, h264, func(pkt *rtp.Packet) {
			firstOnce.Do(func() { close(firstPacket) })
			if nalus, err := decoder.Decode(pkt); err == nil && len(nalus) > 0 {
				auOnce.Do(func() { close(accessUnit) })
			}
		})
	}

	if _, err := client.Play(nil); err != nil {
		return nil, p.wrap(ctx, "failed to play stream", err)
	}

	select {
	case <-firstPacket:
		result.FirstPacket = time.Since(started)
	case <-ctx.Done():
		return nil, p.wrap(ctx, "waiting for packets", ErrNoPackets)
	}

	if h264 != nil {
		select {
		case <-accessUnit:
			result.AccessUnit = true
		case <-ctx.Done():
			log.Warn("Stream sends packets but no complete H.264 access unit was decoded")
		}
	}

	result.ProbeElapsed = time.Since(started)
	log.Info("Camera stream probed",
		"formats", result.Formats,
		"first_packet", result.FirstPacket,
		"access_unit", result.AccessUnit,
	)
	return result, nil
}

func (p *Prober) wrap(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w: %w", msg, ctxErr, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func findH264(desc *description.Session) (*description.Media, *format.H264) {
	for _, media := range desc.Medias {
		for _, forma := range media.Formats {
			if h264, ok := forma.(*format.H264); ok {
				return media, h264
			}
		}
	}
	return nil, nil
}

// RedactURL hides the password of a stream URL so it can be logged
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
