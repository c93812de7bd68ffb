package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// StreamReader yields raw JPEG frames from an open stream
type StreamReader interface {
	// ReadFrame blocks until the next frame arrives, the read times out
	// or ctx is cancelled.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a stream for a URL
type Dialer interface {
	Dial(ctx context.Context, url string) (StreamReader, error)
}

// ErrReadTimeout is returned when no frame arrived within the read timeout
var ErrReadTimeout = errors.New("stream read timed out")

// FFmpegDialer decodes streams by piping them through an ffmpeg child
// process that re-encodes every frame as MJPEG on stdout.
type FFmpegDialer struct {
	Path        string
	ReadTimeout time.Duration
	Logger      *logger.Logger
}

// NewFFmpegDialer creates a dialer using the given ffmpeg binary
func NewFFmpegDialer(path string, readTimeout time.Duration, log *logger.Logger) *FFmpegDialer {
	if path == "" {
		path = "ffmpeg"
	}
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &FFmpegDialer{Path: path, ReadTimeout: readTimeout, Logger: log}
}

// buildArgs returns the ffmpeg arguments for a stream URL
func buildArgs(url string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-i", url,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// Dial starts ffmpeg for url. The process is killed when ctx is cancelled
// or the returned reader is closed.
func (d *FFmpegDialer) Dial(ctx context.Context, url string) (StreamReader, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, d.Path, buildArgs(url)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		cmd:         cmd,
		cancel:      cancel,
		readTimeout: d.ReadTimeout,
		frames:      make(chan []byte, 1),
		done:        make(chan struct{}),
		logger:      d.Logger,
	}

	go s.drainStderr(stderr)
	go s.readLoop(stdout)

	return s, nil
}

type ffmpegStream struct {
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	readTimeout time.Duration
	frames      chan []byte
	done        chan struct{}
	logger      *logger.Logger

	mu      sync.Mutex
	readErr error
	lastErr string // last stderr line

	closeOnce sync.Once
	closeErr  error
}

// readLoop splits stdout into JPEG images. Only the newest unread image is
// kept; older ones are dropped.
func (s *ffmpegStream) readLoop(stdout io.Reader) {
	defer close(s.done)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 64*1024)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := nextJPEG(&buffer)
				if frame == nil {
					break
				}
				s.offer(frame)
			}
			if len(buffer) > maxPendingJPEG {
				buffer = buffer[:0]
			}
		}
		if err != nil {
			if err == io.EOF {
				err = errors.New("ffmpeg exited")
			}
			s.mu.Lock()
			if s.lastErr != "" {
				err = fmt.Errorf("%w: %s", err, s.lastErr)
			}
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

func (s *ffmpegStream) offer(frame []byte) {
	select {
	case s.frames <- frame:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
}

func (s *ffmpegStream) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.mu.Lock()
		s.lastErr = line
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Debug("ffmpeg", "output", line)
		}
	}
}

func (s *ffmpegStream) ReadFrame(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		// Frames decoded right before the process exited are still valid.
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, fmt.Errorf("stream closed: %w", s.readErr)
	case <-timer.C:
		return nil, ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if err := s.cmd.Wait(); err != nil && !isKilled(err) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return !exitErr.Exited() || exitErr.ExitCode() == 255
	}
	return errors.Is(err, context.Canceled)
}

// LookupFFmpeg resolves the ffmpeg binary, trying common locations when
// path is empty or not found.
func LookupFFmpeg(path string) (string, error) {
	candidates := []string{path, "ffmpeg", "/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg"}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("ffmpeg not found in PATH or common locations")
}

// FFmpegVersion returns the first line of `ffmpeg -version`
func FFmpegVersion(ctx context.Context, path string) (string, error) {
	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}

	return "unknown", nil
}
