package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testJPEG encodes a solid w x h image
func testJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// fakeReader replays scripted results; once exhausted it waits for more
// results or for ctx to end
type fakeReader struct {
	mu      sync.Mutex
	results []readResult
	closed  int
}

type readResult struct {
	data []byte
	err  error
}

func (r *fakeReader) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		r.mu.Lock()
		if len(r.results) > 0 {
			res := r.results[0]
			r.results = r.results[1:]
			r.mu.Unlock()
			return res.data, res.err
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) push(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, readResult{data: data})
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeReader) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// fakeDialer hands out readers in order; dialing past the end fails
type fakeDialer struct {
	mu      sync.Mutex
	readers []*fakeReader
	dials   int
}

var errDialRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(ctx context.Context, url string) (StreamReader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.readers) == 0 {
		return nil, errDialRefused
	}
	r := d.readers[0]
	d.readers = d.readers[1:]
	return r, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// eventually polls cond until it holds or the timeout elapses
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
