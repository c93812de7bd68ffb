package video

import "bytes"

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxPendingJPEG caps the splitter buffer when the stream never produces
// an end marker.
const maxPendingJPEG = 16 << 20

// nextJPEG removes the first complete JPEG image from buffer and returns it,
// or nil when the buffer does not hold a complete image yet. Bytes before
// the start marker are discarded.
func nextJPEG(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	start := bytes.Index(buf, jpegSOI)
	if start == -1 {
		// Keep a trailing 0xFF in case the marker is split across reads.
		if buf[len(buf)-1] == 0xFF {
			*buffer = append(buf[:0], 0xFF)
		} else {
			*buffer = buf[:0]
		}
		return nil
	}

	end := bytes.Index(buf[start+2:], jpegEOI)
	if end == -1 {
		if start > 0 {
			*buffer = append(buf[:0], buf[start:]...)
		}
		return nil
	}
	end += start + 2 + len(jpegEOI)

	frame := make([]byte, end-start)
	copy(frame, buf[start:end])
	*buffer = append(buf[:0], buf[end:]...)

	return frame
}
