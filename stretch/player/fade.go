package player

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// fadeReader streams a buffer as signed 16-bit little-endian PCM and
// applies the equal-power fade envelopes on the fly. The buffer is never
// modified.
type fadeReader struct {
	buf *audio.Buffer

	mu            sync.Mutex
	pos           int // next frame to read
	fadeInStart   int
	fadeInFrames  int
	fadeOutStart  int // -1 until FadeOut is called
	fadeOutFrames int
	closed        bool
}

func newFadeReader(buf *audio.Buffer, offset, fadeIn time.Duration) *fadeReader {
	start := buf.FrameAt(offset)
	return &fadeReader{
		buf:          buf,
		pos:          start,
		fadeInStart:  start,
		fadeInFrames: framesIn(buf, fadeIn),
		fadeOutStart: -1,
	}
}

func framesIn(buf *audio.Buffer, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return max(1, int(int64(d)*int64(buf.SampleRate)/int64(time.Second)))
}

// Read implements io.Reader.
func (r *fadeReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.faded() {
		return 0, io.EOF
	}

	ch := r.buf.Channels
	frameBytes := 2 * ch
	total := r.buf.Frames()
	if r.pos >= total {
		return 0, io.EOF
	}

	n := 0
	for n+frameBytes <= len(p) && r.pos < total && !r.faded() {
		g := float32(r.gain(r.pos))
		base := r.pos * ch
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint16(p[n:], uint16(audio.Int16(r.buf.Samples[base+c]*g)))
			n += 2
		}
		r.pos++
	}
	return n, nil
}

// gain returns the envelope at frame pos. Callers hold mu.
func (r *fadeReader) gain(pos int) float64 {
	g := 1.0
	if d := pos - r.fadeInStart; r.fadeInFrames > 0 && d < r.fadeInFrames {
		g *= FadeIn(float64(d) / float64(r.fadeInFrames))
	}
	if r.fadeOutStart >= 0 {
		d := pos - r.fadeOutStart
		if d >= r.fadeOutFrames {
			return 0
		}
		g *= FadeOut(float64(d) / float64(r.fadeOutFrames))
	}
	return g
}

func (r *fadeReader) faded() bool {
	return r.fadeOutStart >= 0 && r.pos-r.fadeOutStart >= r.fadeOutFrames
}

// FadeOut fades to silence over d starting at buffer offset at. The fade
// is placed on the buffer, independent of how far the reader has got.
// Frames already read keep the gain they were read with.
func (r *fadeReader) FadeOut(at, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fadeOutStart >= 0 {
		return
	}
	r.fadeOutStart = r.buf.FrameAt(at)
	r.fadeOutFrames = max(1, framesIn(r.buf, d))
}

// Close makes further reads return io.EOF.
func (r *fadeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Position returns the next frame to be read.
func (r *fadeReader) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}
