// Package audio holds the interleaved PCM buffer shared by the converter,
// the chunk cache and the player.
package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidFormat is returned for buffers with a non-positive sample
	// rate or channel count, or a sample slice that is not frame aligned.
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Buffer is interleaved float32 PCM in the range [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// New allocates a silent buffer holding frames frames.
func New(sampleRate, channels, frames int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    make([]float32, frames*channels),
	}
}

// Validate checks the buffer format.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidFormat)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidFormat, b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("%w: %d samples is not a multiple of %d channels", ErrInvalidFormat, len(b.Samples), b.Channels)
	}
	return nil
}

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.DurationOf(b.Frames())
}

// DurationOf converts a frame count at the buffer's rate to a duration.
func (b *Buffer) DurationOf(frames int) time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(b.SampleRate))
}

// FrameAt converts a duration to a frame index, clamped to the buffer.
func (b *Buffer) FrameAt(d time.Duration) int {
	if d <= 0 || b.SampleRate <= 0 {
		return 0
	}
	f := int(int64(d) * int64(b.SampleRate) / int64(time.Second))
	if n := b.Frames(); f > n {
		return n
	}
	return f
}

// Slice returns a view of the buffer between start and end. The view
// shares storage with b and must be treated as read-only.
func (b *Buffer) Slice(start, end time.Duration) *Buffer {
	from, to := b.FrameAt(start), b.FrameAt(end)
	if to < from {
		to = from
	}
	return &Buffer{
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
		Samples:    b.Samples[from*b.Channels : to*b.Channels],
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	samples := make([]float32, len(b.Samples))
	copy(samples, b.Samples)
	return &Buffer{SampleRate: b.SampleRate, Channels: b.Channels, Samples: samples}
}

// Bytes reports the memory held by the sample slice.
func (b *Buffer) Bytes() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Samples)) * 4
}

// Int16 converts a float sample to signed 16-bit PCM with clipping.
func Int16(s float32) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767)
}
