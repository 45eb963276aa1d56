package player

import (
	"sync"
	"time"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// NullOutput accepts sources and discards their audio. Playback timing is
// driven by the player's clock, so the engine behaves the same as with a
// device.
type NullOutput struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	closed bool
}

// NewNullOutput creates a silent output.
func NewNullOutput(sampleRate, channels int) *NullOutput {
	return &NullOutput{sampleRate: sampleRate, channels: channels}
}

// NewSource implements Output.
func (o *NullOutput) NewSource(buf *audio.Buffer, offset, fadeIn time.Duration) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrOutputClosed
	}
	if err := checkFormat(buf, o.sampleRate, o.channels); err != nil {
		return nil, err
	}
	return nullSource{}, nil
}

// SampleRate implements Output.
func (o *NullOutput) SampleRate() int { return o.sampleRate }

// Channels implements Output.
func (o *NullOutput) Channels() int { return o.channels }

// Close implements Output.
func (o *NullOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

type nullSource struct{}

func (nullSource) Play()                 {}
func (nullSource) FadeOut(_, _ time.Duration) {}
func (nullSource) Close() error          { return nil }
