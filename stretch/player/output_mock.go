package player

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// MockOutput records every source it creates for inspection in tests.
type MockOutput struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	sources    []*MockSource
	closed     bool

	// Test helpers
	FailNext error
}

// NewMockOutput creates a new mock output.
func NewMockOutput(sampleRate, channels int) *MockOutput {
	log.Debug("Creating mock audio output for testing")
	return &MockOutput{sampleRate: sampleRate, channels: channels}
}

// NewSource implements Output.
func (o *MockOutput) NewSource(buf *audio.Buffer, offset, fadeIn time.Duration) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrOutputClosed
	}
	if err := o.FailNext; err != nil {
		o.FailNext = nil
		return nil, err
	}
	if err := checkFormat(buf, o.sampleRate, o.channels); err != nil {
		return nil, err
	}

	src := &MockSource{Buffer: buf, Offset: offset, FadeIn: fadeIn}
	o.sources = append(o.sources, src)
	return src, nil
}

// SampleRate implements Output.
func (o *MockOutput) SampleRate() int { return o.sampleRate }

// Channels implements Output.
func (o *MockOutput) Channels() int { return o.channels }

// Close implements Output.
func (o *MockOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("mock output already closed")
	}
	o.closed = true
	return nil
}

// Sources returns every source created so far.
func (o *MockOutput) Sources() []*MockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*MockSource, len(o.sources))
	copy(out, o.sources)
	return out
}

// Last returns the most recently created source, or nil.
func (o *MockOutput) Last() *MockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return nil
	}
	return o.sources[len(o.sources)-1]
}

// Playing returns the sources that were started and not yet closed.
func (o *MockOutput) Playing() []*MockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*MockSource
	for _, s := range o.sources {
		if s.IsPlaying() {
			out = append(out, s)
		}
	}
	return out
}

// MockSource is a source created by MockOutput.
type MockSource struct {
	Buffer *audio.Buffer
	Offset time.Duration
	FadeIn time.Duration

	mu       sync.Mutex
	played   bool
	closed   bool
	fadeAt   time.Duration
	fadedOut time.Duration
	fading   bool
}

// Play implements Source.
func (s *MockSource) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = true
}

// FadeOut implements Source.
func (s *MockSource) FadeOut(at, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fading = true
	s.fadeAt = at
	s.fadedOut = d
}

// Close implements Source.
func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsPlaying reports whether the source was started and not closed.
func (s *MockSource) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played && !s.closed
}

// Closed reports whether the source was closed.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FadedOut returns the buffer offset and length of the fade-out and whether
// one was requested.
func (s *MockSource) FadedOut() (at, d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fadeAt, s.fadedOut, s.fading
}
