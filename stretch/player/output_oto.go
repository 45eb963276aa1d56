//go:build !nocgo
// +build !nocgo

package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// deviceBufferSize keeps device latency well below the crossfade length.
const deviceBufferSize = 40 * time.Millisecond

// readyTimeout bounds how long we wait for the device to come up.
const readyTimeout = 5 * time.Second

// OtoOutput plays through the system audio device.
type OtoOutput struct {
	context    *oto.Context
	sampleRate int
	channels   int

	mu     sync.Mutex
	closed bool
}

// NewOtoOutput opens the audio device with the given format.
func NewOtoOutput(sampleRate, channels int) (*OtoOutput, error) {
	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   deviceBufferSize,
	}

	log.Debug("Initializing audio output",
		"sample_rate", sampleRate,
		"channels", channels,
		"buffer_size", options.BufferSize)

	context, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputUnavailable, err)
	}

	select {
	case <-readyChan:
	case <-time.After(readyTimeout):
		// oto v3 contexts cannot be closed; it will be garbage collected.
		return nil, fmt.Errorf("%w: initialization timeout after %v", ErrOutputUnavailable, readyTimeout)
	}

	log.Debug("Audio output ready")
	return &OtoOutput{
		context:    context,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// NewSource implements Output.
func (o *OtoOutput) NewSource(buf *audio.Buffer, offset, fadeIn time.Duration) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrOutputClosed
	}
	if err := checkFormat(buf, o.sampleRate, o.channels); err != nil {
		return nil, err
	}

	r := newFadeReader(buf, offset, fadeIn)
	p := o.context.NewPlayer(r)
	// The default player buffer reads about half a second ahead.
	p.SetBufferSize(framesIn(buf, deviceBufferSize) * 2 * buf.Channels)
	return &otoSource{reader: r, player: p}, nil
}

// SampleRate implements Output.
func (o *OtoOutput) SampleRate() int { return o.sampleRate }

// Channels implements Output.
func (o *OtoOutput) Channels() int { return o.channels }

// Close implements Output. The device itself stays open for the process.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

type otoSource struct {
	reader *fadeReader
	player *oto.Player
	once   sync.Once
}

func (s *otoSource) Play() { s.player.Play() }

func (s *otoSource) FadeOut(at, d time.Duration) { s.reader.FadeOut(at, d) }

func (s *otoSource) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.reader.Close()
		s.player.Pause()
		err = s.player.Close()
	})
	return err
}
