package player

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch/audio"
)

var (
	// ErrOutputClosed is returned when creating a source on a closed output.
	ErrOutputClosed = errors.New("audio output is closed")

	// ErrOutputUnavailable is returned when no audio device can be used.
	ErrOutputUnavailable = errors.New("audio output not available")

	// ErrFormatMismatch is returned when a buffer does not match the
	// output's sample rate or channel count.
	ErrFormatMismatch = errors.New("buffer format does not match output")
)

// Output creates playable sources. It stands in for the audio graph the
// engine renders into.
type Output interface {
	// NewSource prepares buf for playback starting at offset, with an
	// equal-power fade-in over fadeIn. The source is silent until Play.
	NewSource(buf *audio.Buffer, offset, fadeIn time.Duration) (Source, error)

	// SampleRate returns the output sample rate.
	SampleRate() int

	// Channels returns the output channel count.
	Channels() int

	// Close releases the device.
	Close() error
}

// Source is one playing buffer. A source cannot be restarted once closed;
// the player builds a fresh one every time.
type Source interface {
	// Play starts output.
	Play()

	// FadeOut fades the source to silence over d, starting at offset at
	// into its buffer.
	FadeOut(at, d time.Duration)

	// Close stops output and releases the source.
	Close() error
}

// FadeIn is the equal-power fade-in gain at t in [0, 1].
func FadeIn(t float64) float64 {
	return math.Sin(clamp01(t) * math.Pi / 2)
}

// FadeOut is the equal-power fade-out gain at t in [0, 1].
func FadeOut(t float64) float64 {
	return math.Cos(clamp01(t) * math.Pi / 2)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// OutputType selects an Output implementation.
type OutputType int

const (
	// OutputDevice plays through the system audio device.
	OutputDevice OutputType = iota
	// OutputNull discards audio while keeping playback timing.
	OutputNull
	// OutputAuto uses the device unless running in CI.
	OutputAuto
)

// NewOutput creates an output of the given type.
func NewOutput(kind OutputType, sampleRate, channels int) (Output, error) {
	if kind == OutputAuto {
		kind = OutputDevice
		if IsCI() {
			kind = OutputNull
		}
	}

	switch kind {
	case OutputNull:
		log.Debug("Using null audio output", "sample_rate", sampleRate, "channels", channels)
		return NewNullOutput(sampleRate, channels), nil
	case OutputDevice:
		out, err := NewOtoOutput(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown output type %d", kind)
	}
}

// IsCI detects if we're running in a CI environment.
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"BUILDKITE",
	}
	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}
	return os.Getenv("STRETCH_NULL_AUDIO") == "true"
}

func checkFormat(buf *audio.Buffer, rate, channels int) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if buf.SampleRate != rate || buf.Channels != channels {
		return fmt.Errorf("%w: buffer %d Hz x%d, output %d Hz x%d",
			ErrFormatMismatch, buf.SampleRate, buf.Channels, rate, channels)
	}
	return nil
}
