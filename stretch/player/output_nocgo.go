//go:build nocgo
// +build nocgo

package player

import (
	"fmt"
	"time"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// OtoOutput is unavailable in builds without cgo.
type OtoOutput struct{}

// NewOtoOutput returns an error when built without cgo.
func NewOtoOutput(sampleRate, channels int) (*OtoOutput, error) {
	return nil, fmt.Errorf("%w: built without cgo, use the null output", ErrOutputUnavailable)
}

// NewSource implements Output.
func (o *OtoOutput) NewSource(*audio.Buffer, time.Duration, time.Duration) (Source, error) {
	return nil, ErrOutputUnavailable
}

// SampleRate implements Output.
func (o *OtoOutput) SampleRate() int { return 0 }

// Channels implements Output.
func (o *OtoOutput) Channels() int { return 0 }

// Close implements Output.
func (o *OtoOutput) Close() error { return nil }
