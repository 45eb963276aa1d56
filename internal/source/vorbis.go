package source

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// DecodeVorbis decodes an Ogg Vorbis stream.
func DecodeVorbis(r io.ReadSeeker) (*audio.Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to decode Ogg Vorbis stream: %w", err)
	}
	return &audio.Buffer{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Samples:    samples,
	}, nil
}
