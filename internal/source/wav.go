package source

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/charmbracelet/stretch/stretch/audio"
)

var (
	// ErrNotWAV is returned for streams without a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a WAV file")

	// ErrUnsupportedBitDepth is returned for PCM depths other than 8, 16, 24
	// and 32 bits.
	ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")
)

// wavPCM is the WAVE_FORMAT_PCM format tag.
const wavPCM = 1

// DecodeWAV decodes an integer PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (*audio.Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	if dec.WavAudioFormat != wavPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	scale, err := pcmScale(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("unable to read PCM data: %w", err)
	}

	buf := &audio.Buffer{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    make([]float32, len(pcm.Data)),
	}
	// 8-bit WAV is unsigned.
	offset := 0
	if dec.BitDepth == 8 {
		offset = 128
	}
	for i, v := range pcm.Data {
		buf.Samples[i] = float32(v-offset) / scale
	}

	// Drop a trailing partial frame.
	if buf.Channels > 0 {
		buf.Samples = buf.Samples[:len(buf.Samples)/buf.Channels*buf.Channels]
	}
	return buf, nil
}

func pcmScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128, nil
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}

// WriteWAV encodes buf as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, buf *audio.Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, buf.SampleRate, 16, buf.Channels, wavPCM)
	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buf.Channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           make([]int, len(buf.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range buf.Samples {
		pcm.Data[i] = int(audio.Int16(s))
	}

	if err := enc.Write(pcm); err != nil {
		_ = enc.Close()
		return fmt.Errorf("unable to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("unable to finish WAV file: %w", err)
	}
	return nil
}
