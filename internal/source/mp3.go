package source

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// go-mp3 always produces interleaved stereo 16-bit little-endian PCM.
const mp3Channels = 2

// DecodeMP3 decodes an MPEG-1/2 layer III stream.
func DecodeMP3(r io.ReadSeeker) (*audio.Buffer, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read MP3 stream: %w", err)
	}

	var pcm []byte
	if n := dec.Length(); n > 0 {
		pcm = make([]byte, 0, n)
	}
	chunk := make([]byte, 8192)
	for {
		n, err := dec.Read(chunk)
		pcm = append(pcm, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to decode MP3 frame: %w", err)
		}
	}

	frames := len(pcm) / (2 * mp3Channels)
	buf := audio.New(dec.SampleRate(), mp3Channels, frames)
	for i := range buf.Samples {
		buf.Samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return buf, nil
}
