// Package source decodes audio files into buffers the engine can play.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/charmbracelet/stretch/stretch/audio"
)

var (
	// ErrUnsupportedFormat is returned for a file extension nothing is
	// registered for.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNoAudio is returned when a file decodes to zero frames.
	ErrNoAudio = errors.New("file contains no audio")
)

// Decoder decodes a whole stream into a buffer.
type Decoder interface {
	Decode(r io.ReadSeeker) (*audio.Buffer, error)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(r io.ReadSeeker) (*audio.Buffer, error)

// Decode calls f.
func (f DecoderFunc) Decode(r io.ReadSeeker) (*audio.Buffer, error) { return f(r) }

// Registry maps file extensions to decoders.
type Registry struct {
	mu     sync.Mutex
	codecs map[string]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

// Register adds d for ext. The leading dot is optional and case is ignored.
func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[normalizeExt(ext)] = d
}

// Get returns the decoder for ext.
func (r *Registry) Get(ext string) (Decoder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.codecs[normalizeExt(ext)]
	return d, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	exts := make([]string, 0, len(r.codecs))
	for ext := range r.codecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Decode opens path and decodes it with the decoder registered for its
// extension. A leading ~ is expanded to the home directory.
func (r *Registry) Decode(path string) (*audio.Buffer, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}

	ext := filepath.Ext(expanded)
	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	buf, err := d.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", filepath.Base(expanded), err)
	}
	if buf.Frames() == 0 {
		return nil, ErrNoAudio
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	log.Debug("Decoded audio file",
		"path", expanded,
		"rate", buf.SampleRate,
		"channels", buf.Channels,
		"duration", buf.Duration())
	return buf, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Register("wav", DecoderFunc(DecodeWAV))
	r.Register("wave", DecoderFunc(DecodeWAV))
	r.Register("mp3", DecoderFunc(DecodeMP3))
	r.Register("ogg", DecoderFunc(DecodeVorbis))
	r.Register("oga", DecoderFunc(DecodeVorbis))
	return r
}()

// Decode decodes path with the default registry.
func Decode(path string) (*audio.Buffer, error) {
	return defaultRegistry.Decode(path)
}

// Extensions returns the extensions Decode understands.
func Extensions() []string {
	return defaultRegistry.Extensions()
}
