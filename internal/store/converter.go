package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

var errBadBlob = errors.New("malformed chunk blob")

var blobMagic = [4]byte{'S', 'T', 'R', '1'}

// Store is the blob storage CachingConverter reads and writes.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// CachingConverter serves conversions from a Store and writes misses
// through. Keys cover the input samples, the tempo and salt, which should
// identify the wrapped converter's parameters.
type CachingConverter struct {
	store Store
	conv  wsola.Converter
	salt  string
}

// NewCachingConverter wraps conv with store.
func NewCachingConverter(store Store, conv wsola.Converter, salt string) *CachingConverter {
	return &CachingConverter{store: store, conv: conv, salt: salt}
}

// Convert implements wsola.Converter.
func (c *CachingConverter) Convert(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error) {
	key := Key(src, tempo, c.salt)
	if data, ok := c.store.Get(key); ok {
		buf, err := DecodeBuffer(data)
		if err == nil {
			return buf, nil
		}
		log.Debug("Discarding unreadable stored chunk", "key", key, "err", err)
	}

	buf, err := c.conv.Convert(ctx, src, tempo)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(key, EncodeBuffer(buf)); err != nil {
		log.Debug("Could not store converted chunk", "key", key, "err", err)
	}
	return buf, nil
}

// Key derives the store key of converting src at tempo.
func Key(src *audio.Buffer, tempo float64, salt string) string {
	h := sha256.New()
	var hdr [20]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(src.SampleRate))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(src.Channels))
	binary.LittleEndian.PutUint64(hdr[8:], math.Float64bits(tempo))
	binary.LittleEndian.PutUint32(hdr[16:], uint32(len(salt)))
	h.Write(hdr[:])
	h.Write([]byte(salt))

	var b [4]byte
	for _, s := range src.Samples {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
		h.Write(b[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeBuffer serializes buf as a small header followed by little-endian
// float32 samples.
func EncodeBuffer(buf *audio.Buffer) []byte {
	var out bytes.Buffer
	out.Grow(12 + 4*len(buf.Samples))
	out.Write(blobMagic[:])
	_ = binary.Write(&out, binary.LittleEndian, uint32(buf.SampleRate))
	_ = binary.Write(&out, binary.LittleEndian, uint32(buf.Channels))
	_ = binary.Write(&out, binary.LittleEndian, buf.Samples)
	return out.Bytes()
}

// DecodeBuffer parses a blob written by EncodeBuffer.
func DecodeBuffer(data []byte) (*audio.Buffer, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != blobMagic {
		return nil, errBadBlob
	}
	var rate, channels uint32
	if err := binary.Read(r, binary.LittleEndian, &rate); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBlob, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &channels); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBlob, err)
	}
	if r.Len()%4 != 0 || channels == 0 || (r.Len()/4)%int(channels) != 0 {
		return nil, errBadBlob
	}

	buf := &audio.Buffer{
		SampleRate: int(rate),
		Channels:   int(channels),
		Samples:    make([]float32, r.Len()/4),
	}
	if err := binary.Read(r, binary.LittleEndian, buf.Samples); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBlob, err)
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBlob, err)
	}
	return buf, nil
}
