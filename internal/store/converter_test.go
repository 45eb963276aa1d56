package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

type memStore map[string][]byte

func (m memStore) Get(key string) ([]byte, bool) { v, ok := m[key]; return v, ok }

func (m memStore) Put(key string, value []byte) error { m[key] = value; return nil }

func ramp(frames int) *audio.Buffer {
	b := audio.New(8000, 2, frames)
	for i := range b.Samples {
		b.Samples[i] = float32(i%200)/100 - 1
	}
	return b
}

func TestEncodeDecodeBuffer(t *testing.T) {
	src := ramp(123)
	got, err := DecodeBuffer(EncodeBuffer(src))
	if err != nil {
		t.Fatal(err)
	}
	if got.SampleRate != src.SampleRate || got.Channels != src.Channels || len(got.Samples) != len(src.Samples) {
		t.Fatalf("decoded format = %d Hz x%d, %d samples", got.SampleRate, got.Channels, len(got.Samples))
	}
	for i := range src.Samples {
		if got.Samples[i] != src.Samples[i] {
			t.Fatalf("sample %d = %v, want %v", i, got.Samples[i], src.Samples[i])
		}
	}

	for _, bad := range [][]byte{nil, []byte("nope"), []byte("STR1\x40\x1f\x00\x00\x00\x00\x00\x00")} {
		if _, err := DecodeBuffer(bad); err == nil {
			t.Errorf("DecodeBuffer(%q) accepted a malformed blob", bad)
		}
	}
}

func TestKey(t *testing.T) {
	a := ramp(100)
	b := ramp(100)
	b.Samples[5] += 0.01

	if Key(a, 1.5, "x") != Key(ramp(100), 1.5, "x") {
		t.Error("equal inputs produced different keys")
	}
	if Key(a, 1.5, "x") == Key(b, 1.5, "x") {
		t.Error("different samples share a key")
	}
	if Key(a, 1.5, "x") == Key(a, 2, "x") {
		t.Error("different tempos share a key")
	}
	if Key(a, 1.5, "x") == Key(a, 1.5, "y") {
		t.Error("different salts share a key")
	}
}

func TestCachingConverter(t *testing.T) {
	var calls atomic.Int32
	inner := wsola.ConverterFunc(func(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error) {
		calls.Add(1)
		return wsola.New(wsola.Options{}).Convert(ctx, src, tempo)
	})
	conv := NewCachingConverter(memStore{}, inner, "wsola")

	src := ramp(4000)
	first, err := conv.Convert(context.Background(), src, 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := conv.Convert(context.Background(), src, 2)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("inner converter called %d times, want 1", calls.Load())
	}
	if second.Frames() != first.Frames() {
		t.Errorf("stored chunk has %d frames, want %d", second.Frames(), first.Frames())
	}

	if _, err := conv.Convert(context.Background(), src, 1.5); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Error("a new tempo was served from the store")
	}
}
