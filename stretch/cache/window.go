// Package cache holds converted chunk buffers inside a sliding window
// around the playback position.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/chunk"
)

var (
	// ErrInvalidWindow is returned when the window cannot hold the chunk
	// being played and at least one chunk ahead of it.
	ErrInvalidWindow = errors.New("invalid cache window")
)

// Stats describes what the window currently holds.
type Stats struct {
	Chunks    int
	Bytes     int64
	Evictions int64
	Stored    int64
	Rejected  int64
}

// Window is the sole owner of converted buffers. Only chunks within
// [center-behind, center+ahead] are ever ready. When looping, the ahead
// side continues from the first chunk once it runs past the last one. It is driven by the engine
// control loop and is not safe for concurrent use.
type Window struct {
	partition *chunk.Partition
	table     *chunk.Table
	behind    int
	ahead     int
	center    int
	loop      bool
	buffers   map[int]*audio.Buffer
	stats     Stats
}

// NewWindow creates a window keeping behind chunks before and ahead chunks
// after the current one. ahead must exceed behind.
func NewWindow(p *chunk.Partition, t *chunk.Table, behind, ahead int) (*Window, error) {
	if ahead <= 0 {
		return nil, fmt.Errorf("%w: ahead chunks must be positive, got %d", ErrInvalidWindow, ahead)
	}
	if behind < 0 {
		return nil, fmt.Errorf("%w: behind chunks must not be negative, got %d", ErrInvalidWindow, behind)
	}
	if ahead <= behind {
		return nil, fmt.Errorf("%w: ahead chunks (%d) must exceed behind chunks (%d)", ErrInvalidWindow, ahead, behind)
	}
	return &Window{
		partition: p,
		table:     t,
		behind:    behind,
		ahead:     ahead,
		buffers:   make(map[int]*audio.Buffer),
	}, nil
}

// Center returns the chunk the window is centered on.
func (w *Window) Center() int { return w.center }

// Bounds returns the inclusive index range of the window, clamped to the
// partition.
func (w *Window) Bounds() (lo, hi int) {
	lo = max(0, w.center-w.behind)
	hi = min(w.partition.Len()-1, w.center+w.ahead)
	return lo, hi
}

// SetLoop makes the window wrap around the end of the source.
func (w *Window) SetLoop(loop bool) { w.loop = loop }

// InWindow reports whether index lies inside the window.
func (w *Window) InWindow(index int) bool {
	if !w.partition.Valid(index) {
		return false
	}
	lo, hi := w.Bounds()
	if index >= lo && index <= hi {
		return true
	}
	return w.loop && index < w.center+w.ahead-(w.partition.Len()-1)
}

// SetCenter moves the window and evicts ready chunks that fell outside.
// It returns the evicted indices.
func (w *Window) SetCenter(index int) []int {
	w.center = index

	var evicted []int
	for i := range w.buffers {
		if !w.InWindow(i) {
			evicted = append(evicted, i)
		}
	}
	for _, i := range evicted {
		delete(w.buffers, i)
		w.table.Set(i, chunk.Evicted)
		w.stats.Evictions++
	}
	if len(evicted) > 0 {
		log.Debug("Evicted chunks", "chunks", evicted, "center", index)
	}
	return evicted
}

// Store takes ownership of a converted buffer. Chunks outside the window
// are rejected and leave the window untouched.
func (w *Window) Store(index int, buf *audio.Buffer, tempo float64) bool {
	if !w.InWindow(index) {
		w.stats.Rejected++
		return false
	}
	w.buffers[index] = buf
	w.table.MarkReady(index, tempo)
	w.stats.Stored++
	return true
}

// Get returns the buffer of a ready chunk.
func (w *Window) Get(index int) (*audio.Buffer, bool) {
	buf, ok := w.buffers[index]
	return buf, ok
}

// Ready reports whether index holds a buffer.
func (w *Window) Ready(index int) bool {
	_, ok := w.buffers[index]
	return ok
}

// ChunkAt returns the status of the chunk containing position.
func (w *Window) ChunkAt(position time.Duration) chunk.Status {
	return w.table.Status(w.partition.IndexAt(position))
}

// ReadyRunLength returns the source time from position to the end of the
// contiguous run of ready chunks starting at the chunk containing
// position. The run stops at the first chunk that is not ready. The second
// result is true when the run reaches the end of the source. When looping
// the run continues from the first chunk, and only reaches the end once
// every chunk is ready.
func (w *Window) ReadyRunLength(position time.Duration) (time.Duration, bool) {
	position = w.partition.Clamp(position)
	first := w.partition.IndexAt(position)
	if !w.Ready(first) {
		return 0, false
	}

	last := first
	for last+1 < w.partition.Len() && w.Ready(last+1) {
		last++
	}
	if last == w.partition.Len()-1 {
		run := w.partition.Duration() - position
		if !w.loop {
			return run, true
		}
		wrapped := -1
		for wrapped+1 < first && w.Ready(wrapped+1) {
			wrapped++
		}
		if wrapped >= 0 {
			run += w.partition.NominalEnd(wrapped)
		}
		return run, wrapped == first-1
	}
	return w.partition.NominalEnd(last) - position, false
}

// InvalidateAll releases every buffer and returns the chunks to pending.
func (w *Window) InvalidateAll() []int {
	released := make([]int, 0, len(w.buffers))
	for i := range w.buffers {
		released = append(released, i)
		w.table.Set(i, chunk.Pending)
	}
	clear(w.buffers)
	return released
}

// Clear releases every buffer and recenters on the first chunk.
func (w *Window) Clear() {
	for i := range w.buffers {
		w.table.Set(i, chunk.Pending)
	}
	clear(w.buffers)
	w.center = 0
}

// Len returns the number of buffers held.
func (w *Window) Len() int { return len(w.buffers) }

// MemoryBytes returns the size of the buffers held.
func (w *Window) MemoryBytes() int64 {
	var n int64
	for _, buf := range w.buffers {
		n += buf.Bytes()
	}
	return n
}

// Stats returns window statistics.
func (w *Window) Stats() Stats {
	s := w.stats
	s.Chunks = len(w.buffers)
	s.Bytes = w.MemoryBytes()
	return s
}
