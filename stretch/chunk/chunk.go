// Package chunk describes how source audio is partitioned into overlapping
// chunks and tracks the conversion state of each chunk.
package chunk

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySource is returned when partitioning a zero length source.
	ErrEmptySource = errors.New("source has no audio")

	// ErrInvalidPartition is returned for non-positive chunk sizes or an
	// overlap that does not fit inside a chunk.
	ErrInvalidPartition = errors.New("invalid chunk partition")
)

// Status is the conversion state of a chunk.
type Status int

const (
	// Pending chunks are waiting to be converted.
	Pending Status = iota
	// Converting chunks have an in-flight job and no buffer yet.
	Converting
	// Ready chunks have a converted buffer held by the cache.
	Ready
	// Evicted chunks were converted once and released by the cache.
	Evicted
	// Failed chunks had their last conversion attempt fail.
	Failed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Converting:
		return "converting"
	case Ready:
		return "ready"
	case Evicted:
		return "evicted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NeedsConversion reports whether a chunk in this state is eligible for
// dispatch.
func (s Status) NeedsConversion() bool {
	return s == Pending || s == Evicted || s == Failed
}

// Chunk is one slice of the source in source time. End includes the
// overlap into the following chunk.
type Chunk struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Duration returns the source length covered by the chunk.
func (c Chunk) Duration() time.Duration {
	return c.End - c.Start
}

// Partition is the immutable chunk layout of a source.
type Partition struct {
	chunks  []Chunk
	total   time.Duration
	size    time.Duration
	overlap time.Duration
}

// NewPartition splits a source of length total into chunks of size,
// each extended by overlap into its successor. A tail shorter than the
// overlap is folded into the previous chunk.
func NewPartition(total, size, overlap time.Duration) (*Partition, error) {
	if total <= 0 {
		return nil, ErrEmptySource
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk duration %v", ErrInvalidPartition, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %v must be in [0, %v)", ErrInvalidPartition, overlap, size)
	}

	n := int(total / size)
	if rem := total % size; rem > 0 && (rem > overlap || n == 0) {
		n++
	}
	if n == 0 {
		n = 1
	}

	p := &Partition{
		chunks:  make([]Chunk, n),
		total:   total,
		size:    size,
		overlap: overlap,
	}
	for i := range p.chunks {
		start := time.Duration(i) * size
		end := start + size + overlap
		if i == n-1 || end > total {
			end = total
		}
		p.chunks[i] = Chunk{Index: i, Start: start, End: end}
	}
	return p, nil
}

// Len returns the number of chunks.
func (p *Partition) Len() int { return len(p.chunks) }

// Chunk returns chunk i.
func (p *Partition) Chunk(i int) Chunk { return p.chunks[i] }

// Duration returns the source length.
func (p *Partition) Duration() time.Duration { return p.total }

// Size returns the nominal chunk length.
func (p *Partition) Size() time.Duration { return p.size }

// Overlap returns the overlap between neighbours.
func (p *Partition) Overlap() time.Duration { return p.overlap }

// Valid reports whether i is a chunk index.
func (p *Partition) Valid(i int) bool { return i >= 0 && i < len(p.chunks) }

// IndexAt returns the chunk whose nominal range contains position.
// Positions outside the source are clamped.
func (p *Partition) IndexAt(position time.Duration) int {
	if position <= 0 {
		return 0
	}
	i := int(position / p.size)
	if i >= len(p.chunks) {
		i = len(p.chunks) - 1
	}
	return i
}

// NominalEnd returns where chunk i hands over to chunk i+1, or the end of
// the source for the last chunk.
func (p *Partition) NominalEnd(i int) time.Duration {
	if i >= len(p.chunks)-1 {
		return p.total
	}
	return time.Duration(i+1) * p.size
}

// Clamp limits position to [0, Duration()].
func (p *Partition) Clamp(position time.Duration) time.Duration {
	if position < 0 {
		return 0
	}
	if position > p.total {
		return p.total
	}
	return position
}
