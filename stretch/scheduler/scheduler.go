// Package scheduler decides which chunks to convert next and runs the
// conversions on a bounded worker pool.
package scheduler

import (
	"sort"

	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch/chunk"
)

// Dispatcher accepts jobs for execution. Pool is the production
// implementation.
type Dispatcher interface {
	Submit(job Job) error
	Cancel(id uint64)
	Size() int
}

// Priority ranks chunk index relative to the chunk being played. Chunks
// ahead outrank chunks behind at equal distance, priority falls with
// distance in both directions and never reaches zero.
func Priority(center, index int) float64 {
	if index >= center {
		return 1 / float64(1+index-center)
	}
	return 0.5 / float64(1+center-index)
}

// Scheduler owns job bookkeeping for a chunk table. It is driven by the
// engine control loop and is not safe for concurrent use.
type Scheduler struct {
	partition   *chunk.Partition
	table       *chunk.Table
	pool        Dispatcher
	maxFailures int
	loop        bool

	jobs   map[int]uint64
	nextID uint64
}

// New creates a scheduler. maxFailures is the number of consecutive
// failures of one chunk that Fail reports as a bound crossing.
func New(p *chunk.Partition, t *chunk.Table, pool Dispatcher, maxFailures int) *Scheduler {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Scheduler{
		partition:   p,
		table:       t,
		pool:        pool,
		maxFailures: maxFailures,
		jobs:        make(map[int]uint64),
	}
}

// SetLoop ranks chunks near the start as if they followed the last one.
func (s *Scheduler) SetLoop(loop bool) { s.loop = loop }

func (s *Scheduler) priority(center, index int) float64 {
	p := Priority(center, index)
	if s.loop {
		p = max(p, Priority(center, index+s.table.Len()))
	}
	return p
}

type candidate struct {
	index    int
	priority float64
}

// Tick runs one scheduling pass. It ranks every chunk that needs
// conversion around center, then dispatches the best ranked chunks for
// which in reports true until the pool is full. It returns the dispatched
// indices.
func (s *Scheduler) Tick(center int, in func(index int) bool) []int {
	cands := make([]candidate, 0, s.table.Len())
	for i := 0; i < s.table.Len(); i++ {
		if !s.table.Status(i).NeedsConversion() {
			continue
		}
		if _, busy := s.jobs[i]; busy {
			continue
		}
		cands = append(cands, candidate{index: i, priority: s.priority(center, i)})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].priority != cands[b].priority {
			return cands[a].priority > cands[b].priority
		}
		return cands[a].index < cands[b].index
	})

	var dispatched []int
	for _, c := range cands {
		if len(s.jobs) >= s.pool.Size() {
			break
		}
		if !in(c.index) {
			continue
		}
		if !s.dispatch(c) {
			break
		}
		dispatched = append(dispatched, c.index)
	}
	return dispatched
}

func (s *Scheduler) dispatch(c candidate) bool {
	s.nextID++
	ch := s.partition.Chunk(c.index)
	job := Job{
		ID:       s.nextID,
		Index:    c.index,
		Start:    ch.Start,
		End:      ch.End,
		Tempo:    s.table.Tempo(),
		Priority: c.priority,
	}
	if err := s.pool.Submit(job); err != nil {
		log.Debug("Could not dispatch chunk", "chunk", c.index, "err", err)
		return false
	}
	s.jobs[c.index] = job.ID
	s.table.Set(c.index, chunk.Converting)
	return true
}

// Finish matches a completion against the tracked job. It returns false
// for stale results: cancelled jobs, superseded jobs or another tempo.
func (s *Scheduler) Finish(res Result) bool {
	id, ok := s.jobs[res.Index]
	if !ok || id != res.JobID || res.Tempo != s.table.Tempo() {
		return false
	}
	delete(s.jobs, res.Index)
	return true
}

// Fail records a failed conversion. It returns true each time the chunk
// accumulates maxFailures consecutive failures.
func (s *Scheduler) Fail(index int) bool {
	if s.table.MarkFailed(index) < s.maxFailures {
		return false
	}
	s.table.ResetFailures(index)
	return true
}

// Discard returns a finished chunk that could not be stored to pending.
func (s *Scheduler) Discard(index int) {
	s.table.Set(index, chunk.Pending)
}

// Cancel drops the in-flight job for index, if any.
func (s *Scheduler) Cancel(index int) {
	id, ok := s.jobs[index]
	if !ok {
		return
	}
	s.pool.Cancel(id)
	delete(s.jobs, index)
	if s.table.Status(index) == chunk.Converting {
		s.table.Set(index, chunk.Pending)
	}
}

// CancelOutside drops in-flight jobs for chunks for which in reports false.
func (s *Scheduler) CancelOutside(in func(index int) bool) []int {
	var cancelled []int
	for index := range s.jobs {
		if !in(index) {
			cancelled = append(cancelled, index)
		}
	}
	sort.Ints(cancelled)
	for _, index := range cancelled {
		s.Cancel(index)
	}
	return cancelled
}

// CancelAll drops every in-flight job.
func (s *Scheduler) CancelAll() {
	for index := range s.jobs {
		s.Cancel(index)
	}
}

// InFlight returns the number of tracked jobs.
func (s *Scheduler) InFlight() int { return len(s.jobs) }
