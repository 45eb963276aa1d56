// Package player plays converted chunks back to back, crossfading each
// boundary so the output has no gaps.
package player

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/charmbracelet/stretch/stretch/audio"
)

// Callbacks are invoked on the control loop.
type Callbacks struct {
	// OnChunkEnded fires when the current chunk finished and nothing was
	// scheduled after it.
	OnChunkEnded func(index int)

	// OnNeedNext fires on Tick while the current chunk is about to run out
	// and no next chunk is scheduled.
	OnNeedNext func(index int)

	// OnTransition fires once the next chunk has replaced the current one.
	OnTransition func(index int)
}

// Options configures a Player.
type Options struct {
	// Crossfade is the fade-in applied when playback starts cold.
	Crossfade time.Duration

	// Threshold is the remaining output time below which Tick asks for
	// the next chunk.
	Threshold time.Duration
}

// slot is one owned source. A slot is never reused once released.
type slot struct {
	index     int
	buf       *audio.Buffer
	src       Source
	offset    time.Duration // buffer offset at startedAt
	startedAt time.Time
	fade      time.Duration

	started bool // only meaningful for the next slot
	timer   clockwork.Timer
}

// Player keeps the current and next slots. All methods must be called from
// the control loop; timers post their work back through post.
type Player struct {
	out   Output
	clock clockwork.Clock
	post  func(func())
	opts  Options
	cb    Callbacks

	current *slot
	next    *slot
	endT    clockwork.Timer

	gen      uint64
	disposed bool
}

// New creates a player. post must run the given function on the control
// loop.
func New(out Output, clock clockwork.Clock, post func(func()), opts Options, cb Callbacks) *Player {
	return &Player{
		out:   out,
		clock: clock,
		post:  post,
		opts:  opts,
		cb:    cb,
	}
}

// PlayChunk starts buf immediately at offset with a fade-in, discarding
// both slots.
func (p *Player) PlayChunk(index int, buf *audio.Buffer, offset time.Duration) error {
	if p.disposed {
		return nil
	}
	p.release()

	offset = clampDuration(offset, 0, buf.Duration())
	src, err := p.out.NewSource(buf, offset, p.opts.Crossfade)
	if err != nil {
		return err
	}
	src.Play()

	p.current = &slot{
		index:     index,
		buf:       buf,
		src:       src,
		offset:    offset,
		startedAt: p.clock.Now(),
	}
	p.armEnd()

	log.Debug("Playing chunk", "chunk", index, "offset", offset)
	return nil
}

// HandleSeek restarts playback from index at offset. Any scheduled next
// chunk is discarded.
func (p *Player) HandleSeek(index int, buf *audio.Buffer, offset time.Duration) error {
	return p.PlayChunk(index, buf, offset)
}

// ScheduleNext arranges for buf to start crossfade before the current
// chunk ends, skipping its first skip of audio. It is a no-op when nothing
// is playing or a next chunk is already scheduled.
func (p *Player) ScheduleNext(index int, buf *audio.Buffer, skip, crossfade time.Duration) {
	if p.disposed || p.current == nil || p.next != nil {
		return
	}

	skip = clampDuration(skip, 0, buf.Duration())
	remaining := p.remaining()
	fade := min(crossfade, remaining, buf.Duration()-skip)
	fade = max(fade, 0)

	next := &slot{
		index:     index,
		buf:       buf,
		offset:    skip,
		fade:      fade,
		startedAt: p.clock.Now().Add(remaining - fade),
	}
	gen := p.gen
	next.timer = p.clock.AfterFunc(remaining-fade, func() {
		p.post(func() { p.startNext(gen) })
	})
	p.next = next
	p.current.src.FadeOut(p.current.buf.Duration()-fade, fade)

	log.Debug("Scheduled next chunk",
		"chunk", index,
		"after", p.current.index,
		"in", remaining-fade,
		"crossfade", fade)
}

func (p *Player) startNext(gen uint64) {
	if p.disposed || gen != p.gen || p.next == nil || p.next.started {
		return
	}
	next := p.next

	src, err := p.out.NewSource(next.buf, next.offset, next.fade)
	if err != nil {
		// Let the current chunk run out; the owner sees OnChunkEnded.
		log.Error("Could not start next chunk", "chunk", next.index, "err", err)
		p.next = nil
		return
	}
	src.Play()

	// Timing follows the scheduled start, not the moment the callback ran.
	next.src = src
	next.started = true
	late := max(p.clock.Since(next.startedAt), 0)
	next.timer = p.clock.AfterFunc(max(next.fade-late, 0), func() {
		p.post(func() { p.promote(gen) })
	})
}

func (p *Player) promote(gen uint64) {
	if p.disposed || gen != p.gen || p.next == nil || !p.next.started {
		return
	}

	if p.current != nil {
		p.closeSlot(p.current)
	}
	p.current = p.next
	p.current.timer = nil
	p.next = nil
	p.gen++
	p.armEnd()

	log.Debug("Transitioned to chunk", "chunk", p.current.index)
	if p.cb.OnTransition != nil {
		p.cb.OnTransition(p.current.index)
	}
}

func (p *Player) armEnd() {
	if p.endT != nil {
		p.endT.Stop()
	}
	gen := p.gen
	p.endT = p.clock.AfterFunc(p.remaining(), func() {
		p.post(func() { p.onEnd(gen) })
	})
}

func (p *Player) onEnd(gen uint64) {
	if p.disposed || gen != p.gen || p.current == nil {
		return
	}
	if p.next != nil {
		// The scheduled chunk takes over when its promotion fires.
		return
	}

	index := p.current.index
	p.release()
	log.Debug("Chunk ended with nothing scheduled", "chunk", index)
	if p.cb.OnChunkEnded != nil {
		p.cb.OnChunkEnded(index)
	}
}

// Tick is the periodic lookahead check.
func (p *Player) Tick() {
	if p.disposed || p.current == nil || p.next != nil {
		return
	}
	if p.remaining() < p.opts.Threshold && p.cb.OnNeedNext != nil {
		p.cb.OnNeedNext(p.current.index)
	}
}

// Pause records the current chunk and offset, then releases both slots.
// Resuming means calling PlayChunk again with the returned values.
func (p *Player) Pause() (index int, offset time.Duration, ok bool) {
	index, offset, ok = p.Elapsed()
	p.release()
	return index, offset, ok
}

// Elapsed returns the chunk being played and the offset into its buffer.
func (p *Player) Elapsed() (index int, offset time.Duration, ok bool) {
	if p.disposed || p.current == nil {
		return 0, 0, false
	}
	return p.current.index, p.elapsed(), true
}

// Playing reports whether a chunk is playing.
func (p *Player) Playing() bool {
	return !p.disposed && p.current != nil
}

// HasNext reports whether a next chunk is scheduled.
func (p *Player) HasNext() bool {
	return !p.disposed && p.next != nil
}

// Remaining returns the output time left in the current chunk.
func (p *Player) Remaining() time.Duration {
	if p.disposed || p.current == nil {
		return 0
	}
	return p.remaining()
}

// Dispose releases both slots and cancels every timer. Later calls are
// no-ops.
func (p *Player) Dispose() {
	if p.disposed {
		return
	}
	p.release()
	p.disposed = true
}

func (p *Player) elapsed() time.Duration {
	c := p.current
	return clampDuration(c.offset+p.clock.Since(c.startedAt), 0, c.buf.Duration())
}

func (p *Player) remaining() time.Duration {
	return p.current.buf.Duration() - p.elapsed()
}

// release drops both slots and invalidates pending timer callbacks.
func (p *Player) release() {
	p.gen++
	if p.endT != nil {
		p.endT.Stop()
		p.endT = nil
	}
	if p.next != nil {
		p.closeSlot(p.next)
		p.next = nil
	}
	if p.current != nil {
		p.closeSlot(p.current)
		p.current = nil
	}
}

func (p *Player) closeSlot(s *slot) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.src == nil {
		return
	}
	if err := s.src.Close(); err != nil {
		log.Debug("Error closing source", "chunk", s.index, "err", err)
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
