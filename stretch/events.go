package stretch

import (
	"sync"
	"time"
)

// Event is emitted by the engine. The concrete types below are the only
// implementations.
type Event interface {
	// Type returns the event name.
	Type() string
	isEvent()
}

// ProgressEvent reports the playback position every time update interval.
type ProgressEvent struct {
	Position time.Duration
}

// BufferHealthEvent reports a change of buffer health.
type BufferHealthEvent struct {
	Level HealthLevel
}

// BufferingEvent reports entering the buffering phase.
type BufferingEvent struct {
	Reason BufferingReason
}

// BufferedEvent reports leaving the buffering phase.
type BufferedEvent struct {
	StallDuration time.Duration
}

// StallDurationMs returns the stall duration in milliseconds.
func (e BufferedEvent) StallDurationMs() int64 {
	return e.StallDuration.Milliseconds()
}

// ChunkReadyEvent reports a converted chunk entering the cache.
type ChunkReadyEvent struct {
	Index int
}

// CompleteEvent reports that every chunk was converted at the current
// tempo at least once.
type CompleteEvent struct{}

// EndedEvent reports that playback reached the end of the source.
type EndedEvent struct{}

// ErrorEvent reports a chunk that keeps failing to convert. Err is a
// *ConversionError.
type ErrorEvent struct {
	ChunkIndex int
	Err        error
}

// PhaseEvent reports every phase transition.
type PhaseEvent struct {
	From Phase
	To   Phase
}

func (ProgressEvent) Type() string     { return "progress" }
func (BufferHealthEvent) Type() string { return "bufferhealth" }
func (BufferingEvent) Type() string    { return "buffering" }
func (BufferedEvent) Type() string     { return "buffered" }
func (ChunkReadyEvent) Type() string   { return "chunkready" }
func (CompleteEvent) Type() string     { return "complete" }
func (EndedEvent) Type() string        { return "ended" }
func (ErrorEvent) Type() string        { return "error" }
func (PhaseEvent) Type() string        { return "phase" }

func (ProgressEvent) isEvent()     {}
func (BufferHealthEvent) isEvent() {}
func (BufferingEvent) isEvent()    {}
func (BufferedEvent) isEvent()     {}
func (ChunkReadyEvent) isEvent()   {}
func (CompleteEvent) isEvent()     {}
func (EndedEvent) isEvent()        {}
func (ErrorEvent) isEvent()        {}
func (PhaseEvent) isEvent()        {}

// Subscription delivers events in emission order. Each subscription has
// its own unbounded mailbox, so a slow reader never blocks the engine and
// never loses events.
type Subscription struct {
	c       chan Event
	wake    chan struct{}
	abandon chan struct{}
	unsub   func(*Subscription)
	once    sync.Once

	mu      sync.Mutex
	queue   []Event
	closing bool
}

func newSubscription(unsub func(*Subscription)) *Subscription {
	s := &Subscription{
		c:       make(chan Event),
		wake:    make(chan struct{}, 1),
		abandon: make(chan struct{}),
		unsub:   unsub,
	}
	go s.run()
	return s
}

// C returns the event channel. It is closed after Unsubscribe, or once the
// remaining events were delivered after the engine was disposed.
func (s *Subscription) C() <-chan Event { return s.c }

// Unsubscribe stops delivery. Undelivered events are dropped.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.unsub != nil {
			s.unsub(s)
		}
		close(s.abandon)
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.notify()
}

// close ends the subscription once the mailbox drains.
func (s *Subscription) close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.c)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.abandon:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.c <- ev:
		case <-s.abandon:
			return
		}
	}
}

// hub fans events out to subscriptions.
type hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) subscribe() *Subscription {
	s := newSubscription(h.remove)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(ev)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.close()
		delete(h.subs, s)
	}
}
