// Package stretch plays audio at a variable tempo without changing its
// pitch. The source is split into overlapping chunks that are converted on
// a worker pool around the playback position and played back to back with
// equal-power crossfades.
package stretch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/charmbracelet/stretch/internal/store"
	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/cache"
	"github.com/charmbracelet/stretch/stretch/chunk"
	"github.com/charmbracelet/stretch/stretch/player"
	"github.com/charmbracelet/stretch/stretch/scheduler"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	out    player.Output
	clock  clockwork.Clock
	conv   wsola.Converter
	logger *log.Logger
}

// WithOutput routes audio to out instead of the default device. The caller
// keeps ownership of out.
func WithOutput(out player.Output) Option {
	return func(o *options) { o.out = out }
}

// WithClock drives every timer from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithConverter replaces the WSOLA converter.
func WithConverter(conv wsola.Converter) Option {
	return func(o *options) { o.conv = conv }
}

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Engine is a time-stretching player. All state is owned by a single
// control loop goroutine; the exported methods hand work to it and wait.
type Engine struct {
	cfg   Config
	src   *audio.Buffer
	log   *log.Logger
	clock clockwork.Clock

	out        player.Output
	ownsOutput bool
	store      *store.DiskStore

	partition *chunk.Partition
	table     *chunk.Table
	pool      *scheduler.Pool
	sched     *scheduler.Scheduler
	cache     *cache.Window
	player    *player.Player
	phases    *PhaseMachine
	hub       *hub

	// Loop state.
	tempo          float64
	position       time.Duration // authoritative unless playing
	startAt        time.Duration
	intent         Phase // what buffering resolves to
	bufferingWhy   BufferingReason
	bufferingSince time.Time
	health         HealthLevel
	healthKnown    bool
	converted      []bool
	convertedCount int
	completeSent   bool
	lookaheadLog   rate.Sometimes

	lookahead  clockwork.Ticker
	timeupdate clockwork.Ticker

	cmds     chan func()
	done     chan struct{}
	wg       sync.WaitGroup
	disposed atomic.Bool

	finalMu sync.Mutex
	final   Status
}

// New creates an engine for src. Nothing is converted or played until
// Start.
func New(src *audio.Buffer, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = log.Default().WithPrefix("stretch")
	}

	partition, err := chunk.NewPartition(src.Duration(), cfg.ChunkDuration, cfg.OverlapDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	table := chunk.NewTable(partition.Len(), cfg.Tempo)
	window, err := cache.NewWindow(partition, table, cfg.BehindChunks, cfg.AheadChunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine{
		cfg:          cfg,
		src:          src,
		log:          o.logger,
		clock:        o.clock,
		partition:    partition,
		table:        table,
		cache:        window,
		phases:       NewPhaseMachine(),
		hub:          newHub(),
		tempo:        cfg.Tempo,
		startAt:      partition.Clamp(cfg.Offset),
		intent:       PhasePlaying,
		converted:    make([]bool, partition.Len()),
		lookaheadLog: rate.Sometimes{Interval: 5 * time.Second},
		cmds:         make(chan func()),
		done:         make(chan struct{}),
	}

	conv := o.conv
	if conv == nil {
		conv = wsola.New(cfg.WSOLA)
	}
	if cfg.Store.Enabled {
		e.store, err = store.NewDiskStore(cfg.Store.Dir, cfg.Store.Capacity, cfg.Store.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to open chunk store: %w", err)
		}
		salt := fmt.Sprintf("wsola/%v/%v", cfg.WSOLA.FrameDuration, cfg.WSOLA.SearchDuration)
		conv = store.NewCachingConverter(e.store, conv, salt)
	}

	e.out = o.out
	if e.out == nil {
		e.out, err = player.NewOutput(player.OutputAuto, src.SampleRate, src.Channels)
		if err != nil {
			e.closeStore()
			return nil, err
		}
		e.ownsOutput = true
	}

	e.pool, err = scheduler.NewPool(cfg.WorkerPoolSize, src, conv)
	if err != nil {
		e.closeStore()
		e.closeOutput()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.sched = scheduler.New(partition, table, e.pool, cfg.MaxConsecutiveFailures)
	e.sched.SetLoop(cfg.Loop)
	e.cache.SetLoop(cfg.Loop)
	e.phases.OnEnter(PhaseBuffering, e.onBufferingEnter)
	e.phases.OnExit(PhaseBuffering, e.onBufferingExit)
	e.player = player.New(e.out, e.clock, e.post, player.Options{
		Crossfade: cfg.CrossfadeDuration,
		Threshold: cfg.LookaheadThreshold,
	}, player.Callbacks{
		OnChunkEnded: e.onChunkEnded,
		OnNeedNext:   e.onNeedNext,
		OnTransition: e.onTransition,
	})

	e.log.Debug("Created engine",
		"duration", src.Duration(),
		"chunks", partition.Len(),
		"tempo", cfg.Tempo,
		"workers", cfg.WorkerPoolSize,
		"window", fmt.Sprintf("-%d/+%d", cfg.BehindChunks, cfg.AheadChunks))

	e.lookahead = e.clock.NewTicker(cfg.LookaheadInterval)
	e.timeupdate = e.clock.NewTicker(cfg.TimeUpdateInterval)
	e.wg.Add(1)
	go e.loop()
	return e, nil
}

// Subscribe returns a new event subscription.
func (e *Engine) Subscribe() *Subscription {
	return e.hub.subscribe()
}

// Duration returns the source duration.
func (e *Engine) Duration() time.Duration {
	return e.partition.Duration()
}

// Start begins buffering and plays once enough audio is ready.
func (e *Engine) Start() error {
	var err error
	e.do(func() {
		if phase := e.phases.Current(); phase != PhaseWaiting {
			err = fmt.Errorf("%w: cannot start while %s", ErrInvalidState, phase)
			return
		}
		e.position = e.startAt
		e.intent = PhasePlaying
		e.log.Info("Starting playback", "position", e.position, "tempo", e.tempo)
		e.enterBuffering(ReasonInitial)
		e.update()
	})
	return err
}

// Pause freezes the position. Pausing while buffering makes the engine
// resolve to paused once enough audio is ready.
func (e *Engine) Pause() {
	e.do(func() {
		switch e.phases.Current() {
		case PhasePlaying:
			e.freeze()
			e.player.Pause()
			e.transition(PhasePaused)
			e.evaluate()
		case PhaseBuffering:
			e.intent = PhasePaused
		}
	})
}

// Resume continues playback from the frozen position.
func (e *Engine) Resume() {
	e.do(func() {
		switch e.phases.Current() {
		case PhasePaused:
			e.intent = PhasePlaying
			if e.play(false) {
				e.transition(PhasePlaying)
			} else {
				e.enterBuffering(ReasonUnderrun)
			}
			e.update()
		case PhaseBuffering:
			e.intent = PhasePlaying
		}
	})
}

// Seek moves playback to position, clamped to the source.
func (e *Engine) Seek(position time.Duration) {
	e.do(func() {
		position = e.partition.Clamp(position)
		phase := e.phases.Current()

		switch phase {
		case PhaseEnded:
			return
		case PhaseWaiting:
			e.startAt = position
			e.position = position
			return
		}

		e.player.Pause()
		e.position = position
		e.syncWindow()
		e.log.Debug("Seek", "position", position, "phase", phase)

		switch phase {
		case PhasePlaying:
			if !e.play(true) {
				e.intent = PhasePlaying
				e.enterBuffering(ReasonSeek)
			}
		case PhasePaused:
			if e.cache.ChunkAt(position) != chunk.Ready {
				e.intent = PhasePaused
				e.enterBuffering(ReasonSeek)
			}
		}
		e.update()
	})
}

// Stop halts playback, drops all converted audio and returns the engine to
// the waiting phase at position zero.
func (e *Engine) Stop() {
	e.do(func() {
		e.player.Pause()
		e.sched.CancelAll()
		e.cache.Clear()
		e.table.Reset(e.tempo)
		e.resetConversion()
		e.position = 0
		e.startAt = 0
		e.intent = PhasePlaying
		e.healthKnown = false

		// Leaving buffering emits BufferedEvent.
		from := e.phases.Current()
		e.phases.Reset()
		if from != PhaseWaiting {
			e.hub.emit(PhaseEvent{From: from, To: PhaseWaiting})
		}
		e.log.Info("Stopped playback")
	})
}

// SetTempo changes the playback tempo. Converted audio at the old tempo is
// dropped and playback buffers until the position is reconverted.
func (e *Engine) SetTempo(tempo float64) error {
	if !ValidTempo(tempo) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, tempo)
	}
	e.do(func() {
		if tempo == e.tempo {
			return
		}
		phase := e.phases.Current()
		if phase == PhasePlaying {
			e.freeze()
		}
		e.player.Pause()
		e.sched.CancelAll()
		released := e.cache.InvalidateAll()
		e.table.Reset(tempo)
		e.log.Info("Tempo changed", "from", e.tempo, "to", tempo, "released", len(released))
		e.tempo = tempo
		e.resetConversion()

		if phase == PhasePlaying || phase == PhasePaused {
			e.intent = phase
			e.enterBuffering(ReasonTempoChange)
		}
		e.update()
	})
	return nil
}

// CurrentPosition returns the playback position in the source.
func (e *Engine) CurrentPosition() time.Duration {
	var pos time.Duration
	if !e.do(func() { pos = e.currentPosition() }) {
		return e.finalStatus().Playback.Position
	}
	return pos
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	var s Status
	if !e.do(func() { s = e.status() }) {
		return e.finalStatus()
	}
	return s
}

func (e *Engine) finalStatus() Status {
	e.finalMu.Lock()
	defer e.finalMu.Unlock()
	return e.final
}

// Dispose stops playback and releases every resource. Later calls on the
// engine are no-ops.
func (e *Engine) Dispose() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}

	ran := make(chan struct{})
	e.cmds <- func() {
		e.finalMu.Lock()
		e.final = e.status()
		e.finalMu.Unlock()
		e.phases.Reset()
		e.player.Dispose()
		e.sched.CancelAll()
		e.cache.Clear()
		close(ran)
	}
	<-ran
	close(e.done)
	e.wg.Wait()

	if err := e.pool.Close(); err != nil {
		e.log.Debug("Error closing worker pool", "err", err)
	}
	e.closeStore()
	e.closeOutput()
	e.hub.close()
	e.log.Debug("Disposed engine")
}

func (e *Engine) closeStore() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn("Error closing chunk store", "err", err)
	}
}

func (e *Engine) closeOutput() {
	if !e.ownsOutput || e.out == nil {
		return
	}
	if err := e.out.Close(); err != nil {
		e.log.Debug("Error closing audio output", "err", err)
	}
}

// do runs fn on the control loop and waits for it. It reports false when
// the engine is disposed.
func (e *Engine) do(fn func()) bool {
	if e.disposed.Load() {
		e.log.Debug("Ignoring call", "err", ErrDisposed)
		return false
	}
	ran := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(ran) }:
	case <-e.done:
		return false
	}
	<-ran
	return true
}

// post queues fn on the control loop without waiting. Timer callbacks use
// it, so it must never block its caller.
func (e *Engine) post(fn func()) {
	go func() {
		select {
		case e.cmds <- fn:
		case <-e.done:
		}
	}()
}

func (e *Engine) loop() {
	defer e.wg.Done()
	defer e.lookahead.Stop()
	defer e.timeupdate.Stop()

	for {
		select {
		case fn := <-e.cmds:
			fn()
		case res := <-e.pool.Results():
			e.handleResult(res)
		case <-e.lookahead.Chan():
			e.onLookahead()
		case <-e.timeupdate.Chan():
			if e.phases.Current() == PhasePlaying {
				e.hub.emit(ProgressEvent{Position: e.currentPosition()})
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) onLookahead() {
	phase := e.phases.Current()
	if phase == PhaseWaiting || phase == PhaseEnded {
		return
	}
	e.player.Tick()
	e.update()
	e.lookaheadLog.Do(func() {
		e.log.Debug("Lookahead",
			"phase", phase,
			"position", e.currentPosition(),
			"in_flight", e.sched.InFlight(),
			"cached", e.cache.Len(),
			"health", e.health,
			"output", e.player.Playing(),
			"next_scheduled", e.player.HasNext(),
			"remaining", e.player.Remaining())
	})
}

// update runs one scheduling pass: move the window, dispatch, then
// re-evaluate the phase.
func (e *Engine) update() {
	phase := e.phases.Current()
	if phase == PhaseWaiting || phase == PhaseEnded {
		return
	}
	e.syncWindow()
	if dispatched := e.sched.Tick(e.cache.Center(), e.cache.InWindow); len(dispatched) > 0 {
		e.log.Debug("Dispatched chunks", "chunks", dispatched, "tempo", e.tempo)
	}
	e.evaluate()
}

// syncWindow centers the cache on the position and drops work that fell
// outside of it.
func (e *Engine) syncWindow() {
	e.cache.SetCenter(e.partition.IndexAt(e.currentPosition()))
	if cancelled := e.sched.CancelOutside(e.cache.InWindow); len(cancelled) > 0 {
		e.log.Debug("Cancelled conversions outside the window", "chunks", cancelled)
	}
}

func (e *Engine) handleResult(res scheduler.Result) {
	if !e.sched.Finish(res) {
		e.log.Debug("Dropping stale conversion", "chunk", res.Index, "tempo", res.Tempo)
		return
	}

	if res.Err != nil {
		if e.sched.Fail(res.Index) {
			cerr := NewConversionError(res.Err, res.Index).
				WithAttempts(e.cfg.MaxConsecutiveFailures).
				WithTempo(res.Tempo)
			e.log.Error("Chunk keeps failing to convert", "chunk", res.Index, "err", cerr)
			e.hub.emit(ErrorEvent{ChunkIndex: res.Index, Err: cerr})
		} else {
			e.log.Warn("Chunk conversion failed", "chunk", res.Index, "err", res.Err)
		}
		// The next lookahead pass retries it.
		e.evaluate()
		return
	}

	if !e.cache.Store(res.Index, res.Buffer, res.Tempo) {
		e.sched.Discard(res.Index)
		e.log.Debug("Dropping conversion outside the window", "chunk", res.Index)
		e.update()
		return
	}

	e.hub.emit(ChunkReadyEvent{Index: res.Index})
	if !e.converted[res.Index] {
		e.converted[res.Index] = true
		e.convertedCount++
	}
	if e.convertedCount == len(e.converted) && !e.completeSent {
		e.completeSent = true
		e.log.Debug("All chunks converted", "tempo", e.tempo)
		e.hub.emit(CompleteEvent{})
	}

	e.player.Tick()
	e.update()
}

// evaluate classifies buffer health and moves in or out of buffering.
func (e *Engine) evaluate() {
	pos := e.currentPosition()
	sourceRun, end := e.cache.ReadyRunLength(pos)
	run := e.toOutput(sourceRun)

	level := e.cfg.Health.Classify(run, end)
	if !e.healthKnown || level != e.health {
		e.health = level
		e.healthKnown = true
		e.hub.emit(BufferHealthEvent{Level: level})
	}

	switch e.phases.Current() {
	case PhaseBuffering:
		if e.cfg.Buffering.CanExit(run, end) && e.cache.ChunkAt(pos) == chunk.Ready {
			e.exitBuffering()
		}
	case PhasePlaying:
		if e.cfg.Buffering.ShouldEnter(run, end) {
			e.enterBuffering(ReasonUnderrun)
		}
	}
}

func (e *Engine) enterBuffering(reason BufferingReason) {
	if e.phases.Current() == PhasePlaying {
		e.freeze()
	}
	e.player.Pause()
	if e.phases.Can(PhaseBuffering) {
		e.bufferingWhy = reason
	}
	e.transition(PhaseBuffering)
}

func (e *Engine) exitBuffering() {
	if e.intent == PhasePlaying && !e.play(false) {
		return
	}
	e.transition(e.intent)
}

func (e *Engine) onBufferingEnter(Phase) {
	e.bufferingSince = e.clock.Now()
	e.log.Debug("Buffering", "reason", e.bufferingWhy, "position", e.position)
	e.hub.emit(BufferingEvent{Reason: e.bufferingWhy})
}

// onBufferingExit runs on every way out of buffering, Stop and Dispose
// included.
func (e *Engine) onBufferingExit(to Phase) {
	stall := e.clock.Since(e.bufferingSince)
	e.log.Debug("Buffered", "stall", stall, "phase", to)
	e.hub.emit(BufferedEvent{StallDuration: stall})
}

func (e *Engine) transition(to Phase) bool {
	from := e.phases.Current()
	if !e.phases.Transition(to) {
		e.log.Debug("Ignoring phase transition", "from", from, "to", to)
		return false
	}
	e.hub.emit(PhaseEvent{From: from, To: to})
	return true
}

// play starts the player at the frozen position. It reports false when the
// chunk there is not ready.
func (e *Engine) play(seek bool) bool {
	index := e.partition.IndexAt(e.position)
	buf, ok := e.cache.Get(index)
	if !ok {
		return false
	}
	offset := e.toOutput(e.position - e.partition.Chunk(index).Start)

	start := e.player.PlayChunk
	if seek {
		start = e.player.HandleSeek
	}
	if err := start(index, buf, offset); err != nil {
		e.log.Error("Could not start playback", "chunk", index, "err", err)
		return false
	}
	return true
}

// freeze stores the live position so the player can be released.
func (e *Engine) freeze() {
	e.position = e.currentPosition()
}

func (e *Engine) currentPosition() time.Duration {
	if e.phases.Current() == PhasePlaying {
		if index, offset, ok := e.player.Elapsed(); ok {
			start := e.partition.Chunk(index).Start
			return e.partition.Clamp(start + e.toSource(offset))
		}
	}
	return e.position
}

// crossfade returns how far into the next chunk playback resumes and how
// long the boundary crossfade lasts, both in output time.
func (e *Engine) crossfade() (skip, fade time.Duration) {
	overlap := e.toOutput(e.partition.Overlap())
	fade = min(e.cfg.CrossfadeDuration, overlap)
	return overlap - fade, fade
}

func (e *Engine) onNeedNext(index int) {
	next := index + 1
	skip, fade := e.crossfade()
	if !e.partition.Valid(next) {
		if !e.cfg.Loop {
			return
		}
		// The first chunk has no overlap in front of it to skip.
		next, skip, fade = 0, 0, e.cfg.CrossfadeDuration
		e.log.Debug("Looping to start", "after", index)
	}
	buf, ok := e.cache.Get(next)
	if !ok {
		return
	}
	e.player.ScheduleNext(next, buf, skip, fade)
}

func (e *Engine) onTransition(index int) {
	e.log.Debug("Playing next chunk", "chunk", index)
	e.update()
}

func (e *Engine) onChunkEnded(index int) {
	if e.phases.Current() != PhasePlaying {
		return
	}

	if index == e.partition.Len()-1 {
		if e.cfg.Loop {
			// The first chunk was not ready in time to crossfade into.
			e.log.Debug("Looping to start without crossfade")
			e.position = 0
			e.syncWindow()
			if !e.play(false) {
				e.enterBuffering(ReasonUnderrun)
			}
			e.update()
			return
		}
		e.position = e.partition.Duration()
		e.transition(PhaseEnded)
		e.log.Info("Playback ended")
		e.hub.emit(EndedEvent{})
		return
	}

	// Nothing was scheduled in time; continue after this chunk's overlap.
	e.position = e.partition.Chunk(index).End
	e.syncWindow()
	if !e.play(false) {
		e.enterBuffering(ReasonUnderrun)
	}
	e.update()
}

func (e *Engine) resetConversion() {
	clear(e.converted)
	e.convertedCount = 0
	e.completeSent = false
}

func (e *Engine) status() Status {
	pos := e.currentPosition()
	sourceRun, end := e.cache.ReadyRunLength(pos)
	run := e.toOutput(sourceRun)
	stats := e.cache.Stats()

	total := len(e.converted)
	return Status{
		Phase: e.phases.Current(),
		Tempo: e.tempo,
		Conversion: ConversionStatus{
			Progress: float64(e.convertedCount) / float64(total),
			Ready:    e.table.Count(chunk.Ready),
			Total:    total,
			InFlight: e.sched.InFlight(),
			Queued:   e.pool.Queued(),
		},
		Buffer: BufferStatus{
			Health:         e.cfg.Health.Classify(run, end),
			ReadyRunLength: run,
			MemoryBytes:    stats.Bytes,
			Evictions:      stats.Evictions,
		},
		Playback: PlaybackStatus{
			Position: pos,
			Duration: e.partition.Duration(),
		},
	}
}

func (e *Engine) toOutput(d time.Duration) time.Duration {
	return time.Duration(float64(d) / e.tempo)
}

func (e *Engine) toSource(d time.Duration) time.Duration {
	return time.Duration(float64(d) * e.tempo)
}

// IsDisposed reports whether Dispose was called.
func (e *Engine) IsDisposed() bool {
	return e.disposed.Load()
}
