package stretch

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/player"
)

const (
	waitFor = 3 * time.Second
	poll    = 5 * time.Millisecond
)

var errConvert = errors.New("converter exploded")

// testConverter returns silence of the stretched length. The chunk index is
// read back from the first sample of the slice, see testSource.
type testConverter struct {
	mu         sync.Mutex
	indexGates map[int]chan struct{}
	tempoGates map[float64]chan struct{}
	failing    map[int]bool
	attempts   map[int]int
}

func newTestConverter() *testConverter {
	return &testConverter{
		indexGates: make(map[int]chan struct{}),
		tempoGates: make(map[float64]chan struct{}),
		failing:    make(map[int]bool),
		attempts:   make(map[int]int),
	}
}

func (c *testConverter) Convert(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error) {
	index := int(math.Round(float64(src.Samples[0]) * 100))

	c.mu.Lock()
	c.attempts[index]++
	gates := []chan struct{}{c.indexGates[index], c.tempoGates[tempo]}
	fail := c.failing[index]
	c.mu.Unlock()

	for _, gate := range gates {
		if gate == nil {
			continue
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errConvert
	}
	frames := int(math.Round(float64(src.Frames()) / tempo))
	return audio.New(src.SampleRate, src.Channels, frames), nil
}

func (c *testConverter) gateIndex(index int) func() {
	gate := make(chan struct{})
	c.mu.Lock()
	c.indexGates[index] = gate
	c.mu.Unlock()
	return func() { close(gate) }
}

func (c *testConverter) gateTempo(tempo float64) func() {
	gate := make(chan struct{})
	c.mu.Lock()
	c.tempoGates[tempo] = gate
	c.mu.Unlock()
	return func() { close(gate) }
}

func (c *testConverter) fail(index int) {
	c.mu.Lock()
	c.failing[index] = true
	c.mu.Unlock()
}

func (c *testConverter) attemptsOf(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[index]
}

// testSource is mono at 1kHz. Every sample holds its second divided by 100
// so a chunk slice tells which chunk it is.
func testSource(seconds int) *audio.Buffer {
	b := audio.New(1000, 1, seconds*1000)
	for f := range b.Samples {
		b.Samples[f] = float32(f/1000) / 100
	}
	return b
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkDuration = time.Second
	cfg.OverlapDuration = 100 * time.Millisecond
	cfg.CrossfadeDuration = 50 * time.Millisecond
	cfg.AheadChunks = 2
	cfg.BehindChunks = 1
	cfg.WorkerPoolSize = 2
	cfg.LookaheadInterval = 100 * time.Millisecond
	cfg.TimeUpdateInterval = 250 * time.Millisecond
	cfg.LookaheadThreshold = 300 * time.Millisecond
	cfg.Buffering = BufferingThresholds{Enter: 200 * time.Millisecond, Exit: time.Second}
	cfg.Health = HealthThresholds{
		Critical: 100 * time.Millisecond,
		Low:      500 * time.Millisecond,
		Healthy:  2 * time.Second,
	}
	cfg.Store.Enabled = false
	return cfg
}

type fixture struct {
	engine *Engine
	clock  *clockwork.FakeClock
	conv   *testConverter
	out    *player.MockOutput
	events *recorder
}

func newFixture(t *testing.T, seconds int, tweak func(*Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	if tweak != nil {
		tweak(&cfg)
	}

	f := &fixture{
		clock: clockwork.NewFakeClock(),
		conv:  newTestConverter(),
		out:   player.NewMockOutput(1000, 1),
	}
	e, err := New(testSource(seconds), cfg,
		WithClock(f.clock),
		WithConverter(f.conv),
		WithOutput(f.out),
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(e.Dispose)

	f.engine = e
	f.events = record(e.Subscribe())
	return f
}

func (f *fixture) waitPhase(t *testing.T, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.engine.Status().Phase == phase
	}, waitFor, poll, "engine never reached %s", phase)
}

// run advances the clock in small steps until cond holds.
func (f *fixture) run(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		f.clock.Advance(20 * time.Millisecond)
		return false
	}, 10*time.Second, time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(sub *Subscription) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for ev := range sub.C() {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[T Event](r *recorder) []T {
	var out []T
	for _, ev := range r.all() {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestEngineStart(t *testing.T) {
	f := newFixture(t, 10, nil)
	assert.Equal(t, PhaseWaiting, f.engine.Status().Phase)
	assert.Equal(t, 10*time.Second, f.engine.Duration())

	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	err := f.engine.Start()
	assert.ErrorIs(t, err, ErrInvalidState)

	require.Eventually(t, func() bool {
		return len(eventsOf[PhaseEvent](f.events)) >= 2
	}, waitFor, poll)
	phases := eventsOf[PhaseEvent](f.events)
	assert.Equal(t, PhaseEvent{From: PhaseWaiting, To: PhaseBuffering}, phases[0])
	assert.Equal(t, PhaseEvent{From: PhaseBuffering, To: PhasePlaying}, phases[1])

	buffering := eventsOf[BufferingEvent](f.events)
	require.NotEmpty(t, buffering)
	assert.Equal(t, ReasonInitial, buffering[0].Reason)

	// A chunk is reported ready before playback starts.
	var sawReady bool
	for _, ev := range f.events.all() {
		if _, ok := ev.(ChunkReadyEvent); ok {
			sawReady = true
		}
		if pe, ok := ev.(PhaseEvent); ok && pe.To == PhasePlaying {
			break
		}
	}
	assert.True(t, sawReady, "no chunkready before playing")

	f.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, f.engine.CurrentPosition())

	src := f.out.Last()
	require.NotNil(t, src)
	assert.Equal(t, 50*time.Millisecond, src.FadeIn)
}

func TestEngineStartOffset(t *testing.T) {
	f := newFixture(t, 10, func(c *Config) { c.Offset = 4500 * time.Millisecond })
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, 4500*time.Millisecond, f.engine.CurrentPosition())

	src := f.out.Last()
	require.NotNil(t, src)
	assert.Equal(t, 500*time.Millisecond, src.Offset)
}

func TestEngineTempoChange(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	f.clock.Advance(300 * time.Millisecond)

	release := f.conv.gateTempo(2)
	require.NoError(t, f.engine.SetTempo(2))

	st := f.engine.Status()
	assert.Equal(t, PhaseBuffering, st.Phase)
	assert.Equal(t, 2.0, st.Tempo)
	assert.Equal(t, 0, st.Conversion.Ready)
	assert.Equal(t, 300*time.Millisecond, st.Playback.Position)
	assert.Empty(t, f.out.Playing())

	require.Eventually(t, func() bool {
		for _, ev := range eventsOf[BufferingEvent](f.events) {
			if ev.Reason == ReasonTempoChange {
				return true
			}
		}
		return false
	}, waitFor, poll)

	release()
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, 300*time.Millisecond, f.engine.CurrentPosition())

	src := f.out.Last()
	require.NotNil(t, src)
	assert.Equal(t, 150*time.Millisecond, src.Offset, "offset is in output time")

	// Output time runs at half the source rate.
	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, f.engine.CurrentPosition())
}

func TestEngineTempoChangeWhilePaused(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	f.engine.Pause()

	release := f.conv.gateTempo(1.5)
	require.NoError(t, f.engine.SetTempo(1.5))
	assert.Equal(t, PhaseBuffering, f.engine.Status().Phase)

	// Buffering resolves to the phase the user asked for.
	release()
	f.waitPhase(t, PhasePaused)
	assert.Empty(t, f.out.Playing())
}

func TestEngineInvalidTempo(t *testing.T) {
	f := newFixture(t, 10, nil)
	for _, tempo := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, f.engine.SetTempo(tempo), ErrInvalidTempo, "tempo %v", tempo)
	}
	assert.Equal(t, 1.0, f.engine.Status().Tempo)
}

func TestEngineSeekNotReady(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	release := f.conv.gateIndex(7)
	f.engine.Seek(7 * time.Second)

	assert.Equal(t, 7*time.Second, f.engine.CurrentPosition())
	assert.Equal(t, PhaseBuffering, f.engine.Status().Phase)
	require.Eventually(t, func() bool {
		for _, ev := range eventsOf[BufferingEvent](f.events) {
			if ev.Reason == ReasonSeek {
				return true
			}
		}
		return false
	}, waitFor, poll)

	release()
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, 7*time.Second, f.engine.CurrentPosition())
}

func TestEngineSeekReady(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	require.Eventually(t, func() bool {
		return f.engine.Status().Conversion.Ready == 3
	}, waitFor, poll)

	f.engine.Seek(1500 * time.Millisecond)
	assert.Equal(t, PhasePlaying, f.engine.Status().Phase)
	assert.Equal(t, 1500*time.Millisecond, f.engine.CurrentPosition())

	src := f.out.Last()
	require.NotNil(t, src)
	assert.Equal(t, 500*time.Millisecond, src.Offset)
	assert.Len(t, f.out.Playing(), 1)
}

func TestEngineSeekClamps(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.engine.Seek(-time.Second)
	assert.Equal(t, time.Duration(0), f.engine.CurrentPosition())
	f.engine.Seek(time.Minute)
	assert.Equal(t, 10*time.Second, f.engine.CurrentPosition())
}

func TestEngineSeekWhileWaiting(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.engine.Seek(3 * time.Second)
	assert.Equal(t, PhaseWaiting, f.engine.Status().Phase)
	assert.Equal(t, 3*time.Second, f.engine.CurrentPosition())

	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, 3*time.Second, f.engine.CurrentPosition())
}

func TestEnginePauseResume(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	f.clock.Advance(200 * time.Millisecond)

	f.engine.Pause()
	assert.Equal(t, PhasePaused, f.engine.Status().Phase)
	assert.Empty(t, f.out.Playing())

	f.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, f.engine.CurrentPosition())

	f.engine.Resume()
	assert.Equal(t, PhasePlaying, f.engine.Status().Phase)
	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, f.engine.CurrentPosition())
}

func TestEnginePauseWhileBuffering(t *testing.T) {
	f := newFixture(t, 10, nil)
	release := f.conv.gateIndex(0)
	require.NoError(t, f.engine.Start())
	f.engine.Pause()
	assert.Equal(t, PhaseBuffering, f.engine.Status().Phase)

	release()
	f.waitPhase(t, PhasePaused)
	assert.Empty(t, f.out.Playing())

	require.Eventually(t, func() bool {
		return len(eventsOf[BufferedEvent](f.events)) == 1
	}, waitFor, poll)
}

func TestEngineBufferingHysteresis(t *testing.T) {
	f := newFixture(t, 10, func(c *Config) { c.Offset = 1500 * time.Millisecond })
	release := f.conv.gateIndex(2)
	require.NoError(t, f.engine.Start())

	// Chunks 0, 1 and 3 convert; the run at 1.5s stops at chunk 2 and
	// holds 500ms, above the entry threshold but short of the exit one.
	f.run(t, func() bool {
		return f.engine.Status().Conversion.Ready == 3
	})
	for i := 0; i < 10; i++ {
		f.clock.Advance(100 * time.Millisecond)
	}
	st := f.engine.Status()
	assert.Equal(t, PhaseBuffering, st.Phase)
	assert.Equal(t, 500*time.Millisecond, st.Buffer.ReadyRunLength)
	assert.Empty(t, eventsOf[BufferedEvent](f.events))
	assert.Len(t, eventsOf[PhaseEvent](f.events), 1)

	release()
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, 1500*time.Millisecond, f.engine.CurrentPosition())
	require.Eventually(t, func() bool {
		return len(eventsOf[BufferedEvent](f.events)) == 1
	}, waitFor, poll)
}

func TestEngineConversionFailure(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.conv.fail(0)
	require.NoError(t, f.engine.Start())

	f.run(t, func() bool {
		return len(eventsOf[ErrorEvent](f.events)) > 0
	})

	ev := eventsOf[ErrorEvent](f.events)[0]
	assert.Equal(t, 0, ev.ChunkIndex)
	assert.ErrorIs(t, ev.Err, ErrConversionFailed)
	assert.ErrorIs(t, ev.Err, errConvert)

	var cerr *ConversionError
	require.ErrorAs(t, ev.Err, &cerr)
	assert.Equal(t, 0, cerr.ChunkIndex)
	assert.Equal(t, 3, cerr.Attempts)

	assert.GreaterOrEqual(t, f.conv.attemptsOf(0), 3)
	assert.Equal(t, PhaseBuffering, f.engine.Status().Phase)
}

func TestEngineEnded(t *testing.T) {
	f := newFixture(t, 2, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	f.run(t, func() bool {
		return f.engine.Status().Phase == PhaseEnded
	})
	assert.Equal(t, 2*time.Second, f.engine.CurrentPosition())
	assert.Empty(t, f.out.Playing())

	require.Eventually(t, func() bool {
		return len(eventsOf[EndedEvent](f.events)) == 1
	}, waitFor, poll)

	// Ended is terminal until Stop.
	f.engine.Resume()
	f.engine.Seek(0)
	assert.Equal(t, PhaseEnded, f.engine.Status().Phase)
}

func TestEngineLoop(t *testing.T) {
	f := newFixture(t, 2, func(c *Config) { c.Loop = true })
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	var late bool
	f.run(t, func() bool {
		pos := f.engine.CurrentPosition()
		if pos > 1500*time.Millisecond {
			late = true
		}
		return late && pos < 500*time.Millisecond
	})
	assert.NotEqual(t, PhaseEnded, f.engine.Status().Phase)
	assert.Empty(t, eventsOf[EndedEvent](f.events))
}

func TestEngineLoopCrossfadesIntoStart(t *testing.T) {
	f := newFixture(t, 10, func(c *Config) {
		c.Loop = true
		c.Offset = 8500 * time.Millisecond
	})
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	var late bool
	f.run(t, func() bool {
		pos := f.engine.CurrentPosition()
		if pos > 9500*time.Millisecond {
			late = true
		}
		return late && pos > 200*time.Millisecond && pos < time.Second
	})
	assert.Equal(t, PhasePlaying, f.engine.Status().Phase)

	// Only the initial buffering; the wrap never stalls.
	buffering := eventsOf[BufferingEvent](f.events)
	require.Len(t, buffering, 1)
	assert.Equal(t, ReasonInitial, buffering[0].Reason)

	src := f.out.Last()
	require.NotNil(t, src)
	assert.Equal(t, time.Duration(0), src.Offset)
	assert.Equal(t, 50*time.Millisecond, src.FadeIn)
}

func TestEngineLoopUnderrun(t *testing.T) {
	f := newFixture(t, 10, func(c *Config) {
		c.Loop = true
		c.Offset = 6500 * time.Millisecond
	})
	release := f.conv.gateIndex(0)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	f.run(t, func() bool {
		return f.engine.Status().Phase == PhaseBuffering
	})
	for _, ev := range eventsOf[BufferingEvent](f.events)[1:] {
		assert.Equal(t, ReasonUnderrun, ev.Reason)
	}

	release()
	f.run(t, func() bool {
		pos := f.engine.CurrentPosition()
		return f.engine.Status().Phase == PhasePlaying && pos > 0 && pos < time.Second
	})
	assert.Empty(t, eventsOf[EndedEvent](f.events))
}

func TestEngineCompleteOncePerTempo(t *testing.T) {
	f := newFixture(t, 2, nil)
	require.NoError(t, f.engine.Start())
	require.Eventually(t, func() bool {
		return len(eventsOf[CompleteEvent](f.events)) == 1
	}, waitFor, poll)
	assert.Equal(t, 1.0, f.engine.Status().Conversion.Progress)

	f.engine.Seek(500 * time.Millisecond)
	require.NoError(t, f.engine.SetTempo(1.5))
	require.Eventually(t, func() bool {
		return len(eventsOf[CompleteEvent](f.events)) == 2
	}, waitFor, poll)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, eventsOf[CompleteEvent](f.events), 2)
}

func TestEngineStop(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	f.clock.Advance(400 * time.Millisecond)

	f.engine.Stop()
	st := f.engine.Status()
	assert.Equal(t, PhaseWaiting, st.Phase)
	assert.Equal(t, 0, st.Conversion.Ready)
	assert.Equal(t, time.Duration(0), st.Playback.Position)
	assert.Empty(t, f.out.Playing())

	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	assert.Equal(t, time.Duration(0), f.engine.CurrentPosition())
}

func TestEngineStopWhileBuffering(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.conv.gateIndex(0)
	require.NoError(t, f.engine.Start())
	assert.Equal(t, PhaseBuffering, f.engine.Status().Phase)

	f.clock.Advance(300 * time.Millisecond)
	f.engine.Stop()

	// The phase change follows the buffered event.
	require.Eventually(t, func() bool {
		phases := eventsOf[PhaseEvent](f.events)
		return len(phases) == 2 && phases[1] == PhaseEvent{From: PhaseBuffering, To: PhaseWaiting}
	}, waitFor, poll)
	buffered := eventsOf[BufferedEvent](f.events)
	require.Len(t, buffered, 1)
	assert.Equal(t, 300*time.Millisecond, buffered[0].StallDuration)
}

func TestEngineDisposeWhileBuffering(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.conv.gateIndex(0)
	require.NoError(t, f.engine.Start())

	f.engine.Dispose()
	select {
	case <-f.events.done:
	case <-time.After(waitFor):
		t.Fatal("subscription not closed after dispose")
	}
	assert.Len(t, eventsOf[BufferedEvent](f.events), 1)
}

func TestEngineProgressEvents(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	f.clock.Advance(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(eventsOf[ProgressEvent](f.events)) > 0
	}, waitFor, poll)
	assert.Equal(t, 250*time.Millisecond, eventsOf[ProgressEvent](f.events)[0].Position)
}

func TestEngineHealthEvents(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)
	require.Eventually(t, func() bool {
		return f.engine.Status().Buffer.Health == HealthHealthy
	}, waitFor, poll)

	levels := eventsOf[BufferHealthEvent](f.events)
	require.NotEmpty(t, levels)
	assert.Equal(t, HealthEmpty, levels[0].Level)
	for i := 1; i < len(levels); i++ {
		assert.NotEqual(t, levels[i-1].Level, levels[i].Level, "repeated health level")
	}
}

func TestEngineStatus(t *testing.T) {
	f := newFixture(t, 10, nil)
	st := f.engine.Status()
	assert.Equal(t, PhaseWaiting, st.Phase)
	assert.Equal(t, 10, st.Conversion.Total)
	assert.Equal(t, 10*time.Second, st.Playback.Duration)

	require.NoError(t, f.engine.Start())
	require.Eventually(t, func() bool {
		return f.engine.Status().Conversion.Ready == 3
	}, waitFor, poll)

	st = f.engine.Status()
	assert.InDelta(t, 0.3, st.Conversion.Progress, 1e-9)
	assert.Equal(t, 3*time.Second, st.Buffer.ReadyRunLength)
	assert.Positive(t, st.Buffer.MemoryBytes)
	assert.Zero(t, st.Conversion.InFlight)
	assert.Zero(t, st.Conversion.Queued)
	assert.Zero(t, st.Buffer.Evictions)

	// Moving the window away drops everything converted so far.
	release5, release6 := f.conv.gateIndex(5), f.conv.gateIndex(6)
	defer release5()
	defer release6()
	f.engine.Seek(5500 * time.Millisecond)
	st = f.engine.Status()
	assert.Equal(t, int64(3), st.Buffer.Evictions)
	assert.Equal(t, 2, st.Conversion.InFlight)
}

func TestEngineDispose(t *testing.T) {
	f := newFixture(t, 10, nil)
	require.NoError(t, f.engine.Start())
	f.waitPhase(t, PhasePlaying)

	f.engine.Dispose()
	f.engine.Dispose()
	assert.True(t, f.engine.IsDisposed())
	assert.Empty(t, f.out.Playing())

	select {
	case <-f.events.done:
	case <-time.After(waitFor):
		t.Fatal("subscription not closed after dispose")
	}

	// Later calls are no-ops.
	assert.NoError(t, f.engine.Start())
	assert.NoError(t, f.engine.SetTempo(2))
	f.engine.Seek(time.Second)
	f.engine.Pause()
	f.engine.Resume()
	f.engine.Stop()

	st := f.engine.Status()
	assert.Equal(t, PhasePlaying, st.Phase)
	assert.Equal(t, 1.0, st.Tempo)
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name  string
		src   *audio.Buffer
		tweak func(*Config)
	}{
		{"no workers", testSource(1), func(c *Config) { c.WorkerPoolSize = 0 }},
		{"no lookahead window", testSource(1), func(c *Config) { c.AheadChunks = 0 }},
		{"bad tempo", testSource(1), func(c *Config) { c.Tempo = 0 }},
		{"overlap too long", testSource(1), func(c *Config) { c.OverlapDuration = 2 * time.Second }},
		{"empty source", audio.New(1000, 1, 0), nil},
		{"bad format", &audio.Buffer{SampleRate: 0, Channels: 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.tweak != nil {
				tt.tweak(&cfg)
			}
			_, err := New(tt.src, cfg, WithOutput(player.NewMockOutput(1000, 1)))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
