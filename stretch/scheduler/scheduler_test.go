package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/stretch/stretch/chunk"
)

type fakeDispatcher struct {
	size      int
	submitted []Job
	cancelled []uint64
	err       error
}

func (f *fakeDispatcher) Submit(job Job) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, job)
	return nil
}

func (f *fakeDispatcher) Cancel(id uint64) { f.cancelled = append(f.cancelled, id) }
func (f *fakeDispatcher) Size() int        { return f.size }

func newTestScheduler(t *testing.T, chunks, workers, maxFailures int) (*Scheduler, *chunk.Table, *fakeDispatcher) {
	t.Helper()
	p, err := chunk.NewPartition(time.Duration(chunks)*time.Second, time.Second, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	tbl := chunk.NewTable(p.Len(), 1.0)
	d := &fakeDispatcher{size: workers}
	return New(p, tbl, d, maxFailures), tbl, d
}

// span reports membership of the inclusive range [lo, hi].
func span(lo, hi int) func(int) bool {
	return func(i int) bool { return i >= lo && i <= hi }
}

func TestPriority(t *testing.T) {
	const center = 10

	// Ahead beats behind at equal distance.
	for d := 1; d < 8; d++ {
		if Priority(center, center+d) <= Priority(center, center-d) {
			t.Errorf("distance %d: ahead %.3f should outrank behind %.3f",
				d, Priority(center, center+d), Priority(center, center-d))
		}
	}

	// Monotone decreasing in both directions and never zero.
	for d := 0; d < 8; d++ {
		if Priority(center, center+d+1) >= Priority(center, center+d) {
			t.Errorf("ahead priority not decreasing at distance %d", d)
		}
	}
	for d := 1; d < center; d++ {
		if Priority(center, center-d-1) >= Priority(center, center-d) {
			t.Errorf("behind priority not decreasing at distance %d", d)
		}
		if Priority(center, center-d) <= 0 {
			t.Errorf("behind priority reached zero at distance %d", d)
		}
	}
}

func TestTickDispatchOrder(t *testing.T) {
	s, tbl, d := newTestScheduler(t, 10, 3, 3)

	got := s.Tick(4, span(3, 7))
	want := []int{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Tick() dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tick()[%d] = %d, want %d", i, got[i], want[i])
		}
		if tbl.Status(want[i]) != chunk.Converting {
			t.Errorf("chunk %d status = %v, want converting", want[i], tbl.Status(want[i]))
		}
	}
	if d.submitted[0].Start != 4*time.Second {
		t.Errorf("job start = %v, want 4s", d.submitted[0].Start)
	}

	// The pool is full, nothing more is dispatched.
	if got := s.Tick(4, span(3, 7)); len(got) != 0 {
		t.Errorf("Tick() on a full pool dispatched %v", got)
	}
}

func TestTickRespectsWindow(t *testing.T) {
	s, _, _ := newTestScheduler(t, 10, 8, 3)

	got := s.Tick(2, span(1, 4))
	for _, idx := range got {
		if idx < 1 || idx > 4 {
			t.Errorf("dispatched chunk %d outside window [1, 4]", idx)
		}
	}
	if len(got) != 4 {
		t.Errorf("dispatched %d chunks, want 4", len(got))
	}
	// Ahead chunks come before the behind chunk.
	if got[len(got)-1] != 1 {
		t.Errorf("behind chunk should be dispatched last, got order %v", got)
	}
}

func TestTickLoopRanksWrappedChunksAhead(t *testing.T) {
	s, tbl, _ := newTestScheduler(t, 10, 2, 3)
	tbl.MarkReady(8, 1)
	tbl.MarkReady(9, 1)
	wrapped := func(i int) bool { return i >= 7 || i <= 1 }

	s.SetLoop(true)
	got := s.Tick(9, wrapped)
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Tick() at the end of a loop dispatched %v, want [0 1]", got)
	}
}

func TestTickCoalescesDuplicates(t *testing.T) {
	s, tbl, d := newTestScheduler(t, 4, 4, 3)

	s.Tick(0, span(0, 1))
	tbl.Set(0, chunk.Pending) // a stray status change must not create a second job
	s.Tick(0, span(0, 1))

	seen := map[int]int{}
	for _, job := range d.submitted {
		seen[job.Index]++
	}
	for idx, n := range seen {
		if n > 1 {
			t.Errorf("chunk %d dispatched %d times", idx, n)
		}
	}
}

func TestFinishStaleResults(t *testing.T) {
	s, tbl, d := newTestScheduler(t, 4, 2, 3)
	s.Tick(0, span(0, 3))
	job := d.submitted[0]

	if s.Finish(Result{JobID: job.ID + 100, Index: job.Index, Tempo: 1}) {
		t.Error("Finish accepted a result with an unknown job id")
	}
	if s.Finish(Result{JobID: job.ID, Index: job.Index, Tempo: 2}) {
		t.Error("Finish accepted a result for another tempo")
	}
	if !s.Finish(Result{JobID: job.ID, Index: job.Index, Tempo: 1}) {
		t.Fatal("Finish rejected the current result")
	}
	if s.Finish(Result{JobID: job.ID, Index: job.Index, Tempo: 1}) {
		t.Error("Finish accepted the same result twice")
	}

	s.Cancel(1)
	if tbl.Status(1) != chunk.Pending {
		t.Errorf("cancelled chunk status = %v, want pending", tbl.Status(1))
	}
	if s.Finish(Result{JobID: d.submitted[1].ID, Index: 1, Tempo: 1}) {
		t.Error("Finish accepted a cancelled job")
	}
}

func TestFailBoundCrossing(t *testing.T) {
	s, tbl, _ := newTestScheduler(t, 4, 1, 3)

	var crossings []int
	for attempt := 1; attempt <= 7; attempt++ {
		if s.Fail(2) {
			crossings = append(crossings, attempt)
		}
		if tbl.Status(2) != chunk.Failed {
			t.Fatalf("status after failure = %v, want failed", tbl.Status(2))
		}
	}

	if len(crossings) != 2 || crossings[0] != 3 || crossings[1] != 6 {
		t.Errorf("bound crossings at attempts %v, want [3 6]", crossings)
	}
}

func TestFailedChunksAreRetried(t *testing.T) {
	s, tbl, d := newTestScheduler(t, 2, 1, 3)

	s.Tick(0, span(0, 1))
	s.Finish(Result{JobID: d.submitted[0].ID, Index: 0, Tempo: 1})
	s.Fail(0)

	got := s.Tick(0, span(0, 1))
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("failed chunk not retried first, dispatched %v", got)
	}
	if tbl.Status(0) != chunk.Converting {
		t.Errorf("retried chunk status = %v", tbl.Status(0))
	}
}

func TestCancelOutside(t *testing.T) {
	s, _, d := newTestScheduler(t, 10, 4, 3)
	s.Tick(0, span(0, 3))

	cancelled := s.CancelOutside(span(2, 6))
	if len(cancelled) != 2 || cancelled[0] != 0 || cancelled[1] != 1 {
		t.Errorf("CancelOutside() = %v, want [0 1]", cancelled)
	}
	if len(d.cancelled) != 2 {
		t.Errorf("dispatcher saw %d cancellations, want 2", len(d.cancelled))
	}
	if s.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", s.InFlight())
	}

	s.CancelAll()
	if s.InFlight() != 0 {
		t.Errorf("InFlight() after CancelAll = %d", s.InFlight())
	}
}

func TestTickSubmitError(t *testing.T) {
	s, tbl, d := newTestScheduler(t, 4, 2, 3)
	d.err = errors.New("boom")

	if got := s.Tick(0, span(0, 3)); len(got) != 0 {
		t.Errorf("Tick() dispatched %v despite submit errors", got)
	}
	if tbl.Status(0) != chunk.Pending {
		t.Errorf("status = %v, want pending", tbl.Status(0))
	}
}
