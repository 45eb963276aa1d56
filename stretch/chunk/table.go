package chunk

// State is the mutable bookkeeping of one chunk.
type State struct {
	Status   Status
	Tempo    float64 // tempo the chunk was converted at, 0 if never
	Failures int     // consecutive failed attempts
}

// Table holds the state of every chunk in a partition. It is owned by the
// engine control loop and is not safe for concurrent use.
type Table struct {
	states []State
	tempo  float64
}

// NewTable creates a table of n pending chunks targeting tempo.
func NewTable(n int, tempo float64) *Table {
	return &Table{states: make([]State, n), tempo: tempo}
}

// Len returns the number of chunks.
func (t *Table) Len() int { return len(t.states) }

// Tempo returns the tempo chunks are being converted at.
func (t *Table) Tempo() float64 { return t.tempo }

// Get returns the state of chunk i.
func (t *Table) Get(i int) State { return t.states[i] }

// Status returns the status of chunk i.
func (t *Table) Status(i int) Status { return t.states[i].Status }

// Set updates the status of chunk i.
func (t *Table) Set(i int, s Status) { t.states[i].Status = s }

// MarkReady records a successful conversion at tempo.
func (t *Table) MarkReady(i int, tempo float64) {
	t.states[i] = State{Status: Ready, Tempo: tempo}
}

// MarkFailed records a failed attempt and returns the consecutive failure
// count.
func (t *Table) MarkFailed(i int) int {
	t.states[i].Status = Failed
	t.states[i].Failures++
	return t.states[i].Failures
}

// ResetFailures clears the consecutive failure count of chunk i.
func (t *Table) ResetFailures(i int) { t.states[i].Failures = 0 }

// Reset returns every chunk to pending and retargets tempo.
func (t *Table) Reset(tempo float64) {
	for i := range t.states {
		t.states[i] = State{}
	}
	t.tempo = tempo
}

// Count returns the number of chunks in status s.
func (t *Table) Count(s Status) int {
	n := 0
	for _, st := range t.states {
		if st.Status == s {
			n++
		}
	}
	return n
}
