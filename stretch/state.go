package stretch

// Phase is the playback lifecycle state of the engine.
type Phase int

const (
	// PhaseWaiting indicates the engine has not been started.
	PhaseWaiting Phase = iota
	// PhaseBuffering indicates playback is held until enough audio is ready.
	PhaseBuffering
	// PhasePlaying indicates audio is playing.
	PhasePlaying
	// PhasePaused indicates the user paused playback.
	PhasePaused
	// PhaseEnded indicates playback reached the end of the source.
	PhaseEnded
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseBuffering:
		return "buffering"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// BufferingReason says why the engine entered the buffering phase.
type BufferingReason int

const (
	// ReasonInitial is the first buffering after Start.
	ReasonInitial BufferingReason = iota
	// ReasonSeek means the seek target was not ready.
	ReasonSeek
	// ReasonTempoChange means a tempo change invalidated the converted audio.
	ReasonTempoChange
	// ReasonUnderrun means playback ran out of ready audio.
	ReasonUnderrun
)

// String returns the string representation of the reason.
func (r BufferingReason) String() string {
	switch r {
	case ReasonInitial:
		return "initial"
	case ReasonSeek:
		return "seek"
	case ReasonTempoChange:
		return "tempo-change"
	case ReasonUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// PhaseMachine manages phase transitions.
type PhaseMachine struct {
	current     Phase
	transitions map[Phase][]Phase
	onEnter     map[Phase]func(from Phase)
	onExit      map[Phase]func(to Phase)
}

// NewPhaseMachine creates a phase machine in the waiting phase.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{
		current: PhaseWaiting,
		transitions: map[Phase][]Phase{
			PhaseWaiting:   {PhaseBuffering},
			PhaseBuffering: {PhasePlaying, PhasePaused},
			PhasePlaying:   {PhasePaused, PhaseBuffering, PhaseEnded},
			PhasePaused:    {PhasePlaying, PhaseBuffering, PhaseEnded},
		},
		onEnter: make(map[Phase]func(Phase)),
		onExit:  make(map[Phase]func(Phase)),
	}
}

// Can reports whether the machine may move to the given phase.
func (pm *PhaseMachine) Can(to Phase) bool {
	for _, p := range pm.transitions[pm.current] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition attempts to move to the given phase.
func (pm *PhaseMachine) Transition(to Phase) bool {
	if !pm.Can(to) {
		return false
	}

	from := pm.current
	if exitFn, ok := pm.onExit[from]; ok && exitFn != nil {
		exitFn(to)
	}
	pm.current = to
	if enterFn, ok := pm.onEnter[to]; ok && enterFn != nil {
		enterFn(from)
	}
	return true
}

// Reset returns the machine to waiting from any phase. Only the exit
// callback of the phase being left runs.
func (pm *PhaseMachine) Reset() {
	from := pm.current
	if from == PhaseWaiting {
		return
	}
	if exitFn, ok := pm.onExit[from]; ok && exitFn != nil {
		exitFn(PhaseWaiting)
	}
	pm.current = PhaseWaiting
}

// Current returns the current phase.
func (pm *PhaseMachine) Current() Phase {
	return pm.current
}

// OnEnter registers a callback for entering a phase.
func (pm *PhaseMachine) OnEnter(p Phase, fn func(from Phase)) {
	pm.onEnter[p] = fn
}

// OnExit registers a callback for leaving a phase.
func (pm *PhaseMachine) OnExit(p Phase, fn func(to Phase)) {
	pm.onExit[p] = fn
}
