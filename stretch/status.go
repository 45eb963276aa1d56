package stretch

import "time"

// Status is a snapshot of the engine.
type Status struct {
	Phase      Phase
	Tempo      float64
	Conversion ConversionStatus
	Buffer     BufferStatus
	Playback   PlaybackStatus
}

// ConversionStatus reports conversion progress at the current tempo.
type ConversionStatus struct {
	// Progress is the fraction of chunks converted at least once, 0..1.
	Progress float64
	Ready    int
	Total    int
	// InFlight counts dispatched jobs, Queued those still waiting for a
	// worker.
	InFlight int
	Queued   int
}

// BufferStatus reports the converted audio around the playback position.
type BufferStatus struct {
	Health HealthLevel
	// ReadyRunLength is the contiguous ready audio ahead of the position,
	// in output time.
	ReadyRunLength time.Duration
	MemoryBytes    int64
	// Evictions counts chunks dropped by the window moving on.
	Evictions int64
}

// PlaybackStatus reports the position in the source.
type PlaybackStatus struct {
	Position time.Duration
	Duration time.Duration
}
