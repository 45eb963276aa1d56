package stretch

import (
	"fmt"
	"time"
)

// HealthLevel grades how much converted audio is ready ahead of the
// playback position.
type HealthLevel int

const (
	// HealthEmpty means playback is about to run dry.
	HealthEmpty HealthLevel = iota
	// HealthCritical means less than the low threshold is ready.
	HealthCritical
	// HealthLow means less than the healthy threshold is ready.
	HealthLow
	// HealthHealthy means enough audio is ready, or the end is ready.
	HealthHealthy
)

// String returns the string representation of the level.
func (h HealthLevel) String() string {
	switch h {
	case HealthEmpty:
		return "empty"
	case HealthCritical:
		return "critical"
	case HealthLow:
		return "low"
	case HealthHealthy:
		return "healthy"
	default:
		return "unknown"
	}
}

// HealthThresholds are the ready run lengths, in output time, that separate
// health levels.
type HealthThresholds struct {
	Critical time.Duration `yaml:"critical" env:"CRITICAL" envDefault:"250ms"`
	Low      time.Duration `yaml:"low" env:"LOW" envDefault:"2s"`
	Healthy  time.Duration `yaml:"healthy" env:"HEALTHY" envDefault:"5s"`
}

// DefaultHealthThresholds returns the default health thresholds.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		Critical: 250 * time.Millisecond,
		Low:      2 * time.Second,
		Healthy:  5 * time.Second,
	}
}

// Validate checks that the thresholds are strictly ascending.
func (h HealthThresholds) Validate() error {
	if h.Critical <= 0 || h.Low <= h.Critical || h.Healthy <= h.Low {
		return fmt.Errorf("health thresholds must be positive and ascending, got %v/%v/%v",
			h.Critical, h.Low, h.Healthy)
	}
	return nil
}

// Classify grades a ready run. A run that reaches the end of the source is
// always healthy.
func (h HealthThresholds) Classify(run time.Duration, reachesEnd bool) HealthLevel {
	switch {
	case reachesEnd:
		return HealthHealthy
	case run < h.Critical:
		return HealthEmpty
	case run < h.Low:
		return HealthCritical
	case run < h.Healthy:
		return HealthLow
	default:
		return HealthHealthy
	}
}

// BufferingThresholds are the hysteresis pair around the buffering phase.
type BufferingThresholds struct {
	// Enter is the run length at or below which playback stops to buffer.
	Enter time.Duration `yaml:"enter" env:"ENTER" envDefault:"500ms"`
	// Exit is the run length at or above which buffering ends.
	Exit time.Duration `yaml:"exit" env:"EXIT" envDefault:"2s"`
}

// DefaultBufferingThresholds returns the default hysteresis pair.
func DefaultBufferingThresholds() BufferingThresholds {
	return BufferingThresholds{
		Enter: 500 * time.Millisecond,
		Exit:  2 * time.Second,
	}
}

// Validate checks that Exit exceeds Enter.
func (b BufferingThresholds) Validate() error {
	if b.Enter < 0 || b.Exit <= b.Enter {
		return fmt.Errorf("buffering exit (%v) must exceed enter (%v)", b.Exit, b.Enter)
	}
	return nil
}

// ShouldEnter reports whether a playing engine has run dry.
func (b BufferingThresholds) ShouldEnter(run time.Duration, reachesEnd bool) bool {
	return !reachesEnd && run <= b.Enter
}

// CanExit reports whether a buffering engine has enough audio to play.
func (b BufferingThresholds) CanExit(run time.Duration, reachesEnd bool) bool {
	return reachesEnd || run >= b.Exit
}
