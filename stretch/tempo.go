package stretch

import "github.com/charmbracelet/stretch/stretch/wsola"

// TempoSteps are the tempos offered by step controls.
var TempoSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0, 2.5, 3.0}

// ValidTempo reports whether tempo is a positive finite ratio.
func ValidTempo(tempo float64) bool {
	return wsola.ValidTempo(tempo)
}

// NextTempo returns the first step above tempo, or the last step.
func NextTempo(tempo float64) float64 {
	for _, step := range TempoSteps {
		if step > tempo+1e-9 {
			return step
		}
	}
	return TempoSteps[len(TempoSteps)-1]
}

// PreviousTempo returns the last step below tempo, or the first step.
func PreviousTempo(tempo float64) float64 {
	for i := len(TempoSteps) - 1; i >= 0; i-- {
		if TempoSteps[i] < tempo-1e-9 {
			return TempoSteps[i]
		}
	}
	return TempoSteps[0]
}
