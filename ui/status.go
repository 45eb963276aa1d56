package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/charmbracelet/stretch/stretch"
)

var (
	faint = lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}

	titleStyle = lipgloss.NewStyle().Bold(true)
	noteStyle  = lipgloss.NewStyle().Foreground(faint)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	helpStyle  = lipgloss.NewStyle().Foreground(faint)
)

// phaseColor returns the color for a phase.
func phaseColor(p stretch.Phase) lipgloss.Color {
	switch p {
	case stretch.PhasePlaying:
		return lipgloss.Color("#04B575") // Green
	case stretch.PhasePaused:
		return lipgloss.Color("#FFFF00") // Yellow
	case stretch.PhaseBuffering:
		return lipgloss.Color("#00AAFF") // Blue
	case stretch.PhaseEnded:
		return lipgloss.Color("#888888") // Gray
	default:
		return lipgloss.Color("#666666") // Dark gray
	}
}

// phaseIcon returns an icon for a phase.
func phaseIcon(p stretch.Phase) string {
	switch p {
	case stretch.PhasePlaying:
		return "▶"
	case stretch.PhasePaused:
		return "⏸"
	case stretch.PhaseBuffering:
		return "⟳"
	case stretch.PhaseEnded:
		return "■"
	default:
		return "○"
	}
}

// healthColor returns the color for a buffer health level.
func healthColor(h stretch.HealthLevel) lipgloss.Color {
	switch h {
	case stretch.HealthHealthy:
		return lipgloss.Color("#04B575")
	case stretch.HealthLow:
		return lipgloss.Color("#FFFF00")
	case stretch.HealthCritical:
		return lipgloss.Color("#FF8800")
	default:
		return lipgloss.Color("#FF0000")
	}
}

// formatDuration formats a duration as m:ss.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func formatTempo(t float64) string {
	return fmt.Sprintf("×%.2f", t)
}

// StatusLine renders a one-line plain text summary, for output that is not
// a terminal.
func StatusLine(st stretch.Status) string {
	parts := []string{
		st.Phase.String(),
		formatDuration(st.Playback.Position) + "/" + formatDuration(st.Playback.Duration),
		formatTempo(st.Tempo),
		"buffer " + st.Buffer.Health.String(),
		fmt.Sprintf("%d/%d chunks", st.Conversion.Ready, st.Conversion.Total),
		humanize.IBytes(uint64(max(st.Buffer.MemoryBytes, 0))),
	}
	return strings.Join(parts, "  ")
}

// detailedStatus renders the styled status block of the TUI.
func detailedStatus(st stretch.Status) string {
	phase := lipgloss.NewStyle().Foreground(phaseColor(st.Phase)).
		Render(fmt.Sprintf("%s %s", phaseIcon(st.Phase), st.Phase))
	health := lipgloss.NewStyle().Foreground(healthColor(st.Buffer.Health)).
		Render(st.Buffer.Health.String())

	position := fmt.Sprintf("%s / %s  %s",
		formatDuration(st.Playback.Position),
		formatDuration(st.Playback.Duration),
		formatTempo(st.Tempo))

	buffer := noteStyle.Render(fmt.Sprintf("buffer %s ahead · %d of %d chunks ready · %s in memory",
		st.Buffer.ReadyRunLength.Round(100*time.Millisecond),
		st.Conversion.Ready,
		st.Conversion.Total,
		humanize.IBytes(uint64(max(st.Buffer.MemoryBytes, 0)))))

	return phase + "  " + position + "\n" + "health " + health + "  " + buffer
}
