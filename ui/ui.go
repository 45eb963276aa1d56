// Package ui provides the interactive player view.
package ui

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/charmbracelet/stretch/stretch"
)

// Player is the part of the engine the view drives.
type Player interface {
	Start() error
	Pause()
	Resume()
	Seek(position time.Duration)
	SetTempo(tempo float64) error
	Status() stretch.Status
}

// NewProgram returns a new Tea program playing through p. events is
// usually the channel of a subscription on the same engine.
func NewProgram(cfg Config, p Player, events <-chan stretch.Event) *tea.Program {
	log.Debug("Starting player view", "title", cfg.Title, "refresh", cfg.RefreshInterval)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(newModel(cfg, p, events), opts...)
}

type (
	eventMsg    struct{ ev stretch.Event }
	eventsDone  struct{}
	refreshMsg  time.Time
	startErrMsg struct{ err error }
)

type model struct {
	cfg    Config
	player Player
	events <-chan stretch.Event

	status  stretch.Status
	lastErr error
	width   int

	spinner  spinner.Model
	progress progress.Model
	quitting bool
}

func newModel(cfg Config, p Player, events <-chan stretch.Event) model {
	if cfg.SeekStep <= 0 {
		cfg.SeekStep = 5 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 100 * time.Millisecond
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = noteStyle

	return model{
		cfg:      cfg,
		player:   p,
		events:   events,
		status:   p.Status(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.start, m.waitForEvent, m.refresh(), m.spinner.Tick)
}

func (m model) start() tea.Msg {
	if err := m.player.Start(); err != nil && !errors.Is(err, stretch.ErrInvalidState) {
		return startErrMsg{err}
	}
	return nil
}

func (m model) waitForEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return eventsDone{}
	}
	return eventMsg{ev}
}

func (m model) refresh() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-4, 10)
		return m, nil

	case startErrMsg:
		m.lastErr = msg.err
		return m, tea.Quit

	case eventMsg:
		switch ev := msg.ev.(type) {
		case stretch.ErrorEvent:
			m.lastErr = ev.Err
		case stretch.BufferedEvent:
			m.lastErr = nil
		case stretch.EndedEvent:
			m.status = m.player.Status()
			if m.cfg.QuitOnEnd {
				m.quitting = true
				return m, tea.Quit
			}
		}
		return m, m.waitForEvent

	case eventsDone:
		return m, nil

	case refreshMsg:
		m.status = m.player.Status()
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case " ", "p":
		switch m.status.Phase {
		case stretch.PhasePlaying:
			m.player.Pause()
		case stretch.PhasePaused:
			m.player.Resume()
		}

	case "left", "h":
		m.player.Seek(max(m.status.Playback.Position-m.cfg.SeekStep, 0))

	case "right", "l":
		m.player.Seek(m.status.Playback.Position + m.cfg.SeekStep)

	case "+", "=", "up", "k":
		m.setTempo(stretch.NextTempo(m.status.Tempo))

	case "-", "_", "down", "j":
		m.setTempo(stretch.PreviousTempo(m.status.Tempo))

	default:
		return m, nil
	}

	m.status = m.player.Status()
	return m, nil
}

func (m *model) setTempo(t float64) {
	if err := m.player.SetTempo(t); err != nil {
		m.lastErr = err
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.cfg.Title != "" {
		b.WriteString(titleStyle.Render(m.cfg.Title) + "\n\n")
	}

	var fraction float64
	if d := m.status.Playback.Duration; d > 0 {
		fraction = float64(m.status.Playback.Position) / float64(d)
	}
	b.WriteString(m.progress.ViewAs(fraction) + "\n")

	if m.status.Phase == stretch.PhaseBuffering {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(detailedStatus(m.status) + "\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("Error: "+m.lastErr.Error()) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("space pause · ←/→ seek · +/- tempo · q quit") + "\n")
	return b.String()
}

// Err returns the last error shown, if any.
func (m model) Err() error { return m.lastErr }
