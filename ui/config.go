package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// Title shown above the progress bar, usually the file name.
	Title string

	// SeekStep is how far the arrow keys move the position.
	SeekStep time.Duration `env:"STRETCH_SEEK_STEP" envDefault:"5s"`

	// RefreshInterval is how often the status is redrawn.
	RefreshInterval time.Duration `env:"STRETCH_UI_REFRESH" envDefault:"100ms"`

	// QuitOnEnd leaves the program once playback ended.
	QuitOnEnd bool `env:"STRETCH_QUIT_ON_END" envDefault:"true"`

	// For debugging the UI
	AltScreen bool `env:"STRETCH_ALT_SCREEN" envDefault:"false"`
}
