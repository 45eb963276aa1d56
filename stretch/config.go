package stretch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/stretch/internal/store"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

// Config contains all engine configuration options.
type Config struct {
	// Playback settings
	Tempo  float64       `yaml:"tempo" env:"TEMPO" envDefault:"1.0"`
	Offset time.Duration `yaml:"offset" env:"OFFSET" envDefault:"0s"`
	Loop   bool          `yaml:"loop" env:"LOOP" envDefault:"false"`

	// Timers
	TimeUpdateInterval time.Duration `yaml:"time_update_interval" env:"TIME_UPDATE_INTERVAL" envDefault:"250ms"`
	LookaheadInterval  time.Duration `yaml:"lookahead_interval" env:"LOOKAHEAD_INTERVAL" envDefault:"100ms"`
	LookaheadThreshold time.Duration `yaml:"lookahead_threshold" env:"LOOKAHEAD_THRESHOLD" envDefault:"1.5s"`

	// Conversion settings
	WorkerPoolSize         int           `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE" envDefault:"2"`
	ChunkDuration          time.Duration `yaml:"chunk_duration" env:"CHUNK_DURATION" envDefault:"5s"`
	OverlapDuration        time.Duration `yaml:"overlap_duration" env:"OVERLAP_DURATION" envDefault:"200ms"`
	CrossfadeDuration      time.Duration `yaml:"crossfade_duration" env:"CROSSFADE_DURATION" envDefault:"100ms"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES" envDefault:"3"`

	// Window settings
	AheadChunks  int `yaml:"ahead_chunks" env:"AHEAD_CHUNKS" envDefault:"4"`
	BehindChunks int `yaml:"behind_chunks" env:"BEHIND_CHUNKS" envDefault:"1"`

	Health    HealthThresholds    `yaml:"health" envPrefix:"HEALTH_"`
	Buffering BufferingThresholds `yaml:"buffering" envPrefix:"BUFFERING_"`
	WSOLA     wsola.Options       `yaml:"wsola" envPrefix:"WSOLA_"`
	Store     store.Config        `yaml:"store" envPrefix:"STORE_"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tempo:  1.0,
		Offset: 0,
		Loop:   false,

		TimeUpdateInterval: 250 * time.Millisecond,
		LookaheadInterval:  100 * time.Millisecond,
		LookaheadThreshold: 1500 * time.Millisecond,

		WorkerPoolSize:         2,
		ChunkDuration:          5 * time.Second,
		OverlapDuration:        200 * time.Millisecond,
		CrossfadeDuration:      100 * time.Millisecond,
		MaxConsecutiveFailures: 3,

		AheadChunks:  4,
		BehindChunks: 1,

		Health:    DefaultHealthThresholds(),
		Buffering: DefaultBufferingThresholds(),
		WSOLA:     wsola.DefaultOptions(),
		Store:     store.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !ValidTempo(c.Tempo) {
		return fmt.Errorf("%w: tempo must be positive, got %v", ErrInvalidConfig, c.Tempo)
	}
	if c.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative, got %v", ErrInvalidConfig, c.Offset)
	}

	if c.TimeUpdateInterval <= 0 {
		return fmt.Errorf("%w: time_update_interval must be positive, got %v", ErrInvalidConfig, c.TimeUpdateInterval)
	}
	if c.LookaheadInterval <= 0 {
		return fmt.Errorf("%w: lookahead_interval must be positive, got %v", ErrInvalidConfig, c.LookaheadInterval)
	}
	if c.LookaheadThreshold <= 0 {
		return fmt.Errorf("%w: lookahead_threshold must be positive, got %v", ErrInvalidConfig, c.LookaheadThreshold)
	}

	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("%w: worker_pool_size must be at least 1, got %d", ErrInvalidConfig, c.WorkerPoolSize)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("%w: chunk_duration must be positive, got %v", ErrInvalidConfig, c.ChunkDuration)
	}
	if c.OverlapDuration < 0 || c.OverlapDuration >= c.ChunkDuration {
		return fmt.Errorf("%w: overlap_duration must be in [0, %v), got %v", ErrInvalidConfig, c.ChunkDuration, c.OverlapDuration)
	}
	if c.CrossfadeDuration < 0 {
		return fmt.Errorf("%w: crossfade_duration must not be negative, got %v", ErrInvalidConfig, c.CrossfadeDuration)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("%w: max_consecutive_failures must be at least 1, got %d", ErrInvalidConfig, c.MaxConsecutiveFailures)
	}

	if c.AheadChunks < 1 {
		return fmt.Errorf("%w: ahead_chunks must be at least 1, got %d", ErrInvalidConfig, c.AheadChunks)
	}
	if c.BehindChunks < 0 || c.BehindChunks >= c.AheadChunks {
		return fmt.Errorf("%w: behind_chunks must be in [0, %d), got %d", ErrInvalidConfig, c.AheadChunks, c.BehindChunks)
	}

	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Buffering.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.WSOLA.Validate(); err != nil {
		return fmt.Errorf("%w: wsola: %w", ErrInvalidConfig, err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: store: %w", ErrInvalidConfig, err)
	}
	return nil
}
