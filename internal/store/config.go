package store

import (
	"fmt"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
)

// Config configures the on-disk store of converted chunks.
type Config struct {
	Enabled          bool   `yaml:"enabled" env:"ENABLED" envDefault:"false"`
	Dir              string `yaml:"dir" env:"DIR"`
	Capacity         int64  `yaml:"capacity" env:"CAPACITY" envDefault:"268435456"`
	CompressionLevel int    `yaml:"compression_level" env:"COMPRESSION_LEVEL" envDefault:"3"`
}

// DefaultConfig returns the store defaults. The store is disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		Dir:              DefaultDir(),
		Capacity:         256 << 20,
		CompressionLevel: 3,
	}
}

// DefaultDir returns the user cache directory for converted chunks, or ""
// when it cannot be determined.
func DefaultDir() string {
	scope := gap.NewScope(gap.User, "stretch")
	dir, err := scope.CacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chunks")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Dir == "" {
		return fmt.Errorf("store directory cannot be empty")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("store capacity must be positive, got %d", c.Capacity)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	return nil
}
