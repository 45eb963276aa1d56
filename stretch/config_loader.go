package stretch

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads engine configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Playback settings
	if viper.IsSet("stretch.tempo") {
		cfg.Tempo = viper.GetFloat64("stretch.tempo")
	}
	setDuration(&cfg.Offset, "stretch.offset")
	if viper.IsSet("stretch.loop") {
		cfg.Loop = viper.GetBool("stretch.loop")
	}

	// Timers
	setDuration(&cfg.TimeUpdateInterval, "stretch.time_update_interval")
	setDuration(&cfg.LookaheadInterval, "stretch.lookahead_interval")
	setDuration(&cfg.LookaheadThreshold, "stretch.lookahead_threshold")

	// Conversion settings
	if viper.IsSet("stretch.worker_pool_size") {
		cfg.WorkerPoolSize = viper.GetInt("stretch.worker_pool_size")
	}
	setDuration(&cfg.ChunkDuration, "stretch.chunk_duration")
	setDuration(&cfg.OverlapDuration, "stretch.overlap_duration")
	setDuration(&cfg.CrossfadeDuration, "stretch.crossfade_duration")
	if viper.IsSet("stretch.max_consecutive_failures") {
		cfg.MaxConsecutiveFailures = viper.GetInt("stretch.max_consecutive_failures")
	}

	// Window settings
	if viper.IsSet("stretch.ahead_chunks") {
		cfg.AheadChunks = viper.GetInt("stretch.ahead_chunks")
	}
	if viper.IsSet("stretch.behind_chunks") {
		cfg.BehindChunks = viper.GetInt("stretch.behind_chunks")
	}

	// Thresholds
	setDuration(&cfg.Health.Critical, "stretch.health.critical")
	setDuration(&cfg.Health.Low, "stretch.health.low")
	setDuration(&cfg.Health.Healthy, "stretch.health.healthy")
	setDuration(&cfg.Buffering.Enter, "stretch.buffering.enter")
	setDuration(&cfg.Buffering.Exit, "stretch.buffering.exit")

	// Converter
	setDuration(&cfg.WSOLA.FrameDuration, "stretch.wsola.frame_duration")
	setDuration(&cfg.WSOLA.SearchDuration, "stretch.wsola.search_duration")

	// Chunk store
	if viper.IsSet("stretch.store.enabled") {
		cfg.Store.Enabled = viper.GetBool("stretch.store.enabled")
	}
	if viper.IsSet("stretch.store.dir") {
		cfg.Store.Dir = viper.GetString("stretch.store.dir")
	}
	if viper.IsSet("stretch.store.capacity") {
		cfg.Store.Capacity = viper.GetInt64("stretch.store.capacity")
	}
	if viper.IsSet("stretch.store.compression_level") {
		cfg.Store.CompressionLevel = viper.GetInt("stretch.store.compression_level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid stretch configuration: %w", err)
	}
	return cfg, nil
}

// setDuration reads a duration key, accepting both "250ms" strings and
// plain nanosecond numbers.
func setDuration(dst *time.Duration, key string) {
	if !viper.IsSet(key) {
		return
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		*dst = d
		return
	}
	if d := viper.GetDuration(key); d != 0 {
		*dst = d
	}
}

// LoadConfigFromEnv loads engine configuration from STRETCH_* environment
// variables.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "STRETCH_"})
	if err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultConfig().Store.Dir
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid stretch configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults sets default values in Viper.
func SetDefaults() {
	defaults := DefaultConfig()

	// Playback settings
	viper.SetDefault("stretch.tempo", defaults.Tempo)
	viper.SetDefault("stretch.offset", defaults.Offset.String())
	viper.SetDefault("stretch.loop", defaults.Loop)

	// Timers
	viper.SetDefault("stretch.time_update_interval", defaults.TimeUpdateInterval.String())
	viper.SetDefault("stretch.lookahead_interval", defaults.LookaheadInterval.String())
	viper.SetDefault("stretch.lookahead_threshold", defaults.LookaheadThreshold.String())

	// Conversion settings
	viper.SetDefault("stretch.worker_pool_size", defaults.WorkerPoolSize)
	viper.SetDefault("stretch.chunk_duration", defaults.ChunkDuration.String())
	viper.SetDefault("stretch.overlap_duration", defaults.OverlapDuration.String())
	viper.SetDefault("stretch.crossfade_duration", defaults.CrossfadeDuration.String())
	viper.SetDefault("stretch.max_consecutive_failures", defaults.MaxConsecutiveFailures)

	// Window settings
	viper.SetDefault("stretch.ahead_chunks", defaults.AheadChunks)
	viper.SetDefault("stretch.behind_chunks", defaults.BehindChunks)

	// Thresholds
	viper.SetDefault("stretch.health.critical", defaults.Health.Critical.String())
	viper.SetDefault("stretch.health.low", defaults.Health.Low.String())
	viper.SetDefault("stretch.health.healthy", defaults.Health.Healthy.String())
	viper.SetDefault("stretch.buffering.enter", defaults.Buffering.Enter.String())
	viper.SetDefault("stretch.buffering.exit", defaults.Buffering.Exit.String())

	// Converter
	viper.SetDefault("stretch.wsola.frame_duration", defaults.WSOLA.FrameDuration.String())
	viper.SetDefault("stretch.wsola.search_duration", defaults.WSOLA.SearchDuration.String())

	// Chunk store
	viper.SetDefault("stretch.store.enabled", defaults.Store.Enabled)
	viper.SetDefault("stretch.store.dir", defaults.Store.Dir)
	viper.SetDefault("stretch.store.capacity", defaults.Store.Capacity)
	viper.SetDefault("stretch.store.compression_level", defaults.Store.CompressionLevel)
}
