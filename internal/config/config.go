// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/cadence/internal/domain/luck"
)

// PoolItem is one weighted clip in a picker pool.
type PoolItem struct {
	Key          string  `koanf:"key"`
	StartingLuck float64 `koanf:"starting_luck"`
	BaseLuck     float64 `koanf:"base_luck"`
	LuckGrowth   float64 `koanf:"luck_growth"`
}

// Scenario describes how playback starts for a script and whether the clip
// scheduler takes over while its audio plays.
type Scenario struct {
	// Pool names the entry in Config.Pools used by the scheduler.
	Pool string `koanf:"pool"`

	// KickoffClip is played when the scenario starts with audio.
	KickoffClip string `koanf:"kickoff_clip"`

	// KickoffLoop loops the kickoff clip instead of playing it once.
	KickoffLoop bool `koanf:"kickoff_loop"`

	// Schedule enables the clip scheduler while audio plays.
	Schedule bool `koanf:"schedule"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the avatar event queue.
	EventQueueSize int `koanf:"queue_size"`

	// TickHz is the frame rate of the facial loop.
	TickHz int `koanf:"tick_hz"`

	// Seed seeds the picker and the facial randomness. Zero means time based.
	Seed int64 `koanf:"seed"`

	// IdleKey names the idle clip in every pool.
	IdleKey string `koanf:"idle_key"`

	// IdleHoldMinMS and IdleHoldMaxMS bound the sampled idle hold.
	IdleHoldMinMS int `koanf:"idle_hold_min_ms"`
	IdleHoldMaxMS int `koanf:"idle_hold_max_ms"`

	// FadeMS is the cross-fade requested for scheduled clips.
	FadeMS int `koanf:"fade_ms"`

	// CuesDir holds <scenario>.json Rhubarb timelines.
	CuesDir string `koanf:"cues_dir"`

	// DefaultScenario is selected at start.
	DefaultScenario string `koanf:"default_scenario"`

	// LuckStore selects the luck persistence backend: memory, file or sqlite.
	LuckStore string `koanf:"luck_store"`

	// LuckStorePath is the YAML file or SQLite database path.
	LuckStorePath string `koanf:"luck_store_path"`

	// DedupeSize bounds the finished event id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Lip-sync tuning.
	LipSyncAttack    float64 `koanf:"lipsync_attack"`
	LipSyncDecay     float64 `koanf:"lipsync_decay"`
	LipSyncMaxWeight float64 `koanf:"lipsync_max_weight"`

	// Blink tuning, in seconds.
	BlinkMinInterval float64 `koanf:"blink_min_interval"`
	BlinkMaxInterval float64 `koanf:"blink_max_interval"`
	BlinkDuration    float64 `koanf:"blink_duration"`
	BlinkAsymmetry   float64 `koanf:"blink_asymmetry"`

	// Head-aim tuning. Dwell bounds are in seconds.
	GazeHigh     float64 `koanf:"gaze_high"`
	GazeLow      float64 `koanf:"gaze_low"`
	GazeTrackMin float64 `koanf:"gaze_track_min"`
	GazeTrackMax float64 `koanf:"gaze_track_max"`
	GazeAwayMin  float64 `koanf:"gaze_away_min"`
	GazeAwayMax  float64 `koanf:"gaze_away_max"`
	GazeEase     float64 `koanf:"gaze_ease"`

	// Pools maps pool names to their clips.
	Pools map[string][]PoolItem `koanf:"pools"`

	// Scenarios maps script names to their playback behavior.
	Scenarios map[string]Scenario `koanf:"scenarios"`

	// VisemePresets maps a mouth category to channel weights. Empty keeps the
	// built-in presets.
	VisemePresets map[string]map[string]float64 `koanf:"viseme_presets"`
}

// New creates a Config with defaults matching the intro avatar.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		EventQueueSize:   4096,
		TickHz:           60,
		IdleKey:          "Idle",
		IdleHoldMinMS:    900,
		IdleHoldMaxMS:    1500,
		FadeMS:           250,
		CuesDir:          "audios",
		DefaultScenario:  "intro",
		LuckStore:        "memory",
		DedupeSize:       10_000,
		LipSyncAttack:    18,
		LipSyncDecay:     20,
		LipSyncMaxWeight: 1,
		BlinkMinInterval: 3,
		BlinkMaxInterval: 6,
		BlinkDuration:    0.12,
		BlinkAsymmetry:   0.02,
		GazeHigh:         0.25,
		GazeLow:          0.1,
		GazeTrackMin:     2,
		GazeTrackMax:     4,
		GazeAwayMin:      0.8,
		GazeAwayMax:      1.6,
		GazeEase:         4,
		Pools: map[string][]PoolItem{
			"intro": {
				{Key: "Talk1", StartingLuck: 3, BaseLuck: 1, LuckGrowth: 1.1},
				{Key: "Talk2", StartingLuck: 2, BaseLuck: 1, LuckGrowth: 1.1},
				{Key: "Talk3", StartingLuck: 1, BaseLuck: 1, LuckGrowth: 1.1},
				{Key: "Idle", StartingLuck: 0.2, BaseLuck: 0.2, LuckGrowth: 0.4},
			},
		},
		Scenarios: map[string]Scenario{
			"intro":      {Pool: "intro", KickoffClip: "Greeting", Schedule: true},
			"drugScreen": {Pool: "intro", KickoffClip: "Angry", KickoffLoop: true},
		},
	}
}

// IdleHoldMin returns the lower idle hold bound.
func (c *Config) IdleHoldMin() time.Duration {
	return time.Duration(c.IdleHoldMinMS) * time.Millisecond
}

// IdleHoldMax returns the upper idle hold bound.
func (c *Config) IdleHoldMax() time.Duration {
	return time.Duration(c.IdleHoldMaxMS) * time.Millisecond
}

// Fade returns the scheduled cross-fade.
func (c *Config) Fade() time.Duration {
	return time.Duration(c.FadeMS) * time.Millisecond
}

// TickInterval returns the frame period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.TickHz <= 0:
		return fmt.Errorf("%w: tick_hz must be positive", ErrInvalidConfig)
	case c.IdleKey == "":
		return fmt.Errorf("%w: idle_key must not be empty", ErrInvalidConfig)
	case c.IdleHoldMinMS < 0 || c.IdleHoldMaxMS < c.IdleHoldMinMS:
		return fmt.Errorf("%w: idle hold range [%d,%d] ms", ErrInvalidConfig, c.IdleHoldMinMS, c.IdleHoldMaxMS)
	case c.BlinkMaxInterval < c.BlinkMinInterval:
		return fmt.Errorf("%w: blink interval range", ErrInvalidConfig)
	case c.GazeTrackMax < c.GazeTrackMin || c.GazeAwayMax < c.GazeAwayMin:
		return fmt.Errorf("%w: gaze dwell range", ErrInvalidConfig)
	}

	switch c.LuckStore {
	case "memory":
	case "file", "sqlite":
		if c.LuckStorePath == "" {
			return fmt.Errorf("%w: luck_store %q needs luck_store_path", ErrInvalidConfig, c.LuckStore)
		}
	default:
		return fmt.Errorf("%w: unknown luck_store %q", ErrInvalidConfig, c.LuckStore)
	}

	for name, items := range c.Pools {
		for _, it := range items {
			for _, v := range []float64{it.StartingLuck, it.BaseLuck, it.LuckGrowth} {
				if math.IsNaN(v) || v < 0 || v > luck.MaxLuck {
					return fmt.Errorf("%w: pool %q item %q luck must be in [0, %g]", ErrInvalidConfig, name, it.Key, luck.MaxLuck)
				}
			}
		}
	}

	for name, sc := range c.Scenarios {
		if _, ok := c.Pools[sc.Pool]; !ok {
			return fmt.Errorf("%w: scenario %q uses unknown pool %q", ErrInvalidConfig, name, sc.Pool)
		}
	}
	if _, ok := c.Scenarios[c.DefaultScenario]; !ok {
		return fmt.Errorf("%w: default_scenario %q is not defined", ErrInvalidConfig, c.DefaultScenario)
	}
	return nil
}
