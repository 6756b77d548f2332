package facial

import (
	"maps"
	"slices"

	"github.com/okian/cadence/internal/domain/cues"
	"github.com/okian/cadence/internal/domain/smoothing"
)

// Presets maps a mouth category to viseme channel weights.
type Presets map[string]map[string]float64

// DefaultPresets maps Rhubarb mouth shapes to Ready Player Me visemes with a
// little co-articulation on B and H.
func DefaultPresets() Presets {
	return Presets{
		"A": {"viseme_PP": 1},
		"B": {"viseme_I": 0.85, "viseme_SS": 0.10, "viseme_kk": 0.05},
		"C": {"viseme_E": 1},
		"D": {"viseme_aa": 1},
		"E": {"viseme_O": 1},
		"F": {"viseme_U": 1},
		"G": {"viseme_FF": 1},
		"H": {"viseme_DD": 0.85, "viseme_nn": 0.15},
		"X": {"viseme_sil": 0.15},
	}
}

// channels returns every channel any preset touches, sorted.
func (p Presets) channels() []string {
	set := make(map[string]struct{})
	for _, m := range p {
		for ch := range m {
			set[ch] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// LipSyncConfig tunes the viseme driver.
type LipSyncConfig struct {
	Presets   Presets
	Attack    float64
	Decay     float64
	MaxWeight float64
}

// DefaultLipSyncConfig returns attack 18/s, decay 20/s and full weight.
func DefaultLipSyncConfig() LipSyncConfig {
	return LipSyncConfig{Presets: DefaultPresets(), Attack: 18, Decay: 20, MaxWeight: 1}
}

// LipSync drives viseme channels from a cue timeline.
type LipSync struct {
	cfg      LipSyncConfig
	bank     *smoothing.Bank
	timeline *cues.Timeline
	targets  map[string]float64
	active   string
}

// NewLipSync creates a driver with every preset channel at rest.
func NewLipSync(cfg LipSyncConfig) *LipSync {
	if len(cfg.Presets) == 0 {
		cfg.Presets = DefaultPresets()
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = 1
	}
	return &LipSync{
		cfg:     cfg,
		bank:    smoothing.NewBank(cfg.Presets.channels(), cfg.Attack, cfg.Decay),
		targets: make(map[string]float64),
		active:  cues.DefaultCategory,
	}
}

// SetTimeline swaps the cue timeline. nil means silence.
func (l *LipSync) SetTimeline(t *cues.Timeline) { l.timeline = t }

// Tick looks up the category at audio time at, retargets the channels,
// smooths them by dt and writes them to sink. It returns the category.
func (l *LipSync) Tick(at, dt float64, sink Sink) string {
	category := l.timeline.ActiveCategory(at)
	l.active = category

	preset, ok := l.cfg.Presets[category]
	if !ok {
		preset, ok = l.cfg.Presets[l.timeline.Default()]
	}
	if !ok {
		preset = l.cfg.Presets[cues.DefaultCategory]
	}
	clear(l.targets)
	for ch, w := range preset {
		l.targets[ch] = min(l.cfg.MaxWeight, w*l.cfg.MaxWeight)
	}
	l.bank.SetAllTargets(l.targets)
	l.bank.Advance(dt, sink)
	return category
}

// Active returns the category used on the last tick.
func (l *LipSync) Active() string { return l.active }

// Weight returns a viseme channel's smoothed value.
func (l *LipSync) Weight(channel string) float64 { return l.bank.Value(channel) }

// Channels returns the driven channels.
func (l *LipSync) Channels() []string { return l.bank.Names() }
