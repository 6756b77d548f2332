package smoothing

import (
	"math"
	"math/rand"
	"time"
)

// Mode is the level a DwellTimer is currently dwelling at.
type Mode int

// Dwell modes.
const (
	ModeHigh Mode = iota
	ModeLow
)

func (m Mode) String() string {
	if m == ModeLow {
		return "low"
	}
	return "high"
}

// DwellConfig configures a DwellTimer. Times are in seconds.
type DwellConfig struct {
	High      float64
	Low       float64
	HighDwell Range
	LowDwell  Range
	Ease      float64
}

// DwellOption applies a configuration option to the DwellTimer.
type DwellOption func(*DwellTimer)

// WithDwellRand sets the random source for dwell sampling.
func WithDwellRand(rng *rand.Rand) DwellOption {
	return func(d *DwellTimer) {
		if rng != nil {
			d.rng = rng
		}
	}
}

// DwellTimer alternates a weight between High and Low, holding each for a
// random dwell and easing between them.
type DwellTimer struct {
	cfg          DwellConfig
	rng          *rand.Rand
	mode         Mode
	nextSwitchAt float64
	target       float64
	current      float64
}

// NewDwellTimer starts in ModeHigh at cfg.High with the first switch drawn
// from cfg.HighDwell after now.
func NewDwellTimer(cfg DwellConfig, now float64, opts ...DwellOption) *DwellTimer {
	d := &DwellTimer{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // animation variety
		mode:    ModeHigh,
		target:  cfg.High,
		current: cfg.High,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.nextSwitchAt = now + cfg.HighDwell.Sample(d.rng)
	return d
}

// Tick advances the timer to now and returns the eased weight.
func (d *DwellTimer) Tick(now, dt float64) float64 {
	if now >= d.nextSwitchAt {
		if d.mode == ModeHigh {
			d.mode = ModeLow
			d.target = d.cfg.Low
			d.nextSwitchAt = now + d.cfg.LowDwell.Sample(d.rng)
		} else {
			d.mode = ModeHigh
			d.target = d.cfg.High
			d.nextSwitchAt = now + d.cfg.HighDwell.Sample(d.rng)
		}
	}
	d.current = Step(d.current, d.target, d.cfg.Ease, d.cfg.Ease, dt)
	return d.current
}

// Manual returns w clamped to [0,1] without touching the modulation state.
func (*DwellTimer) Manual(w float64) float64 {
	return math.Max(0, math.Min(1, w))
}

// Mode returns the current dwell mode.
func (d *DwellTimer) Mode() Mode { return d.mode }

// Value returns the last eased weight.
func (d *DwellTimer) Value() float64 { return d.current }

// Target returns the level being eased toward.
func (d *DwellTimer) Target() float64 { return d.target }

// NextSwitchAt returns the time of the next mode flip.
func (d *DwellTimer) NextSwitchAt() float64 { return d.nextSwitchAt }
