package facial

import (
	"math/rand"

	"github.com/okian/cadence/internal/domain/smoothing"
)

// BlinkConfig is in seconds.
type BlinkConfig struct {
	Interval  smoothing.Range
	Duration  float64
	Asymmetry float64
}

// DefaultBlinkConfig blinks every 3 to 6 seconds.
func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		Interval:  smoothing.Range{Min: 3, Max: 6},
		Duration:  0.12,
		Asymmetry: 0.02,
	}
}

// Blink closes and opens both eyes on a random interval. The right eye
// trails the left by Asymmetry seconds.
type Blink struct {
	cfg      BlinkConfig
	rng      *rand.Rand
	nextAt   float64
	started  float64
	blinking bool
}

// NewBlink schedules the first blink after now.
func NewBlink(cfg BlinkConfig, now float64, rng *rand.Rand) *Blink {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultBlinkConfig().Duration
	}
	b := &Blink{cfg: cfg, rng: rng}
	b.nextAt = now + cfg.Interval.Sample(rng)
	return b
}

// Tick writes both eye channels for time now.
func (b *Blink) Tick(now float64, sink Sink) {
	if !b.blinking && now >= b.nextAt {
		b.blinking = true
		b.started = now
	}
	if !b.blinking {
		sink.SetWeight(ChannelBlinkLeft, 0)
		sink.SetWeight(ChannelBlinkRight, 0)
		return
	}

	elapsed := now - b.started
	sink.SetWeight(ChannelBlinkLeft, envelope(elapsed/b.cfg.Duration))
	sink.SetWeight(ChannelBlinkRight, envelope((elapsed-b.cfg.Asymmetry)/b.cfg.Duration))

	if elapsed >= b.cfg.Duration+max(0, b.cfg.Asymmetry) {
		b.blinking = false
		b.nextAt = now + b.cfg.Interval.Sample(b.rng)
	}
}

// Blinking reports whether a blink is in progress.
func (b *Blink) Blinking() bool { return b.blinking }

// NextAt returns when the next blink starts.
func (b *Blink) NextAt() float64 { return b.nextAt }

// envelope rises quadratically over the first half of the blink and falls
// over the second. Outside [0,1) it is zero.
func envelope(t float64) float64 {
	switch {
	case t < 0 || t >= 1:
		return 0
	case t < 0.5:
		k := t / 0.5
		return k * k
	default:
		k := (t - 0.5) / 0.5
		return 1 - k*k
	}
}
