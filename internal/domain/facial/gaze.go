package facial

import (
	"math/rand"

	"github.com/okian/cadence/internal/domain/smoothing"
)

// DefaultGazeConfig mostly tracks the camera and occasionally glances away.
func DefaultGazeConfig() smoothing.DwellConfig {
	return smoothing.DwellConfig{
		High:      0.25,
		Low:       0.1,
		HighDwell: smoothing.Range{Min: 2, Max: 4},
		LowDwell:  smoothing.Range{Min: 0.8, Max: 1.6},
		Ease:      4,
	}
}

// Gaze writes the head-aim blend weight.
type Gaze struct {
	timer  *smoothing.DwellTimer
	manual *float64
}

// NewGaze starts tracking at now.
func NewGaze(cfg smoothing.DwellConfig, now float64, rng *rand.Rand) *Gaze {
	return &Gaze{timer: smoothing.NewDwellTimer(cfg, now, smoothing.WithDwellRand(rng))}
}

// SetManual overrides the modulated weight. nil resumes modulation.
func (g *Gaze) SetManual(w *float64) {
	if w == nil {
		g.manual = nil
		return
	}
	v := *w
	g.manual = &v
}

// Manual returns the override, if any.
func (g *Gaze) Manual() (float64, bool) {
	if g.manual == nil {
		return 0, false
	}
	return *g.manual, true
}

// Tick writes the head-aim channel.
func (g *Gaze) Tick(now, dt float64, sink Sink) {
	if g.manual != nil {
		sink.SetWeight(ChannelHeadAim, g.timer.Manual(*g.manual))
		return
	}
	sink.SetWeight(ChannelHeadAim, g.timer.Tick(now, dt))
}

// Mode returns the dwell mode.
func (g *Gaze) Mode() smoothing.Mode { return g.timer.Mode() }
