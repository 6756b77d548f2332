package facial

import (
	"math/rand"

	"github.com/okian/cadence/internal/domain/cues"
	"github.com/okian/cadence/internal/domain/smoothing"
)

// RigConfig bundles the three drivers.
type RigConfig struct {
	LipSync LipSyncConfig
	Blink   BlinkConfig
	Gaze    smoothing.DwellConfig
}

// DefaultRigConfig returns the built-in tuning.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		LipSync: DefaultLipSyncConfig(),
		Blink:   DefaultBlinkConfig(),
		Gaze:    DefaultGazeConfig(),
	}
}

// Input is what a frame depends on besides elapsed time.
type Input struct {
	// Now is the rig clock in seconds.
	Now float64
	// DT is the time since the previous frame.
	DT float64
	// AudioTime is the speech playback position.
	AudioTime float64
}

// Rig runs lip-sync, blink and gaze for one avatar and produces a frame per
// tick. It is owned by a single goroutine.
type Rig struct {
	lip   *LipSync
	blink *Blink
	gaze  *Gaze
}

// NewRig creates the drivers starting at now.
func NewRig(cfg RigConfig, now float64, rng *rand.Rand) *Rig {
	return &Rig{
		lip:   NewLipSync(cfg.LipSync),
		blink: NewBlink(cfg.Blink, now, rng),
		gaze:  NewGaze(cfg.Gaze, now, rng),
	}
}

// SetTimeline installs the cue timeline for the current speech.
func (r *Rig) SetTimeline(t *cues.Timeline) { r.lip.SetTimeline(t) }

// SetManualGaze overrides the head-aim weight; nil resumes modulation.
func (r *Rig) SetManualGaze(w *float64) { r.gaze.SetManual(w) }

// Tick computes one frame. The returned category is the active mouth shape.
func (r *Rig) Tick(in Input) (Frame, string) {
	f := make(Frame, len(r.lip.Channels())+3)
	category := r.lip.Tick(in.AudioTime, in.DT, f)
	r.blink.Tick(in.Now, f)
	r.gaze.Tick(in.Now, in.DT, f)
	return f, category
}

// LipSync exposes the viseme driver.
func (r *Rig) LipSync() *LipSync { return r.lip }
