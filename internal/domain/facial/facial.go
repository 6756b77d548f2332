// Package facial turns cue timelines and timers into per-frame blendshape
// weights: lip-sync visemes, eye blinks and the head-aim blend.
package facial

import (
	"maps"
	"math"
	"slices"
)

// Channel names written by the drivers.
const (
	ChannelBlinkLeft  = "eyeBlinkLeft"
	ChannelBlinkRight = "eyeBlinkRight"
	ChannelHeadAim    = "headAim"
)

// Sink receives channel weights.
type Sink interface {
	SetWeight(channel string, weight float64)
}

// Frame is a set of channel weights in [0,1].
type Frame map[string]float64

// SetWeight implements Sink, clamping to [0,1].
func (f Frame) SetWeight(channel string, weight float64) {
	f[channel] = clamp01(weight)
}

// Channels returns the channel names in sorted order.
func (f Frame) Channels() []string {
	return slices.Sorted(maps.Keys(f))
}

// Clone copies the frame.
func (f Frame) Clone() Frame {
	return maps.Clone(f)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
