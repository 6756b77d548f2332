// Package smoothing eases scalar weights toward targets with frame-rate
// independent exponential smoothing, and modulates a weight between two
// levels with randomized dwell times.
package smoothing

import (
	"math"
	"math/rand"
)

// SnapEpsilon is the distance below which a value snaps onto its target.
const SnapEpsilon = 1e-4

// Step moves current toward target by 1-exp(-rate*dt). attackRate applies
// when rising and decayRate when falling. A non-positive dt or rate leaves
// current unchanged.
func Step(current, target, attackRate, decayRate, dt float64) float64 {
	if dt <= 0 || current == target {
		return current
	}
	rate := decayRate
	if target > current {
		rate = attackRate
	}
	if rate <= 0 {
		return current
	}
	next := current + (target-current)*(1-math.Exp(-rate*dt))
	if math.Abs(target-next) < SnapEpsilon {
		return target
	}
	return next
}

// State is one smoothed channel.
type State struct {
	Current    float64
	Target     float64
	AttackRate float64
	DecayRate  float64
}

// Advance steps Current toward Target and returns it.
func (s *State) Advance(dt float64) float64 {
	s.Current = Step(s.Current, s.Target, s.AttackRate, s.DecayRate, dt)
	return s.Current
}

// Range is a closed interval of seconds.
type Range struct {
	Min float64
	Max float64
}

// Sample returns a uniform value in [Min, Max]. An inverted range yields Min.
func (r Range) Sample(rng *rand.Rand) float64 {
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + rng.Float64()*span
}
