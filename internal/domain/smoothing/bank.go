package smoothing

// Writer receives smoothed channel values.
type Writer interface {
	SetWeight(channel string, weight float64)
}

// Bank is an ordered set of named channels sharing attack and decay rates.
type Bank struct {
	names  []string
	states map[string]*State
}

// NewBank creates channels at zero. Duplicate names are collapsed.
func NewBank(names []string, attack, decay float64) *Bank {
	b := &Bank{states: make(map[string]*State, len(names))}
	for _, n := range names {
		if _, ok := b.states[n]; ok {
			continue
		}
		b.names = append(b.names, n)
		b.states[n] = &State{AttackRate: attack, DecayRate: decay}
	}
	return b
}

// SetTarget sets one channel's target. Unknown channels are ignored.
func (b *Bank) SetTarget(name string, target float64) {
	if s, ok := b.states[name]; ok {
		s.Target = target
	}
}

// SetAllTargets sets every channel from targets; channels absent from the
// map target zero.
func (b *Bank) SetAllTargets(targets map[string]float64) {
	for _, n := range b.names {
		b.states[n].Target = targets[n]
	}
}

// Advance steps every channel by dt and writes the result to w in channel
// order. w may be nil.
func (b *Bank) Advance(dt float64, w Writer) {
	for _, n := range b.names {
		v := b.states[n].Advance(dt)
		if w != nil {
			w.SetWeight(n, v)
		}
	}
}

// Value returns a channel's current value.
func (b *Bank) Value(name string) float64 {
	if s, ok := b.states[name]; ok {
		return s.Current
	}
	return 0
}

// Names returns the channels in order.
func (b *Bank) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}
