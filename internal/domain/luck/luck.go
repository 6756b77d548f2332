// Package luck implements the weighted fairness picker used to choose the
// next gesture clip.
//
// Every item carries a luck value. A pick draws proportionally to luck, then
// resets the winner to its base luck and grows every other considered item,
// so items that have not played for a while become steadily more likely.
package luck

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// MaxLuck caps every luck value so the sum over a pool stays finite.
const MaxLuck = 1e12

// Item configures one pool entry.
type Item struct {
	Key          string
	StartingLuck float64
	BaseLuck     float64
	LuckGrowth   float64
}

type entry struct {
	Item
	current float64
}

// Picker is a pool of items with per-item luck. It is not safe for
// concurrent use; one scheduler owns it.
type Picker struct {
	entries    []*entry
	index      map[string]int
	rng        *rand.Rand
	onDeadlock func(keys []string)
}

// NewPicker builds a picker from items in order. Keys must be non-empty and
// unique. Luck values are clamped to [0, MaxLuck].
func NewPicker(items []Item, opts ...Option) (*Picker, error) {
	p := &Picker{
		index: make(map[string]int, len(items)),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // animation variety, not security
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, it := range items {
		if err := p.Add(it); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends an item to the pool.
func (p *Picker) Add(it Item) error {
	if it.Key == "" {
		return ErrEmptyKey
	}
	if _, ok := p.index[it.Key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, it.Key)
	}
	it.StartingLuck = clampLuck(it.StartingLuck)
	it.BaseLuck = clampLuck(it.BaseLuck)
	it.LuckGrowth = clampLuck(it.LuckGrowth)

	p.index[it.Key] = len(p.entries)
	p.entries = append(p.entries, &entry{Item: it, current: it.StartingLuck})
	return nil
}

// Pick chooses a key. With no arguments the whole pool is considered;
// otherwise only pool items named in allowed, in pool order. Unknown keys in
// allowed are ignored. It returns false when no candidate exists.
func (p *Picker) Pick(allowed ...string) (string, bool) {
	cands := p.candidates(allowed)
	if len(cands) == 0 {
		return "", false
	}

	total := 0.0
	for _, e := range cands {
		total += e.current
	}
	if total <= 0 {
		keys := make([]string, 0, len(cands))
		for _, e := range cands {
			bump := e.BaseLuck
			if bump == 0 {
				bump = 1
			}
			e.current += bump
			total += bump
			keys = append(keys, e.Key)
		}
		if p.onDeadlock != nil {
			p.onDeadlock(keys)
		}
	}

	// Draw on weights scaled by the largest one if the plain sum overflowed.
	scale := 1.0
	if math.IsInf(total, 1) {
		scale, total = 0, 0
		for _, e := range cands {
			scale = max(scale, e.current)
		}
		for _, e := range cands {
			total += e.current / scale
		}
	}

	r := p.rng.Float64() * total
	chosen := cands[len(cands)-1]
	acc := 0.0
	for _, e := range cands {
		if e.current <= 0 {
			continue
		}
		acc += e.current / scale
		if r < acc {
			chosen = e
			break
		}
	}
	if chosen.current <= 0 {
		// Float rounding pushed r past the last positive entry.
		for i := len(cands) - 1; i >= 0; i-- {
			if cands[i].current > 0 {
				chosen = cands[i]
				break
			}
		}
	}

	for _, e := range cands {
		if e == chosen {
			e.current = e.BaseLuck
			continue
		}
		e.current = clampLuck(e.current + e.LuckGrowth)
	}
	return chosen.Key, true
}

func (p *Picker) candidates(allowed []string) []*entry {
	if len(allowed) == 0 {
		return p.entries
	}
	want := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		want[k] = struct{}{}
	}
	out := make([]*entry, 0, len(want))
	for _, e := range p.entries {
		if _, ok := want[e.Key]; ok {
			out = append(out, e)
		}
	}
	return out
}

// State returns a copy of the current luck vector.
func (p *Picker) State() map[string]float64 {
	out := make(map[string]float64, len(p.entries))
	for _, e := range p.entries {
		out[e.Key] = e.current
	}
	return out
}

// SetState restores a luck vector. Unknown keys are ignored and values
// clamp to [0, MaxLuck].
func (p *Picker) SetState(state map[string]float64) {
	for k, v := range state {
		if i, ok := p.index[k]; ok {
			p.entries[i].current = clampLuck(v)
		}
	}
}

// Luck returns the current luck of key.
func (p *Picker) Luck(key string) (float64, bool) {
	i, ok := p.index[key]
	if !ok {
		return 0, false
	}
	return p.entries[i].current, true
}

// Has reports whether key is in the pool.
func (p *Picker) Has(key string) bool {
	_, ok := p.index[key]
	return ok
}

// Keys returns the pool keys in insertion order.
func (p *Picker) Keys() []string {
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Key
	}
	return out
}

// Len returns the pool size.
func (p *Picker) Len() int { return len(p.entries) }

// Reset restores every item to its starting luck.
func (p *Picker) Reset() {
	for _, e := range p.entries {
		e.current = e.StartingLuck
	}
}

func clampLuck(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > MaxLuck:
		return MaxLuck
	}
	return v
}
