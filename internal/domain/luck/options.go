package luck

import "math/rand"

// Option applies a configuration option to the Picker.
type Option func(*Picker)

// WithRand sets the random source used for draws.
func WithRand(rng *rand.Rand) Option {
	return func(p *Picker) {
		if rng != nil {
			p.rng = rng
		}
	}
}

// WithSeed makes draws reproducible.
func WithSeed(seed int64) Option {
	return func(p *Picker) {
		p.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic seed for reproducible runs
	}
}

// WithDeadlockHook is called with the candidate keys whenever every
// candidate had zero luck and was bumped before drawing.
func WithDeadlockHook(fn func(keys []string)) Option {
	return func(p *Picker) {
		p.onDeadlock = fn
	}
}
