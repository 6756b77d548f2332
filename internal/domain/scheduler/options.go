package scheduler

import (
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/okian/cadence/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithClock sets the timer facility. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRand sets the random source for idle hold sampling.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHoldNotifier routes idle hold expiry. The function runs on the timer
// goroutine and should hand the token to the goroutine that owns the
// scheduler, which then calls ResolveIdleHold.
func WithHoldNotifier(fn func(token string)) Option {
	return func(s *Scheduler) {
		s.notify = fn
	}
}

// WithObserver receives every transition while the scheduler lock is held.
func WithObserver(fn func(Transition)) Option {
	return func(s *Scheduler) {
		s.observe = fn
	}
}
