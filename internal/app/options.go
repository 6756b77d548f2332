package service

import (
	"github.com/jonboulle/clockwork"

	"github.com/okian/cadence/internal/adapters/repository"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock behind frame ticks, idle holds and audio
// extrapolation. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPlayer replaces the websocket hub as the clip player.
func WithPlayer(p scheduler.ClipPlayer) Option {
	return func(s *Service) {
		if p != nil {
			s.player = p
		}
	}
}

// WithFrameSink replaces the websocket hub as the frame consumer.
func WithFrameSink(sink FrameSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithStore sets the luck store instead of opening the configured backend.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}
