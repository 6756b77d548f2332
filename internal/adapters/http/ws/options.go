package ws

import (
	"time"

	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets a custom logger for the hub.
func WithLogger(log logger.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.logger = log
		}
	}
}

// WithDeduper shares the finished-report deduper with the HTTP API.
func WithDeduper(d dedupe.Deduper) Option {
	return func(h *Hub) {
		if d != nil {
			h.deduper = d
		}
	}
}

// WithSendBuffer sets how many outbound messages a slow host may lag behind.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPongWait sets how long a silent host is kept. Pings go out at 90% of
// this interval.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}
