package sim

import "errors"

// Sentinel errors for simulated runs.
var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrBackpressure    = errors.New("avatar loop rejected the event")
)
