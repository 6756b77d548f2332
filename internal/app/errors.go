package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrUnknownEvent    = errors.New("unknown event kind")
	ErrUnknownPool     = errors.New("unknown pool")
)
