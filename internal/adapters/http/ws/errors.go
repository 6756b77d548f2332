package ws

import "errors"

// Sentinel kinds for websocket errors.
var (
	ErrBadMessage   = errors.New("malformed host message")
	ErrBackpressure = errors.New("event queue full")
)
