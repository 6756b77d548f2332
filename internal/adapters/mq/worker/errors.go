package worker

import "errors"

// ErrHandlerPanic wraps a recovered handler panic.
var ErrHandlerPanic = errors.New("event handler panicked")
