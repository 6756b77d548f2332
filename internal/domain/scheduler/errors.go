package scheduler

import "errors"

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("scheduler: invalid config")
	ErrClipNotFound  = errors.New("scheduler: clip not found")
)
