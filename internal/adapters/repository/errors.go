package repository

import "errors"

// Sentinel kinds for luck store errors.
var (
	ErrNotFound       = errors.New("luck vector not found")
	ErrEmptyPool      = errors.New("pool name must not be empty")
	ErrUnknownBackend = errors.New("unknown luck store backend")
	ErrPathRequired   = errors.New("luck store path is required")
)
