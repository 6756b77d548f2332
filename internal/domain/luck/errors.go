package luck

import "errors"

// Sentinel errors for pool construction.
var (
	ErrEmptyKey     = errors.New("luck: empty item key")
	ErrDuplicateKey = errors.New("luck: duplicate item key")
)
