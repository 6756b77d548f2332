package cues

import "errors"

// Sentinel errors for timeline loading.
var (
	ErrMalformedTimeline = errors.New("cues: malformed timeline")
	ErrInvalidScenario   = errors.New("cues: invalid scenario name")
)
