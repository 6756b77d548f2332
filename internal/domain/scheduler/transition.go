package scheduler

import "time"

// TransitionKind names a scheduler decision.
type TransitionKind string

// Transition kinds.
const (
	TransitionEnabled       TransitionKind = "enabled"
	TransitionPicked        TransitionKind = "picked"
	TransitionPlayOnce      TransitionKind = "play_once"
	TransitionHoldStarted   TransitionKind = "hold_started"
	TransitionHoldResolved  TransitionKind = "hold_resolved"
	TransitionHoldCancelled TransitionKind = "hold_cancelled"
	TransitionGated         TransitionKind = "audio_gated"
	TransitionNoCandidate   TransitionKind = "no_candidate"
	TransitionMissingClip   TransitionKind = "missing_clip"
	TransitionIgnored       TransitionKind = "finished_ignored"
)

// Transition is reported to the observer for every decision.
type Transition struct {
	Kind    TransitionKind
	Key     string
	Hold    time.Duration
	Enabled bool
	Session string
	At      time.Time
}
