// Package model contains domain models passed between layers.
package model

import "time"

// Kind identifies what an Event asks the avatar loop to do.
type Kind string

// Event kinds.
const (
	KindTick            Kind = "tick"             // advance the facial rig one frame
	KindClipFinished    Kind = "clip_finished"    // a one-shot clip ended on the host
	KindAudio           Kind = "audio"            // host reported the speech clock
	KindSetEnabled      Kind = "set_enabled"      // manual scheduler override
	KindScenario        Kind = "scenario"         // switch script and/or playing flag
	KindIdleHoldExpired Kind = "idle_hold_expired" // scheduler hold timer fired
	KindClipsDeclared   Kind = "clips_declared"   // host announced its clip library
	KindGaze            Kind = "gaze"             // manual head-aim weight
	KindLuck            Kind = "luck"             // restore a luck vector
)

// AudioState is the host's view of the speech track.
type AudioState struct {
	Time   float64
	Paused bool
	Ended  bool
}

// Event is the single message type drained by the avatar loop.
type Event struct {
	EventID  string // optional, for idempotent finished reports
	Kind     Kind
	Clip     string             // finished clip name
	Token    string             // idle hold token
	Audio    AudioState         // KindAudio
	Enabled  bool               // KindSetEnabled
	Scenario string             // KindScenario
	Playing  bool               // KindScenario
	Clips    []string           // KindClipsDeclared
	Gaze     *float64           // KindGaze; nil resumes modulation
	Luck     map[string]float64 // KindLuck
	TS       time.Time
}
