// Package types contains request and response bodies shared by the HTTP API
// and the websocket protocol.
package types

// SchedulerStatus describes the clip scheduler.
type SchedulerStatus struct {
	Enabled      bool    `json:"enabled"`
	Attached     bool    `json:"attached"`
	Phase        string  `json:"phase"`
	ActiveClip   string  `json:"active_clip,omitempty"`
	HoldPending  bool    `json:"hold_pending"`
	HoldDeadline string  `json:"hold_deadline,omitempty"`
	Session      string  `json:"session,omitempty"`
	AudioTime    float64 `json:"audio_time"`
}

// Stats is the body of GET /stats.
type Stats struct {
	Scenario    string             `json:"scenario"`
	Playing     bool               `json:"playing"`
	Category    string             `json:"category"`
	Scheduler   SchedulerStatus    `json:"scheduler"`
	Picks       map[string]int     `json:"picks"`
	Luck        map[string]float64 `json:"luck"`
	Frames      uint64             `json:"frames"`
	QueueLength int                `json:"queue_length"`
	Clients     int                `json:"clients"`
}

// FinishedRequest reports a one-shot clip ending.
type FinishedRequest struct {
	EventID string `json:"event_id,omitempty"`
	Clip    string `json:"clip,omitempty"`
}

// AudioRequest reports the speech clock.
type AudioRequest struct {
	Time   float64 `json:"time"`
	Paused bool    `json:"paused"`
	Ended  bool    `json:"ended"`
}

// SchedulerRequest turns the scheduler on or off.
type SchedulerRequest struct {
	Enabled bool `json:"enabled"`
}

// ScenarioRequest selects a script and whether its audio plays.
type ScenarioRequest struct {
	Scenario string `json:"scenario"`
	Playing  bool   `json:"playing"`
}

// GazeRequest sets or clears the manual head-aim weight.
type GazeRequest struct {
	Weight *float64 `json:"weight"`
}

// ClipsMessage declares the host's clip library.
type ClipsMessage struct {
	Clips []string `json:"clips"`
}

// PlayCommand asks the host to start a clip.
type PlayCommand struct {
	Clip   string `json:"clip"`
	Loop   bool   `json:"loop"`
	FadeMS int64  `json:"fade_ms"`
}

// FrameMessage carries one frame of channel weights.
type FrameMessage struct {
	Seq      uint64             `json:"seq"`
	Category string             `json:"category"`
	Weights  map[string]float64 `json:"weights"`
}

// Envelope wraps every websocket message.
type Envelope struct {
	Type     string           `json:"type"`
	Play     *PlayCommand     `json:"play,omitempty"`
	Frame    *FrameMessage    `json:"frame,omitempty"`
	Clips    *ClipsMessage    `json:"clips,omitempty"`
	Finished *FinishedRequest `json:"finished,omitempty"`
	Audio    *AudioRequest    `json:"audio,omitempty"`
}

// Websocket message types.
const (
	MessagePlay     = "play"
	MessageFrame    = "frame"
	MessageClips    = "clips"
	MessageFinished = "finished"
	MessageAudio    = "audio"
)
