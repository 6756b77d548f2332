package sim

import "time"

// Config holds the settings of one simulated run.
type Config struct {
	Scenario      string                   // scenario started with audio playing
	Duration      time.Duration            // simulated speech length
	Step          time.Duration            // fake clock advance per iteration
	AudioReport   time.Duration            // how often the host reports its audio clock
	ClipLengths   map[string]time.Duration // one-shot clip lengths; every key is a declared clip
	DefaultLength time.Duration            // used for declared clips with a zero length
	Settle        time.Duration            // real time granted to timers after each step
}

// DefaultClipLengths mirrors the intro avatar's animation library.
func DefaultClipLengths() map[string]time.Duration {
	return map[string]time.Duration{
		"Idle":     4 * time.Second,
		"Greeting": 2500 * time.Millisecond,
		"Talk1":    3200 * time.Millisecond,
		"Talk2":    2800 * time.Millisecond,
		"Talk3":    3600 * time.Millisecond,
		"Angry":    2 * time.Second,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Scenario == "" {
		out.Scenario = "intro"
	}
	if out.Duration <= 0 {
		out.Duration = time.Minute
	}
	if out.Step <= 0 {
		out.Step = 10 * time.Millisecond
	}
	if out.AudioReport <= 0 {
		out.AudioReport = time.Second
	}
	if len(out.ClipLengths) == 0 {
		out.ClipLengths = DefaultClipLengths()
	}
	if out.DefaultLength <= 0 {
		out.DefaultLength = 3 * time.Second
	}
	if out.Settle <= 0 {
		out.Settle = time.Millisecond
	}
	return out
}
