package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// remoteAudio mirrors the host's speech clock. Between reports the playback
// position is extrapolated from the last report using the service clock.
type remoteAudio struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	time     float64
	paused   bool
	ended    bool
	reported time.Time
}

func newRemoteAudio(clock clockwork.Clock) *remoteAudio {
	return &remoteAudio{clock: clock, paused: true, reported: clock.Now()}
}

// Report stores a host report.
func (a *remoteAudio) Report(t float64, paused, ended bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.time = t
	a.paused = paused
	a.ended = ended
	a.reported = a.clock.Now()
}

// Restart rewinds to zero, running or paused.
func (a *remoteAudio) Restart(running bool) {
	a.Report(0, !running, false)
}

// CurrentTime implements scheduler.AudioClock.
func (a *remoteAudio) CurrentTime() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.paused || a.ended {
		return a.time
	}
	return a.time + a.clock.Since(a.reported).Seconds()
}

// Paused implements scheduler.AudioClock.
func (a *remoteAudio) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// Ended implements scheduler.AudioClock.
func (a *remoteAudio) Ended() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ended
}

// Running reports whether speech is advancing.
func (a *remoteAudio) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.paused && !a.ended
}
