package service

import (
	"context"
	"time"

	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/internal/domain/types"
	"github.com/okian/cadence/pkg/metrics"
)

// snapshot is what readers outside the loop may see.
type snapshot struct {
	scenario string
	playing  bool
	category string
	frames   uint64
	picks    map[string]int
	luck     map[string]float64
	sched    *scheduler.Scheduler
}

func newSnapshot() snapshot {
	return snapshot{picks: make(map[string]int), luck: make(map[string]float64)}
}

// refreshSnapshot copies loop-owned state for readers. Called on the loop
// after every non-tick event.
func (s *Service) refreshSnapshot() {
	luck := s.active.picker.State()
	metrics.UpdateLuck(luck)

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap.scenario = s.scenario
	s.snap.playing = s.playing
	s.snap.luck = luck
	s.snap.sched = s.active.sched
}

// Stats returns the latest snapshot.
func (s *Service) Stats(ctx context.Context) types.Stats {
	s.snapMu.RLock()
	out := types.Stats{
		Scenario: s.snap.scenario,
		Playing:  s.snap.playing,
		Category: s.snap.category,
		Frames:   s.snap.frames,
		Picks:    make(map[string]int, len(s.snap.picks)),
		Luck:     copyLuck(s.snap.luck),
	}
	for k, v := range s.snap.picks {
		out.Picks[k] = v
	}
	sched := s.snap.sched
	s.snapMu.RUnlock()

	if sched != nil {
		st := sched.State()
		out.Scheduler = types.SchedulerStatus{
			Enabled:     st.Enabled,
			Attached:    st.Attached,
			Phase:       st.Phase.String(),
			ActiveClip:  st.ActiveKey,
			HoldPending: st.HoldPending,
			Session:     st.Session,
		}
		if !st.HoldDeadline.IsZero() {
			out.Scheduler.HoldDeadline = st.HoldDeadline.UTC().Format(time.RFC3339Nano)
		}
	}
	out.Scheduler.AudioTime = s.audio.CurrentTime()
	out.QueueLength = s.queue.Len(ctx)
	out.Clients = s.hub.Clients()
	return out
}

// Luck returns the luck vector of the active pool.
func (s *Service) Luck(context.Context) map[string]float64 {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return copyLuck(s.snap.luck)
}

func copyLuck(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
