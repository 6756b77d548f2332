package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Handle applies one event. It implements worker.Handler and is only called
// from the avatar loop.
func (s *Service) Handle(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	if e.Kind == model.KindTick {
		return s.tick()
	}

	var err error
	switch e.Kind {
	case model.KindClipFinished:
		s.active.sched.HandleClipFinished(ctx)
	case model.KindIdleHoldExpired:
		s.active.sched.ResolveIdleHold(ctx, e.Token)
	case model.KindAudio:
		err = s.handleAudio(ctx, e.Audio)
	case model.KindSetEnabled:
		s.active.sched.SetEnabled(ctx, e.Enabled)
	case model.KindScenario:
		err = s.applyScenario(ctx, e.Scenario, e.Playing)
	case model.KindClipsDeclared:
		err = s.reattach(ctx, len(e.Clips))
	case model.KindGaze:
		s.rig.SetManualGaze(e.Gaze)
	case model.KindLuck:
		err = s.restoreLuck(ctx, e.Luck)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
	}
	s.refreshSnapshot()
	return err
}

func (s *Service) handleAudio(ctx context.Context, a model.AudioState) error {
	s.audio.Report(a.Time, a.Paused, a.Ended)
	if a.Ended && s.playing {
		// Speech is over: back to the idle loop with scheduling off.
		return s.applyScenario(ctx, s.scenario, false)
	}
	return nil
}

// reattach starts a new scheduler session after the host (re)declared its
// clip library and puts the current script back on screen. Speech in
// progress keeps its position and cue timeline.
func (s *Service) reattach(ctx context.Context, clips int) error {
	session := s.active.sched.Attach(ctx, s.player, s.audio)
	s.logger.Info(ctx, "clip library declared",
		logger.Int("clips", clips),
		logger.String("session", session),
	)
	if !s.playing {
		return s.applyScenario(ctx, s.scenario, false)
	}
	return s.resume(ctx)
}

// resume replays what the playing script should show without rewinding the
// audio mirror or replaying the kickoff clip. A scheduling script picks a
// fresh clip; a gated one loops idle until audio runs again.
func (s *Service) resume(ctx context.Context) error {
	sc, ok := s.cfg.Scenarios[s.scenario]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, s.scenario)
	}
	sched := s.active.sched
	sched.SetEnabled(ctx, false)

	switch {
	case sc.Schedule:
		sched.SetEnabled(ctx, true)
		if s.audio.Running() {
			sched.HandleClipFinished(ctx)
		} else {
			s.playClip(ctx, s.cfg.IdleKey, true)
		}
	case sc.KickoffClip != "" && sc.KickoffLoop:
		s.playClip(ctx, sc.KickoffClip, true)
	default:
		s.playClip(ctx, s.cfg.IdleKey, true)
	}
	s.logger.Info(ctx, "scenario resumed",
		logger.String("scenario", s.scenario),
		logger.Float64("audio_time", s.audio.CurrentTime()),
	)
	return nil
}

// applyScenario switches script and playing flag.
//
// Not playing: idle loop, scheduler off. Playing: the kickoff clip starts
// (once or looped) and the scheduler is enabled only if the scenario
// schedules; with no kickoff clip a scheduling scenario picks immediately.
func (s *Service) applyScenario(ctx context.Context, name string, playing bool) error {
	sc, ok := s.cfg.Scenarios[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	next, ok := s.pools[sc.Pool]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPool, sc.Pool)
	}
	if next != s.active {
		s.active.sched.SetEnabled(ctx, false)
		s.active.sched.Detach(ctx)
		next.sched.Attach(ctx, s.player, s.audio)
		s.active = next
	}

	if name != s.scenario || s.timeline == nil {
		tl, err := s.cues.Timeline(name)
		if err != nil {
			metrics.RecordConfigInconsistency("cues")
			s.logger.Warn(ctx, "cue timeline unavailable, mouth stays at rest",
				logger.String("scenario", name), logger.Error(err))
		}
		s.timeline = tl
	}
	s.scenario = name
	s.playing = playing
	s.audio.Restart(playing)
	s.speaking = false
	s.rig.SetTimeline(nil)

	sched := s.active.sched
	// Reset phase and any pending hold before the new script starts.
	sched.SetEnabled(ctx, false)

	if !playing {
		s.playClip(ctx, s.cfg.IdleKey, true)
		s.logger.Info(ctx, "scenario idle", logger.String("scenario", name))
		return nil
	}

	sched.SetEnabled(ctx, sc.Schedule)
	switch {
	case sc.KickoffClip != "":
		if !s.playClip(ctx, sc.KickoffClip, sc.KickoffLoop) && sc.Schedule {
			sched.HandleClipFinished(ctx)
		}
	case sc.Schedule:
		sched.HandleClipFinished(ctx)
	default:
		s.playClip(ctx, s.cfg.IdleKey, true)
	}
	s.logger.Info(ctx, "scenario playing",
		logger.String("scenario", name),
		logger.String("kickoff", sc.KickoffClip),
		logger.Bool("schedule", sc.Schedule),
	)
	return nil
}

// playClip starts a clip outside the scheduler. A missing clip is counted
// as a configuration inconsistency.
func (s *Service) playClip(ctx context.Context, name string, loop bool) bool {
	if !s.player.Has(name) {
		metrics.RecordConfigInconsistency("missing_clip")
		s.logger.Warn(ctx, "clip is missing from the player", logger.String("clip", name))
		return false
	}
	if err := s.player.Play(ctx, name, scheduler.PlayOptions{Loop: loop, Fade: s.cfg.Fade()}); err != nil {
		s.logger.Error(ctx, "play clip failed", logger.String("clip", name), logger.Error(err))
		return false
	}
	return true
}

func (s *Service) restoreLuck(ctx context.Context, state map[string]float64) error {
	p := s.active
	p.picker.SetState(state)
	err := s.store.Save(ctx, p.name, p.picker.State())
	metrics.RecordStoreOp("save", err)
	if err != nil {
		return fmt.Errorf("save luck for %s: %w", p.name, err)
	}
	s.logger.Info(ctx, "luck restored", logger.String("pool", p.name))
	return nil
}

// tick computes and publishes one frame: cue lookup, targets, smoothing,
// then the channel write.
func (s *Service) tick() error {
	start := time.Now()

	now := s.clock.Since(s.epoch).Seconds()
	dt := now - s.lastTick
	if dt < 0 {
		dt = 0
	}
	s.lastTick = now

	speaking := s.playing && s.audio.Running()
	if speaking != s.speaking {
		s.speaking = speaking
		if speaking {
			s.rig.SetTimeline(s.timeline)
		} else {
			s.rig.SetTimeline(nil)
		}
	}

	at := s.audio.CurrentTime()
	frame, category := s.rig.Tick(facial.Input{Now: now, DT: dt, AudioTime: at})
	if speaking && s.timeline != nil && !s.timeline.Empty() {
		if _, ok := s.timeline.ActiveCue(at); !ok {
			metrics.RecordCueMiss()
		}
	}

	s.seq++
	if err := s.sink.PublishFrame(s.seq, category, frame); err != nil {
		return fmt.Errorf("publish frame %d: %w", s.seq, err)
	}
	metrics.RecordFramePublished(float64(time.Since(start).Microseconds()) / 1000)

	s.snapMu.Lock()
	s.snap.frames = s.seq
	s.snap.category = category
	s.snapMu.Unlock()
	return nil
}
