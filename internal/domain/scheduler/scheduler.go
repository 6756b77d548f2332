// Package scheduler decides which gesture clip plays next.
//
// After each one-shot clip finishes, the scheduler asks the luck picker for
// the next clip. Talking clips play once; the idle clip loops for a random
// hold, after which the scheduler picks again and prefers to leave idle.
// Picks only happen while the attached audio clock is running.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/cadence/pkg/logger"
)

// Picker chooses the next key. *luck.Picker satisfies it.
type Picker interface {
	Pick(allowed ...string) (string, bool)
	Keys() []string
	Has(key string) bool
}

// PlayOptions describe how a clip is started.
type PlayOptions struct {
	Loop bool
	Fade time.Duration
}

// ClipPlayer starts named clips on the rendering side.
type ClipPlayer interface {
	Has(name string) bool
	Play(ctx context.Context, name string, opts PlayOptions) error
}

// AudioClock reports the speech track state.
type AudioClock interface {
	CurrentTime() float64
	Paused() bool
	Ended() bool
}

// Config holds the idle behavior.
type Config struct {
	IdleKey     string
	IdleHoldMin time.Duration
	IdleHoldMax time.Duration
	Fade        time.Duration
}

// Phase is what the avatar is currently doing.
type Phase int

// Scheduler phases.
const (
	PhaseIdle Phase = iota
	PhasePlayingOnce
	PhasePlayingLoop
)

func (p Phase) String() string {
	switch p {
	case PhasePlayingOnce:
		return "playing_once"
	case PhasePlayingLoop:
		return "playing_loop"
	default:
		return "idle"
	}
}

// State is a snapshot of the scheduler.
type State struct {
	Phase        Phase
	ActiveKey    string
	Enabled      bool
	Attached     bool
	HoldPending  bool
	HoldDeadline time.Time
	Session      string
}

// Scheduler owns the pick-and-play cycle for one avatar. Methods are safe to
// call from multiple goroutines, but the observer and collaborators must not
// call back into the scheduler synchronously.
type Scheduler struct {
	mu sync.Mutex

	picker  Picker
	cfg     Config
	clock   clockwork.Clock
	rng     *rand.Rand
	log     logger.Logger
	notify  func(token string)
	observe func(Transition)

	player  ClipPlayer
	audio   AudioClock
	enabled bool
	phase   Phase
	active  string
	session string

	hold         clockwork.Timer
	holdToken    string
	holdDeadline time.Time
}

// New validates cfg and builds a detached, disabled scheduler.
func New(picker Picker, cfg Config, opts ...Option) (*Scheduler, error) {
	if picker == nil {
		return nil, fmt.Errorf("%w: nil picker", ErrInvalidConfig)
	}
	if cfg.IdleKey == "" {
		return nil, fmt.Errorf("%w: empty idle key", ErrInvalidConfig)
	}
	if cfg.IdleHoldMin < 0 || cfg.IdleHoldMax < cfg.IdleHoldMin {
		return nil, fmt.Errorf("%w: idle hold range [%s,%s]", ErrInvalidConfig, cfg.IdleHoldMin, cfg.IdleHoldMax)
	}

	s := &Scheduler{
		picker: picker,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // animation variety
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notify == nil {
		s.notify = func(token string) { s.ResolveIdleHold(context.Background(), token) }
	}
	if !picker.Has(cfg.IdleKey) {
		s.log.Warn(context.Background(), "idle key is not in the pool; idle holds will never start",
			logger.String("idle_key", cfg.IdleKey))
	}
	return s, nil
}

// Attach binds the player and audio clock and starts a new session. Any
// pending idle hold from the previous session is cancelled.
func (s *Scheduler) Attach(ctx context.Context, player ClipPlayer, audio AudioClock) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelHoldLocked(ctx)
	s.player = player
	s.audio = audio
	s.session = uuid.NewString()
	s.phase = PhaseIdle
	s.active = ""
	s.log.Debug(ctx, "scheduler attached", logger.String("session", s.session))
	return s.session
}

// Detach drops the collaborators and cancels any pending hold.
func (s *Scheduler) Detach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelHoldLocked(ctx)
	s.player = nil
	s.audio = nil
	s.session = ""
	s.phase = PhaseIdle
	s.active = ""
}

// SetEnabled turns scheduling on or off. Disabling cancels a pending hold
// and resets the phase. Repeating the current value is a no-op.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	if !enabled {
		s.cancelHoldLocked(ctx)
		s.phase = PhaseIdle
		s.active = ""
	}
	s.emit(Transition{Kind: TransitionEnabled, Enabled: enabled})
}

// Enabled reports whether scheduling is on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// HandleClipFinished reacts to the end of a one-shot clip.
func (s *Scheduler) HandleClipFinished(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.player == nil {
		return
	}
	if s.holdToken != "" {
		// Looping idle never finishes; a stray report must not double-schedule.
		s.emit(Transition{Kind: TransitionIgnored, Key: s.active})
		return
	}
	if !s.audioRunningLocked() {
		s.emit(Transition{Kind: TransitionGated})
		return
	}

	next, ok := s.picker.Pick()
	if !ok {
		s.emit(Transition{Kind: TransitionNoCandidate})
		return
	}
	s.emit(Transition{Kind: TransitionPicked, Key: next})

	if next == s.cfg.IdleKey {
		s.enterIdleLocked(ctx)
		return
	}
	s.playOnceLocked(ctx, next)
}

// ResolveIdleHold is called with the token handed to the hold notifier once
// the hold elapses. Stale tokens are ignored.
func (s *Scheduler) ResolveIdleHold(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" || token != s.holdToken {
		return
	}
	s.hold = nil
	s.holdToken = ""
	s.holdDeadline = time.Time{}

	if !s.enabled || s.player == nil {
		return
	}
	s.emit(Transition{Kind: TransitionHoldResolved, Key: s.active})
	if !s.audioRunningLocked() {
		s.emit(Transition{Kind: TransitionGated})
		return
	}

	next, ok := s.picker.Pick()
	if ok && next == s.cfg.IdleKey {
		next, ok = "", false
		if others := s.nonIdleKeys(); len(others) > 0 {
			next, ok = s.picker.Pick(others...)
		}
	}
	if !ok {
		// Only idle left: keep idling.
		s.emit(Transition{Kind: TransitionNoCandidate})
		s.enterIdleLocked(ctx)
		return
	}
	s.emit(Transition{Kind: TransitionPicked, Key: next})
	if !s.playOnceLocked(ctx, next) {
		// Nothing would ever finish; go back to holding.
		s.enterIdleLocked(ctx)
	}
}

// State returns a snapshot.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:        s.phase,
		ActiveKey:    s.active,
		Enabled:      s.enabled,
		Attached:     s.player != nil,
		HoldPending:  s.holdToken != "",
		HoldDeadline: s.holdDeadline,
		Session:      s.session,
	}
}

// Config returns the idle configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Picker returns the picker, for persisting its luck.
func (s *Scheduler) Picker() Picker { return s.picker }

func (s *Scheduler) audioRunningLocked() bool {
	return s.audio != nil && !s.audio.Paused() && !s.audio.Ended()
}

func (s *Scheduler) nonIdleKeys() []string {
	keys := s.picker.Keys()
	out := keys[:0:0]
	for _, k := range keys {
		if k != s.cfg.IdleKey {
			out = append(out, k)
		}
	}
	return out
}

func (s *Scheduler) playOnceLocked(ctx context.Context, key string) bool {
	if err := s.playLocked(ctx, key, false); err != nil {
		return false
	}
	s.phase = PhasePlayingOnce
	s.active = key
	s.emit(Transition{Kind: TransitionPlayOnce, Key: key})
	return true
}

func (s *Scheduler) enterIdleLocked(ctx context.Context) {
	if err := s.playLocked(ctx, s.cfg.IdleKey, true); err != nil {
		return
	}
	s.phase = PhasePlayingLoop
	s.active = s.cfg.IdleKey

	wait := s.sampleHold()
	token := uuid.NewString()
	s.holdToken = token
	s.holdDeadline = s.clock.Now().Add(wait)
	notify := s.notify
	s.hold = s.clock.AfterFunc(wait, func() { notify(token) })

	s.log.Debug(ctx, "idle hold started", logger.Duration("hold", wait))
	s.emit(Transition{Kind: TransitionHoldStarted, Key: s.cfg.IdleKey, Hold: wait})
}

// playLocked asks the player for key. A missing clip is a configuration
// inconsistency and leaves the state untouched.
func (s *Scheduler) playLocked(ctx context.Context, key string, loop bool) error {
	if !s.player.Has(key) {
		err := fmt.Errorf("%w: %q", ErrClipNotFound, key)
		s.log.Warn(ctx, "picked clip is missing from the player", logger.String("clip", key), logger.Error(err))
		s.emit(Transition{Kind: TransitionMissingClip, Key: key})
		return err
	}
	if err := s.player.Play(ctx, key, PlayOptions{Loop: loop, Fade: s.cfg.Fade}); err != nil {
		s.log.Error(ctx, "play clip failed", logger.String("clip", key), logger.Error(err))
		if errors.Is(err, ErrClipNotFound) {
			s.emit(Transition{Kind: TransitionMissingClip, Key: key})
		}
		return err
	}
	return nil
}

// sampleHold draws floor(min + u*(max-min)) at millisecond resolution.
func (s *Scheduler) sampleHold() time.Duration {
	lo := s.cfg.IdleHoldMin.Milliseconds()
	span := s.cfg.IdleHoldMax.Milliseconds() - lo
	if span <= 0 {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+int64(s.rng.Float64()*float64(span))) * time.Millisecond
}

func (s *Scheduler) cancelHoldLocked(ctx context.Context) {
	if s.holdToken == "" {
		return
	}
	if s.hold != nil {
		s.hold.Stop()
	}
	s.hold = nil
	s.holdToken = ""
	s.holdDeadline = time.Time{}
	s.log.Debug(ctx, "idle hold cancelled")
	s.emit(Transition{Kind: TransitionHoldCancelled})
}

func (s *Scheduler) emit(t Transition) {
	if s.observe == nil {
		return
	}
	t.Session = s.session
	t.At = s.clock.Now()
	s.observe(t)
}
