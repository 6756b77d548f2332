// Package service wires the animation core to its queue, transports and
// storage, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/cadence/internal/adapters/http/ws"
	eventqueue "github.com/okian/cadence/internal/adapters/mq/queue"
	"github.com/okian/cadence/internal/adapters/mq/worker"
	"github.com/okian/cadence/internal/adapters/repository"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/cues"
	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/luck"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/internal/domain/smoothing"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// FrameSink receives one frame of blend weights per tick.
type FrameSink interface {
	PublishFrame(seq uint64, category string, frame facial.Frame) error
}

// pool pairs a picker with the scheduler that owns it.
type pool struct {
	name   string
	picker *luck.Picker
	sched  *scheduler.Scheduler
}

// Service runs one avatar. Domain state is owned by the loop goroutine;
// HTTP and websocket goroutines only enqueue events and read snapshots.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	clock  clockwork.Clock
	logger logger.Logger

	queue   *eventqueue.InMemoryQueue
	loop    *worker.Loop
	deduper dedupe.Deduper
	hub     *ws.Hub
	player  scheduler.ClipPlayer
	sink    FrameSink
	store   repository.Store
	cues    *cues.Library

	audio *remoteAudio
	rig   *facial.Rig
	pools map[string]*pool

	// Loop-owned.
	active   *pool
	scenario string
	playing  bool
	timeline *cues.Timeline
	speaking bool
	epoch    time.Time
	lastTick float64
	seq      uint64

	snapMu sync.RWMutex
	snap   snapshot

	ctx     context.Context
	cancel  context.CancelFunc
	tickers sync.WaitGroup
	started bool
}

// New builds the avatar from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.snap = newSnapshot()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.EventQueueSize))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.hub = ws.NewHub(s.queue, ws.WithDeduper(s.deduper), ws.WithLogger(s.logger.Named("ws")))
	if s.player == nil {
		s.player = s.hub
	}
	if s.sink == nil {
		s.sink = s.hub
	}
	if s.store == nil {
		store, err := repository.Open(cfg.LuckStore, cfg.LuckStorePath)
		if err != nil {
			return nil, fmt.Errorf("open luck store: %w", err)
		}
		s.store = store
	}

	s.cues = cues.NewLibrary(cfg.CuesDir)
	s.audio = newRemoteAudio(s.clock)
	s.epoch = s.clock.Now()
	s.rig = facial.NewRig(rigConfig(cfg), 0, rand.New(rand.NewSource(seed+2))) //nolint:gosec // animation variety

	if err := s.buildPools(seed); err != nil {
		return nil, err
	}

	sc := cfg.Scenarios[cfg.DefaultScenario]
	s.active = s.pools[sc.Pool]
	s.scenario = cfg.DefaultScenario
	s.active.sched.Attach(s.ctx, s.player, s.audio)

	s.loop = worker.NewLoop(s.queue, s, worker.WithName("avatar-loop"), worker.WithLogger(s.logger.Named("loop")))
	return s, nil
}

func (s *Service) buildPools(seed int64) error {
	names := make([]string, 0, len(s.cfg.Pools))
	for name := range s.cfg.Pools {
		names = append(names, name)
	}
	sort.Strings(names)

	s.pools = make(map[string]*pool, len(names))
	for i, name := range names {
		name := name
		items := make([]luck.Item, 0, len(s.cfg.Pools[name]))
		for _, it := range s.cfg.Pools[name] {
			items = append(items, luck.Item{Key: it.Key, StartingLuck: it.StartingLuck, BaseLuck: it.BaseLuck, LuckGrowth: it.LuckGrowth})
		}
		picker, err := luck.NewPicker(items,
			luck.WithSeed(seed+int64(10*i)),
			luck.WithDeadlockHook(func(keys []string) {
				metrics.RecordDeadlockBump()
				s.logger.Debug(s.ctx, "every candidate had zero luck", logger.String("pool", name), logger.Any("keys", keys))
			}),
		)
		if err != nil {
			return fmt.Errorf("pool %s: %w", name, err)
		}

		sched, err := scheduler.New(picker, scheduler.Config{
			IdleKey:     s.cfg.IdleKey,
			IdleHoldMin: s.cfg.IdleHoldMin(),
			IdleHoldMax: s.cfg.IdleHoldMax(),
			Fade:        s.cfg.Fade(),
		},
			scheduler.WithClock(s.clock),
			scheduler.WithRand(rand.New(rand.NewSource(seed+int64(10*i)+1))), //nolint:gosec // animation variety
			scheduler.WithLogger(s.logger.Named("scheduler-"+name)),
			scheduler.WithHoldNotifier(s.notifyHold),
			scheduler.WithObserver(s.observe),
		)
		if err != nil {
			return fmt.Errorf("pool %s: %w", name, err)
		}
		s.pools[name] = &pool{name: name, picker: picker, sched: sched}
	}
	return nil
}

func rigConfig(cfg *config.Config) facial.RigConfig {
	rc := facial.DefaultRigConfig()
	rc.LipSync.Attack = cfg.LipSyncAttack
	rc.LipSync.Decay = cfg.LipSyncDecay
	rc.LipSync.MaxWeight = cfg.LipSyncMaxWeight
	if len(cfg.VisemePresets) > 0 {
		rc.LipSync.Presets = facial.Presets(cfg.VisemePresets)
	}
	rc.Blink = facial.BlinkConfig{
		Interval:  smoothing.Range{Min: cfg.BlinkMinInterval, Max: cfg.BlinkMaxInterval},
		Duration:  cfg.BlinkDuration,
		Asymmetry: cfg.BlinkAsymmetry,
	}
	rc.Gaze = smoothing.DwellConfig{
		High:      cfg.GazeHigh,
		Low:       cfg.GazeLow,
		HighDwell: smoothing.Range{Min: cfg.GazeTrackMin, Max: cfg.GazeTrackMax},
		LowDwell:  smoothing.Range{Min: cfg.GazeAwayMin, Max: cfg.GazeAwayMax},
		Ease:      cfg.GazeEase,
	}
	return rc
}

// Start restores saved luck, selects the default scenario without audio and
// starts the loop and the frame ticker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting animation service...")

	for _, p := range s.pools {
		saved, err := s.store.Load(ctx, p.name)
		metrics.RecordStoreOp("load", ignoreNotFound(err))
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			s.logger.Warn(ctx, "could not restore luck", logger.String("pool", p.name), logger.Error(err))
		default:
			p.picker.SetState(saved)
			s.logger.Info(ctx, "restored luck", logger.String("pool", p.name), logger.Int("keys", len(saved)))
		}
	}

	if err := s.applyScenario(ctx, s.scenario, false); err != nil {
		return err
	}
	s.refreshSnapshot()

	go s.loop.Run(s.ctx)
	s.tickers.Add(1)
	go s.runTicker(s.ctx)

	s.started = true
	s.logger.Info(ctx, "animation service started",
		logger.String("scenario", s.scenario),
		logger.Int("tickHz", s.cfg.TickHz),
		logger.Int("queueSize", s.cfg.EventQueueSize),
		logger.String("luckStore", s.cfg.LuckStore),
	)
	return nil
}

// Stop drains the queue, persists luck and disconnects hosts.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping animation service...")

	_ = s.queue.Close()
	select {
	case <-s.loop.Done():
	case <-ctx.Done():
		if err := s.loop.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "avatar loop did not drain", logger.Error(err))
		}
	}
	s.cancel()
	s.tickers.Wait()

	var errs []error
	for _, p := range s.pools {
		p.sched.SetEnabled(ctx, false)
		p.sched.Detach(ctx)
		err := s.store.Save(ctx, p.name, p.picker.State())
		metrics.RecordStoreOp("save", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("save luck for %s: %w", p.name, err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close luck store: %w", err))
	}
	s.hub.Close()

	s.started = false
	s.logger.Info(ctx, "animation service stopped")
	return errors.Join(errs...)
}

func (s *Service) runTicker(ctx context.Context) {
	defer s.tickers.Done()
	ticker := s.clock.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			// A full queue drops the frame; the next tick catches up via dt.
			s.queue.Enqueue(ctx, model.Event{Kind: model.KindTick, TS: now})
		}
	}
}

// notifyHold runs on the timer goroutine and hands the token to the loop.
func (s *Service) notifyHold(token string) {
	if !s.queue.EnqueueWait(s.ctx, model.Event{Kind: model.KindIdleHoldExpired, Token: token, TS: s.clock.Now()}) {
		s.logger.Debug(s.ctx, "idle hold expiry dropped", logger.String("token", token))
	}
}

// observe maps scheduler transitions to metrics and counters. It runs with
// the scheduler lock held and must not call back into the scheduler.
func (s *Service) observe(t scheduler.Transition) {
	metrics.RecordTransition(string(t.Kind))
	switch t.Kind {
	case scheduler.TransitionPicked:
		metrics.RecordPick(t.Key)
		s.snapMu.Lock()
		s.snap.picks[t.Key]++
		s.snapMu.Unlock()
	case scheduler.TransitionHoldStarted:
		metrics.RecordIdleHoldStarted(t.Hold)
	case scheduler.TransitionHoldResolved:
		metrics.RecordIdleHoldResolved()
	case scheduler.TransitionHoldCancelled:
		metrics.RecordIdleHoldCancelled()
	case scheduler.TransitionGated:
		metrics.RecordAudioGatedSkip()
	case scheduler.TransitionNoCandidate:
		metrics.RecordEmptyPick()
	case scheduler.TransitionMissingClip:
		metrics.RecordConfigInconsistency("missing_clip")
	case scheduler.TransitionEnabled:
		metrics.UpdateSchedulerEnabled(t.Enabled)
	}
	s.logger.Debug(s.ctx, "scheduler transition",
		logger.String("kind", string(t.Kind)),
		logger.String("clip", t.Key),
		logger.String("session", t.Session),
	)
}

// Hub returns the websocket endpoint for rendering hosts.
func (s *Service) Hub() *ws.Hub { return s.hub }

// SeenAndRecord reports whether a finished event id was already accepted.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordFinishedDuplicate()
	}
	return seen
}

// Unrecord forgets an id whose event could not be queued.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered finished ids.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue submits an event to the avatar loop without blocking.
func (s *Service) Enqueue(ctx context.Context, e model.Event) bool { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	ok := s.queue.Enqueue(ctx, e)
	if !ok {
		s.logger.Debug(ctx, "event rejected", logger.String("kind", string(e.Kind)))
	}
	return ok
}

// HasScenario reports whether name is configured.
func (s *Service) HasScenario(name string) bool {
	_, ok := s.cfg.Scenarios[name]
	return ok
}

func ignoreNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
