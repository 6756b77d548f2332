// Package sim runs the animation core headless against a simulated host and
// speech clock. Time is a fake clock advanced in fixed steps, so a minute of
// speech takes a fraction of a second.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
)

// maxSettleRounds bounds how long a step waits for the queue to drain.
const maxSettleRounds = 200

// Report summarizes a run.
type Report struct {
	Scenario   string             `json:"scenario"`
	Duration   time.Duration      `json:"duration"`
	Plays      []Play             `json:"plays"`
	Counts     map[string]int     `json:"counts"`
	Picks      map[string]int     `json:"picks"`
	Luck       map[string]float64 `json:"luck"`
	Frames     uint64             `json:"frames"`
	Categories map[string]int     `json:"categories"`
}

// Keys returns the clip names of Counts in sorted order.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type frameCounter struct {
	mu         sync.Mutex
	frames     uint64
	categories map[string]int
}

func (f *frameCounter) PublishFrame(_ uint64, category string, _ facial.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	f.categories[category]++
	return nil
}

// Run plays sc.Scenario with audio for sc.Duration of simulated time, then
// ends the audio and stops the service. opts are appended to the service
// options, after the simulated clock, player and frame sink.
func Run(ctx context.Context, appCfg *config.Config, sc Config, opts ...service.Option) (*Report, error) {
	sc = sc.withDefaults()
	log := logger.Get().Named("sim")

	clock := clockwork.NewFakeClock()
	player := NewPlayer(clock, sc.ClipLengths, sc.DefaultLength)
	frames := &frameCounter{categories: make(map[string]int)}

	base := []service.Option{
		service.WithClock(clock),
		service.WithPlayer(player),
		service.WithFrameSink(frames),
		service.WithLogger(log.Named("service")),
	}
	svc, err := service.New(appCfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if !svc.HasScenario(sc.Scenario) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, sc.Scenario)
	}
	player.Bind(svc)

	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	log.Info(ctx, "simulation started",
		logger.String("scenario", sc.Scenario),
		logger.Duration("duration", sc.Duration),
		logger.Duration("step", sc.Step),
	)

	runErr := drive(ctx, svc, clock, sc)
	st := svc.Stats(ctx)
	stopErr := svc.Stop(ctx)

	report := &Report{
		Scenario: sc.Scenario,
		Duration: sc.Duration,
		Plays:    player.History(),
		Counts:   make(map[string]int),
		Picks:    st.Picks,
		Luck:     st.Luck,
	}
	for _, p := range report.Plays {
		report.Counts[p.Clip]++
	}
	frames.mu.Lock()
	report.Frames = frames.frames
	report.Categories = frames.categories
	frames.mu.Unlock()

	log.Info(ctx, "simulation finished",
		logger.Int("plays", len(report.Plays)),
		logger.Any("frames", report.Frames),
	)
	return report, errors.Join(runErr, stopErr)
}

// drive starts the scenario, advances the clock while reporting the audio
// position like a host would, and finally reports the end of the speech.
func drive(ctx context.Context, svc *service.Service, clock *clockwork.FakeClock, sc Config) error {
	if !svc.Enqueue(ctx, model.Event{Kind: model.KindScenario, Scenario: sc.Scenario, Playing: true}) {
		return ErrBackpressure
	}
	settle(ctx, svc, sc.Settle)

	var elapsed, reported time.Duration
	for elapsed < sc.Duration {
		if err := ctx.Err(); err != nil {
			return err
		}
		clock.Advance(sc.Step)
		elapsed += sc.Step

		if elapsed-reported >= sc.AudioReport {
			reported = elapsed
			svc.Enqueue(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: elapsed.Seconds()}})
		}
		settle(ctx, svc, sc.Settle)
	}

	end := model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: sc.Duration.Seconds(), Ended: true}}
	if !svc.Enqueue(ctx, end) {
		return ErrBackpressure
	}
	settle(ctx, svc, sc.Settle)
	return nil
}

// settle gives timer goroutines a moment to fire and waits for the queue to
// drain.
func settle(ctx context.Context, svc *service.Service, d time.Duration) {
	time.Sleep(d)
	for i := 0; i < maxSettleRounds && svc.Stats(ctx).QueueLength > 0; i++ {
		time.Sleep(d)
	}
}
