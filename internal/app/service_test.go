package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/adapters/repository"
	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type play struct {
	name string
	opts scheduler.PlayOptions
}

type fakePlayer struct {
	mu    sync.Mutex
	clips map[string]bool
	plays []play
}

func newFakePlayer(clips ...string) *fakePlayer {
	p := &fakePlayer{clips: make(map[string]bool)}
	for _, c := range clips {
		p.clips[c] = true
	}
	return p
}

func (p *fakePlayer) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clips[name]
}

func (p *fakePlayer) Play(_ context.Context, name string, opts scheduler.PlayOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, play{name: name, opts: opts})
	return nil
}

func (p *fakePlayer) history() []play {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]play(nil), p.plays...)
}

func (p *fakePlayer) last() play {
	h := p.history()
	if len(h) == 0 {
		return play{}
	}
	return h[len(h)-1]
}

type published struct {
	seq      uint64
	category string
	frame    facial.Frame
}

type fakeSink struct {
	mu     sync.Mutex
	frames []published
}

func (s *fakeSink) PublishFrame(seq uint64, category string, frame facial.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, published{seq: seq, category: category, frame: frame.Clone()})
	return nil
}

func (s *fakeSink) all() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]published(nil), s.frames...)
}

type fixture struct {
	svc    *service.Service
	player *fakePlayer
	sink   *fakeSink
	store  *repository.MemoryStore
	clock  *clockwork.FakeClock
}

var allClips = []string{"Idle", "Talk1", "Talk2", "Talk3", "Greeting", "Angry"}

func newFixture(t *testing.T, clips ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	doc := `{"metadata":{"soundFile":"intro.wav","duration":10},"mouthCues":[{"start":0,"end":10,"value":"A"}]}`
	if err := os.WriteFile(filepath.Join(dir, "intro.json"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write cues: %v", err)
	}

	cfg := config.New()
	cfg.Seed = 7
	cfg.CuesDir = dir

	f := fixture{
		player: newFakePlayer(clips...),
		sink:   &fakeSink{},
		store:  repository.NewMemoryStore(),
		clock:  clockwork.NewFakeClock(),
	}
	svc, err := service.New(cfg,
		service.WithClock(f.clock),
		service.WithPlayer(f.player),
		service.WithFrameSink(f.sink),
		service.WithStore(f.store),
		service.WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		f := newFixture(t, allClips...)

		Convey("Then the default scenario is selected but nothing plays yet", func() {
			st := f.svc.Stats(context.Background())
			So(f.player.history(), ShouldBeEmpty)
			So(st.Scheduler.Attached, ShouldBeTrue)
			So(st.Scheduler.Enabled, ShouldBeFalse)
			So(f.svc.HasScenario("intro"), ShouldBeTrue)
			So(f.svc.HasScenario("outro"), ShouldBeFalse)
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := config.New()
		cfg.DefaultScenario = "missing"

		Convey("Then New refuses it", func() {
			svc, err := service.New(cfg, service.WithLogger(logger.Nop()))
			So(svc, ShouldBeNil)
			So(err, ShouldWrap, config.ErrInvalidConfig)
		})
	})
}

func TestService_Scenarios(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with every clip available", t, func() {
		f := newFixture(t, allClips...)

		Convey("When the intro is selected without audio", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro"}), ShouldBeNil)

			Convey("Then the idle clip loops and the scheduler stays off", func() {
				So(f.player.last().name, ShouldEqual, "Idle")
				So(f.player.last().opts.Loop, ShouldBeTrue)
				st := f.svc.Stats(ctx)
				So(st.Playing, ShouldBeFalse)
				So(st.Scheduler.Enabled, ShouldBeFalse)
			})

			Convey("Then finished reports are ignored", func() {
				before := len(f.player.history())
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipFinished}), ShouldBeNil)
				So(f.player.history(), ShouldHaveLength, before)
			})
		})

		Convey("When the intro plays", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeNil)

			Convey("Then the greeting plays once with the scheduler on", func() {
				So(f.player.last(), ShouldResemble, play{name: "Greeting", opts: scheduler.PlayOptions{Fade: 250 * time.Millisecond}})
				st := f.svc.Stats(ctx)
				So(st.Playing, ShouldBeTrue)
				So(st.Scheduler.Enabled, ShouldBeTrue)
			})

			Convey("Then the end of the greeting starts a picked clip", func() {
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipFinished, Clip: "Greeting"}), ShouldBeNil)
				h := f.player.history()
				So(h, ShouldHaveLength, 2)
				So([]string{"Idle", "Talk1", "Talk2", "Talk3"}, ShouldContain, h[1].name)

				st := f.svc.Stats(ctx)
				total := 0
				for _, n := range st.Picks {
					total += n
				}
				So(total, ShouldEqual, 1)
				So(st.Scheduler.HoldPending, ShouldEqual, h[1].name == "Idle")
			})

			Convey("Then ended audio returns to the idle loop", func() {
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: 10, Ended: true}}), ShouldBeNil)
				So(f.player.last().name, ShouldEqual, "Idle")
				So(f.player.last().opts.Loop, ShouldBeTrue)
				st := f.svc.Stats(ctx)
				So(st.Playing, ShouldBeFalse)
				So(st.Scheduler.Enabled, ShouldBeFalse)
			})

			Convey("Then paused audio gates the next pick", func() {
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: 1, Paused: true}}), ShouldBeNil)
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipFinished}), ShouldBeNil)
				So(f.player.history(), ShouldHaveLength, 1)
			})

			Convey("Then the scheduler can be switched off by hand", func() {
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindSetEnabled, Enabled: false}), ShouldBeNil)
				So(f.svc.Stats(ctx).Scheduler.Enabled, ShouldBeFalse)
				So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipFinished}), ShouldBeNil)
				So(f.player.history(), ShouldHaveLength, 1)
			})
		})

		Convey("When the drug screen plays", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "drugScreen", Playing: true}), ShouldBeNil)

			Convey("Then the angry clip loops with the scheduler off", func() {
				So(f.player.last().name, ShouldEqual, "Angry")
				So(f.player.last().opts.Loop, ShouldBeTrue)
				So(f.svc.Stats(ctx).Scheduler.Enabled, ShouldBeFalse)

				So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipFinished}), ShouldBeNil)
				So(f.player.history(), ShouldHaveLength, 1)
			})
		})

		Convey("When an unknown scenario is requested", func() {
			err := f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "outro", Playing: true})

			Convey("Then it is rejected and nothing plays", func() {
				So(err, ShouldWrap, service.ErrUnknownScenario)
				So(f.player.history(), ShouldBeEmpty)
			})
		})

		Convey("When the host declares its clips again mid-speech", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeNil)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: 3}}), ShouldBeNil)
			before := f.svc.Stats(ctx).Scheduler.Session
			plays := len(f.player.history())
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipsDeclared, Clips: allClips}), ShouldBeNil)

			Convey("Then a new session starts and speech keeps its place", func() {
				st := f.svc.Stats(ctx)
				So(st.Scheduler.Session, ShouldNotEqual, before)
				So(st.Scheduler.Session, ShouldNotBeEmpty)
				So(st.Playing, ShouldBeTrue)
				So(st.Scheduler.AudioTime, ShouldEqual, 3)
				So(st.Scheduler.Enabled, ShouldBeTrue)

				h := f.player.history()
				So(len(h), ShouldEqual, plays+1)
				So(h[len(h)-1].name, ShouldNotEqual, "Greeting")
				So([]string{"Idle", "Talk1", "Talk2", "Talk3"}, ShouldContain, h[len(h)-1].name)
			})
		})

		Convey("When the host declares its clips again while speech is paused", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeNil)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: 1.5, Paused: true}}), ShouldBeNil)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipsDeclared, Clips: allClips}), ShouldBeNil)

			Convey("Then the idle loop shows and the position is kept", func() {
				So(f.player.last().name, ShouldEqual, "Idle")
				So(f.player.last().opts.Loop, ShouldBeTrue)
				So(f.svc.Stats(ctx).Scheduler.AudioTime, ShouldEqual, 1.5)
			})
		})

		Convey("When the host declares its clips again before speech", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindClipsDeclared, Clips: allClips}), ShouldBeNil)

			Convey("Then the idle loop is replayed", func() {
				So(f.player.last().name, ShouldEqual, "Idle")
				So(f.player.last().opts.Loop, ShouldBeTrue)
			})
		})

		Convey("When the event kind is unknown", func() {
			err := f.svc.Handle(ctx, model.Event{Kind: model.Kind("bogus")})

			Convey("Then it is reported", func() {
				So(err, ShouldWrap, service.ErrUnknownEvent)
			})
		})
	})

	Convey("Given a host without the greeting clip", t, func() {
		f := newFixture(t, "Idle", "Talk1", "Talk2", "Talk3")

		Convey("When the intro plays", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeNil)

			Convey("Then the scheduler picks straight away", func() {
				h := f.player.history()
				So(h, ShouldHaveLength, 1)
				So([]string{"Idle", "Talk1", "Talk2", "Talk3"}, ShouldContain, h[0].name)
			})
		})
	})
}

func TestService_Frames(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with the intro selected", t, func() {
		f := newFixture(t, allClips...)
		So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro"}), ShouldBeNil)

		Convey("When frames tick without audio", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindTick}), ShouldBeNil)
			f.clock.Advance(20 * time.Millisecond)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindTick}), ShouldBeNil)

			Convey("Then every frame carries the blink and head channels at rest", func() {
				frames := f.sink.all()
				So(frames, ShouldHaveLength, 2)
				So(frames[0].seq, ShouldEqual, uint64(1))
				So(frames[1].seq, ShouldEqual, uint64(2))
				So(frames[1].category, ShouldEqual, "X")
				So(frames[1].frame, ShouldContainKey, facial.ChannelBlinkLeft)
				So(frames[1].frame, ShouldContainKey, facial.ChannelBlinkRight)
				So(frames[1].frame, ShouldContainKey, facial.ChannelHeadAim)
				So(f.svc.Stats(ctx).Frames, ShouldEqual, uint64(2))
			})
		})

		Convey("When the intro speaks", func() {
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeNil)
			f.clock.Advance(100 * time.Millisecond)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindTick}), ShouldBeNil)

			Convey("Then the mouth follows the cue timeline", func() {
				frames := f.sink.all()
				So(frames, ShouldHaveLength, 1)
				So(frames[0].category, ShouldEqual, "A")
				So(f.svc.Stats(ctx).Category, ShouldEqual, "A")
			})
		})

		Convey("When the head aim is set by hand", func() {
			w := 0.6
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindGaze, Gaze: &w}), ShouldBeNil)
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindTick}), ShouldBeNil)

			Convey("Then the frame carries it unchanged", func() {
				frames := f.sink.all()
				So(frames[len(frames)-1].frame[facial.ChannelHeadAim], ShouldAlmostEqual, 0.6)
			})
		})
	})
}

func TestService_Luck(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		f := newFixture(t, allClips...)
		So(f.svc.Handle(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro"}), ShouldBeNil)

		Convey("Then luck starts from the configured values", func() {
			l := f.svc.Luck(ctx)
			So(l["Talk1"], ShouldEqual, 3)
			So(l["Idle"], ShouldAlmostEqual, 0.2)
		})

		Convey("When a luck vector is restored", func() {
			state := map[string]float64{"Talk1": 0, "Talk2": 5, "Talk3": 1, "Idle": 0.5}
			So(f.svc.Handle(ctx, model.Event{Kind: model.KindLuck, Luck: state}), ShouldBeNil)

			Convey("Then it is visible and persisted", func() {
				So(f.svc.Luck(ctx)["Talk2"], ShouldEqual, 5)
				saved, err := f.store.Load(ctx, "intro")
				So(err, ShouldBeNil)
				So(saved["Talk2"], ShouldEqual, 5)
				So(saved["Talk1"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_Dedupe(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		f := newFixture(t, allClips...)

		Convey("Then a finished id is accepted once", func() {
			So(f.svc.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			So(f.svc.SeenAndRecord(ctx, "evt-1"), ShouldBeTrue)
			So(f.svc.Size(), ShouldEqual, int64(1))

			f.svc.Unrecord(ctx, "evt-1")
			So(f.svc.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service with saved luck", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		f := newFixture(t, allClips...)
		So(f.store.Save(ctx, "intro", map[string]float64{"Talk1": 1, "Talk2": 1, "Talk3": 7, "Idle": 0.2}), ShouldBeNil)

		So(f.svc.Start(ctx), ShouldBeNil)
		stopped := false
		defer func() {
			if !stopped {
				_ = f.svc.Stop(ctx)
			}
		}()

		Convey("Then it restores luck and idles", func() {
			So(f.svc.Luck(ctx)["Talk3"], ShouldEqual, 7)
			So(f.player.last().name, ShouldEqual, "Idle")
			So(f.svc.Start(ctx), ShouldBeNil)
		})

		Convey("Then the ticker publishes frames", func() {
			So(eventually(func() bool {
				f.clock.Advance(20 * time.Millisecond)
				return len(f.sink.all()) > 0
			}), ShouldBeTrue)
		})

		Convey("When events arrive through the queue", func() {
			So(f.svc.Enqueue(ctx, model.Event{Kind: model.KindScenario, Scenario: "intro", Playing: true}), ShouldBeTrue)
			So(eventually(func() bool { return f.player.last().name == "Greeting" }), ShouldBeTrue)

			state := map[string]float64{"Talk1": 2, "Talk2": 2, "Talk3": 2, "Idle": 0}
			So(f.svc.Enqueue(ctx, model.Event{Kind: model.KindLuck, Luck: state}), ShouldBeTrue)
			So(eventually(func() bool { return f.svc.Luck(ctx)["Talk3"] == 2 }), ShouldBeTrue)

			Convey("Then Stop drains the loop and saves luck", func() {
				So(f.svc.Stop(ctx), ShouldBeNil)
				stopped = true

				saved, err := f.store.Load(ctx, "intro")
				So(err, ShouldBeNil)
				So(saved["Talk3"], ShouldEqual, 2)
				So(f.svc.Enqueue(ctx, model.Event{Kind: model.KindTick}), ShouldBeFalse)
				So(f.svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}
