package sim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
)

// Enqueuer accepts events for the avatar loop.
type Enqueuer interface {
	Enqueue(ctx context.Context, e model.Event) bool
}

// Play is one clip start seen by the simulated host.
type Play struct {
	At   time.Duration `json:"at"`
	Clip string        `json:"clip"`
	Loop bool          `json:"loop"`
}

// Player stands in for a rendering host. One-shot clips report their end
// after their configured length on the shared clock.
type Player struct {
	clock   clockwork.Clock
	start   time.Time
	lengths map[string]time.Duration
	def     time.Duration

	mu      sync.Mutex
	queue   Enqueuer
	finish  clockwork.Timer
	history []Play
}

var _ scheduler.ClipPlayer = (*Player)(nil)

// NewPlayer creates a host with the given clip library.
func NewPlayer(clock clockwork.Clock, lengths map[string]time.Duration, def time.Duration) *Player {
	cp := make(map[string]time.Duration, len(lengths))
	for k, v := range lengths {
		cp[k] = v
	}
	return &Player{clock: clock, start: clock.Now(), lengths: cp, def: def}
}

// Bind sets where finished reports go. Reports are dropped until bound.
func (p *Player) Bind(q Enqueuer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = q
}

// Clips returns the declared clip names.
func (p *Player) Clips() []string {
	out := make([]string, 0, len(p.lengths))
	for k := range p.lengths {
		out = append(out, k)
	}
	return out
}

// Has implements scheduler.ClipPlayer.
func (p *Player) Has(name string) bool {
	_, ok := p.lengths[name]
	return ok
}

// Play implements scheduler.ClipPlayer. Starting a clip replaces the
// pending finish of the previous one.
func (p *Player) Play(_ context.Context, name string, opts scheduler.PlayOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finish != nil {
		p.finish.Stop()
		p.finish = nil
	}
	p.history = append(p.history, Play{At: p.clock.Since(p.start), Clip: name, Loop: opts.Loop})
	if opts.Loop {
		return nil
	}

	d := p.lengths[name]
	if d <= 0 {
		d = p.def
	}
	p.finish = p.clock.AfterFunc(d, func() { p.report(name) })
	return nil
}

func (p *Player) report(clip string) {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return
	}
	q.Enqueue(context.Background(), model.Event{
		Kind:    model.KindClipFinished,
		EventID: uuid.NewString(),
		Clip:    clip,
		TS:      p.clock.Now(),
	})
}

// History returns every clip start so far.
func (p *Player) History() []Play {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Play(nil), p.history...)
}
