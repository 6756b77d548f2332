// Package cues maps playback time to the active mouth-shape category using a
// sorted, non-overlapping cue timeline.
package cues

import (
	"fmt"
	"math"
	"sort"
)

// DefaultCategory is returned when no cue covers the playback time.
const DefaultCategory = "X"

// Cue is the half-open interval [Start, End) in seconds carrying a category.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Option applies a configuration option to the Timeline.
type Option func(*Timeline)

// WithDefault sets the category used outside every cue.
func WithDefault(category string) Option {
	return func(t *Timeline) {
		if category != "" {
			t.def = category
		}
	}
}

// Timeline is an immutable, validated cue list.
type Timeline struct {
	cues []Cue
	def  string
}

// NewTimeline validates cues and returns a timeline. Cues must be sorted by
// start, must not overlap, and must have finite bounds with End >= Start.
func NewTimeline(cues []Cue, opts ...Option) (*Timeline, error) {
	t := &Timeline{def: DefaultCategory}
	for _, opt := range opts {
		opt(t)
	}
	for i, c := range cues {
		if !finite(c.Start) || !finite(c.End) {
			return nil, fmt.Errorf("%w: cue %d has a non-finite bound", ErrMalformedTimeline, i)
		}
		if c.End < c.Start {
			return nil, fmt.Errorf("%w: cue %d ends at %g before it starts at %g", ErrMalformedTimeline, i, c.End, c.Start)
		}
		if i > 0 && c.Start < cues[i-1].End {
			return nil, fmt.Errorf("%w: cue %d starts at %g inside cue %d", ErrMalformedTimeline, i, c.Start, i-1)
		}
	}
	t.cues = make([]Cue, len(cues))
	copy(t.cues, cues)
	return t, nil
}

// ActiveCategory returns the value of the cue with Start <= at < End, or the
// default category when none covers at.
func (t *Timeline) ActiveCategory(at float64) string {
	c, ok := t.ActiveCue(at)
	if !ok {
		return t.Default()
	}
	return c.Value
}

// ActiveCue returns the cue covering at.
func (t *Timeline) ActiveCue(at float64) (Cue, bool) {
	if t == nil || len(t.cues) == 0 || !finite(at) {
		return Cue{}, false
	}
	// First cue ending after at; zero-length cues never match.
	i := sort.Search(len(t.cues), func(i int) bool { return t.cues[i].End > at })
	if i < len(t.cues) && t.cues[i].Start <= at {
		return t.cues[i], true
	}
	return Cue{}, false
}

// Default returns the fallback category.
func (t *Timeline) Default() string {
	if t == nil {
		return DefaultCategory
	}
	return t.def
}

// Duration returns the end of the last cue.
func (t *Timeline) Duration() float64 {
	cs := t.list()
	if len(cs) == 0 {
		return 0
	}
	return cs[len(cs)-1].End
}

// Len returns the number of cues.
func (t *Timeline) Len() int { return len(t.list()) }

// Empty reports whether the timeline has no cues.
func (t *Timeline) Empty() bool { return len(t.list()) == 0 }

// Cues returns a copy of the cue list.
func (t *Timeline) Cues() []Cue {
	cs := t.list()
	out := make([]Cue, len(cs))
	copy(out, cs)
	return out
}

// list is nil for a nil timeline, which reads as silence.
func (t *Timeline) list() []Cue {
	if t == nil {
		return nil
	}
	return t.cues
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
