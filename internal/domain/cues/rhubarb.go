package cues

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// rhubarbDoc is the JSON export of the Rhubarb lip-sync tool.
type rhubarbDoc struct {
	Metadata struct {
		SoundFile string  `json:"soundFile"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	MouthCues []Cue `json:"mouthCues"`
}

// LoadRhubarb parses a Rhubarb JSON document into a timeline.
func LoadRhubarb(r io.Reader, opts ...Option) (*Timeline, error) {
	var doc rhubarbDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTimeline, err)
	}
	return NewTimeline(doc.MouthCues, opts...)
}

// Library loads <dir>/<scenario>.json timelines on demand and caches them.
// It is safe for concurrent use.
type Library struct {
	dir  string
	opts []Option

	mu    sync.Mutex
	cache map[string]*Timeline
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string, opts ...Option) *Library {
	return &Library{dir: dir, opts: opts, cache: make(map[string]*Timeline)}
}

// Timeline returns the scenario's timeline. A missing file yields an empty
// timeline so speech without cues falls back to the default category.
func (l *Library) Timeline(scenario string) (*Timeline, error) {
	if scenario == "" || strings.ContainsAny(scenario, `/\`) || strings.Contains(scenario, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScenario, scenario)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.cache[scenario]; ok {
		return t, nil
	}

	f, err := os.Open(filepath.Join(l.dir, scenario+".json"))
	switch {
	case errors.Is(err, os.ErrNotExist):
		t, _ := NewTimeline(nil, l.opts...)
		l.cache[scenario] = t
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("open cues for %s: %w", scenario, err)
	}
	defer func() { _ = f.Close() }()

	t, err := LoadRhubarb(f, l.opts...)
	if err != nil {
		return nil, fmt.Errorf("cues for %s: %w", scenario, err)
	}
	l.cache[scenario] = t
	return t, nil
}

// Put installs a timeline for scenario, replacing any cached one.
func (l *Library) Put(scenario string, t *Timeline) {
	l.mu.Lock()
	l.cache[scenario] = t
	l.mu.Unlock()
}
