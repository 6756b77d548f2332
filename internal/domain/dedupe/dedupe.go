// Package dedupe drops repeated clip-finished reports.
//
// Rendering hosts may retry a finished report after a network hiccup. Each
// report carries an optional event ID; the deduper remembers the most recent
// IDs so the scheduler sees every clip end at most once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a report that could not be queued can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type slot struct {
	id  string
	seq uint64
}

// windowDeduper keeps the last maxSize IDs in a ring. The map stores the
// sequence number an ID was written with, so a ring slot left behind by
// Unrecord never evicts a later re-record of the same ID.
type windowDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64
	ring    []slot
	seq     uint64
	maxSize int
}

// NewInMemoryDeduper creates a deduper. With a non-positive WithMaxSize it
// never forgets.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &windowDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.seq++
	if d.ring != nil {
		pos := int(d.seq % uint64(len(d.ring)))
		if old := d.ring[pos]; old.seq != 0 {
			if s, ok := d.seen[old.id]; ok && s == old.seq {
				delete(d.seen, old.id)
			}
		}
		d.ring[pos] = slot{id: id, seq: d.seq}
	}
	d.seen[id] = d.seq
	return false
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *windowDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
