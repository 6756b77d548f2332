// Package repository persists luck vectors between sessions.
//
// A luck vector maps clip keys to their current luck for one pool. Restoring
// it on start keeps long-running fairness across restarts; it is saved on
// shutdown and whenever an operator PUTs a new vector.
package repository

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store loads and saves luck vectors keyed by pool name.
type Store interface {
	// Load returns the saved vector for pool. It returns ErrNotFound when the
	// pool has never been saved.
	Load(ctx context.Context, pool string) (map[string]float64, error)

	// Save replaces the vector for pool.
	Save(ctx context.Context, pool string, luck map[string]float64) error

	// Close releases the backend.
	Close() error
}

// Open builds the store named by backend. path is ignored for memory.
func Open(backend, path string, opts ...Option) (Store, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}

	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(path, s.fileMode)
	case BackendSQLite:
		return OpenSQLite(path, s.busyTimeoutMS)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func validPool(pool string) error {
	if strings.TrimSpace(pool) == "" {
		return ErrEmptyPool
	}
	return nil
}

func copyLuck(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
