package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// luckDocument is the on-disk layout:
//
//	pools:
//	  intro:
//	    Talk1: 0.4
//	    Idle: 0.2
type luckDocument struct {
	Pools map[string]map[string]float64 `yaml:"pools"`
}

// FileStore keeps every pool in one YAML file. Writes go to a temp file that
// is renamed over the original.
type FileStore struct {
	mu   sync.Mutex
	path string
	mode os.FileMode
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string, mode os.FileMode) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	if mode == 0 {
		mode = defaultSettings().fileMode
	}
	return &FileStore{path: filepath.Clean(path), mode: mode}, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, pool string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validPool(pool); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	luck, ok := doc.Pools[pool]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLuck(luck), nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, pool string, luck map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validPool(pool); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Pools[pool] = copyLuck(luck)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode luck file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create luck dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, s.mode); err != nil {
		return fmt.Errorf("write luck file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace luck file: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (*luckDocument, error) {
	doc := &luckDocument{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read luck file: %w", err)
	default:
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("decode luck file %s: %w", s.path, err)
		}
	}
	if doc.Pools == nil {
		doc.Pools = make(map[string]map[string]float64)
	}
	return doc, nil
}
