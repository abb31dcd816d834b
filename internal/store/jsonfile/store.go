// Package jsonfile implements harvest.Store on a single JSON document.
//
// Every write serializes the whole collection to a temporary file in the same
// directory and renames it over the previous document, so readers always see
// a complete snapshot. Writers are serialized by a process-local mutex;
// separate processes sharing one file are not coordinated.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// Config controls where the metadata document lives.
type Config struct {
	Path string
}

// Store keeps items in an indented JSON array on disk.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ harvest.Store = (*Store)(nil)

// New creates the parent directory if needed and returns a Store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("metadata path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}
	return &Store{path: cfg.Path}, nil
}

// Path returns the metadata document location.
func (s *Store) Path() string {
	return s.path
}

// ReadAll loads the current snapshot. A missing file is an empty collection.
func (s *Store) ReadAll(_ context.Context) ([]harvest.Item, error) {
	return s.load()
}

// Append adds one item with a read-merge-write under the writer lock.
func (s *Store) Append(ctx context.Context, item harvest.Item) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append item: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	items = append(items, item)
	return s.write(items)
}

// RewriteAll replaces the whole collection.
func (s *Store) RewriteAll(ctx context.Context, items []harvest.Item) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rewrite items: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if items == nil {
		items = []harvest.Item{}
	}
	return s.write(items)
}

func (s *Store) load() ([]harvest.Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []harvest.Item{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []harvest.Item{}, nil
	}
	var items []harvest.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", s.path, err)
	}
	return items, nil
}

func (s *Store) write(items []harvest.Item) error {
	data, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp metadata: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}
