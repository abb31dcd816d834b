// Package memory provides an in-process harvest.Store.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// Store keeps items in a slice guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	items []harvest.Item
}

var _ harvest.Store = (*Store)(nil)

// New returns an empty Store, optionally seeded with items.
func New(seed ...harvest.Item) *Store {
	items := make([]harvest.Item, len(seed))
	copy(items, seed)
	return &Store{items: items}
}

// ReadAll returns a copy of the stored items.
func (s *Store) ReadAll(_ context.Context) ([]harvest.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Append records one item.
func (s *Store) Append(_ context.Context, item harvest.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

// RewriteAll replaces every stored item.
func (s *Store) RewriteAll(_ context.Context, items []harvest.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]harvest.Item, len(items))
	copy(s.items, items)
	return nil
}
