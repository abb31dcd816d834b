// Package dedup answers whether an artifact URL has already been harvested.
//
// The index is a view over the metadata store, not a cache: every lookup
// reads the store's current contents. Two workers that check the same URL
// before either appends can both see "not harvested"; the resulting duplicate
// record is tolerated.
package dedup

import (
	"context"
	"fmt"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// Index checks artifact URLs against stored items.
type Index struct {
	reader harvest.ItemReader
}

// New builds an Index over reader.
func New(reader harvest.ItemReader) *Index {
	return &Index{reader: reader}
}

// Exists reports whether any stored item already carries artifactURL.
// Items whose download failed still count, so a broken link is recorded once
// rather than retried on every run.
func (i *Index) Exists(ctx context.Context, artifactURL string) (bool, error) {
	items, err := i.reader.ReadAll(ctx)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	for _, item := range items {
		if item.ArtifactURL == artifactURL {
			return true, nil
		}
	}
	return false, nil
}
