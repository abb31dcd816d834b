// Package uuid provides crawl run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates run IDs. Version 7 is preferred so run IDs sort by start
// time; a random version 4 ID is used if the v7 clock source fails.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a run ID.
func (Generator) NewID() (string, error) {
	if id, err := uuid.NewV7(); err == nil {
		return id.String(), nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
