// Package uuid provides run ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings. V7 IDs sort by creation time, which
// keeps run artifacts listable in chronological order.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID v7 string, falling back to v4 when the monotonic
// source fails.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id, err = uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate run id: %w", err)
		}
	}
	return id.String(), nil
}
