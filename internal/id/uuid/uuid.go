// Package uuid provides ID generation helpers for jobs and collection runs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string suitable for job ids.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRunID returns a UUID7 in the binary form carried by progress events.
// It falls back to a random v4 id if the v7 clock source fails.
func (Generator) NewRunID() [16]byte {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return [16]byte(id)
}
