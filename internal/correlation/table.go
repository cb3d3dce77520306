// Package correlation tracks outstanding requests by correlation id.
package correlation

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// Table maps correlation ids to the value waiting on them.
//
// A bridge owns its tables; there is no process-wide registry. All methods
// are safe for concurrent use.
type Table[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	newID   func() string
}

// NewTable creates an empty table that generates ULID correlation ids.
func NewTable[V any]() *Table[V] {
	return &Table[V]{
		entries: make(map[string]V, 10),
		newID:   func() string { return ulid.Make().String() },
	}
}

// Register generates a correlation id that is not currently live, builds the
// value for it and inserts it, all under one lock.
func (t *Table[V]) Register(build func(correlationID string) V) (string, V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.newID()
	for {
		if _, exists := t.entries[id]; !exists {
			break
		}

		id = t.newID()
	}

	v := build(id)
	t.entries[id] = v

	return id, v
}

// Insert adds a value under a correlation id assigned elsewhere.
// Returns ErrDuplicateCorrelationID if the id is already live.
func (t *Table[V]) Insert(correlationID string, v V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[correlationID]; exists {
		return fmt.Errorf("insert %q: %w", correlationID, errors.ErrDuplicateCorrelationID)
	}

	t.entries[correlationID] = v

	return nil
}

// Lookup returns the live value for a correlation id.
func (t *Table[V]) Lookup(correlationID string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[correlationID]

	return v, ok
}

// Remove deletes and returns the value for a correlation id. Only one caller
// can claim a given entry.
func (t *Table[V]) Remove(correlationID string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[correlationID]
	if ok {
		delete(t.entries, correlationID)
	}

	return v, ok
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Drain removes and returns every live entry.
func (t *Table[V]) Drain() []V {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]V, 0, len(t.entries))
	for id, v := range t.entries {
		out = append(out, v)
		delete(t.entries, id)
	}

	return out
}
