// Package lookup records which source object a destination object was created from.
package lookup

import (
	"fmt"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// Table maps source identities to destination identities. Keys are object
// numbers (or other arena indices), never structural hashes, so two equal
// source dictionaries living in different objects are distinct entries.
// Entries are never overwritten and iteration follows insertion order.
type Table[K comparable, V comparable] struct {
	index map[K]int
	keys  []K
	vals  []V
}

// New creates an empty table
func New[K comparable, V comparable]() *Table[K, V] {
	return &Table[K, V]{index: make(map[K]int)}
}

// Add records src -> dst. Re-adding the same pair is a no-op; mapping src to a
// different destination is an invariant violation.
func (t *Table[K, V]) Add(src K, dst V) error {
	if i, ok := t.index[src]; ok {
		if t.vals[i] == dst {
			return nil
		}
		return pdferrors.NewPDFErrorWithContext(
			pdferrors.ErrorTypeInvariantViolation,
			"source already mapped to a different destination",
			fmt.Sprintf("source %v: have %v, got %v", src, t.vals[i], dst),
		)
	}
	t.index[src] = len(t.keys)
	t.keys = append(t.keys, src)
	t.vals = append(t.vals, dst)
	return nil
}

// Lookup returns the destination recorded for src
func (t *Table[K, V]) Lookup(src K) (V, bool) {
	i, ok := t.index[src]
	if !ok {
		var zero V
		return zero, false
	}
	return t.vals[i], true
}

// Has reports whether src has a mapping
func (t *Table[K, V]) Has(src K) bool {
	_, ok := t.index[src]
	return ok
}

// Values returns the destinations in insertion order
func (t *Table[K, V]) Values() []V {
	out := make([]V, len(t.vals))
	copy(out, t.vals)
	return out
}

// Keys returns the sources in insertion order
func (t *Table[K, V]) Keys() []K {
	out := make([]K, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of entries
func (t *Table[K, V]) Len() int {
	return len(t.keys)
}

// Clear removes every entry
func (t *Table[K, V]) Clear() {
	t.index = make(map[K]int)
	t.keys = nil
	t.vals = nil
}
