package application

import "strings"

// NameIndex maps case-insensitive names to values. It backs both CSV foreign
// key resolution and external profile reconciliation so the two agree on what
// counts as the same name. The first value added under a name wins.
type NameIndex[T any] struct {
	order  []string
	values map[string]T
}

// NewNameIndex indexes items by the name returned from nameOf.
func NewNameIndex[T any](items []T, nameOf func(T) string) *NameIndex[T] {
	ix := &NameIndex[T]{values: make(map[string]T, len(items))}
	for _, item := range items {
		ix.Add(nameOf(item), item)
	}
	return ix
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

// Add stores v under name. It reports false, leaving the index unchanged, if
// the name is already present.
func (ix *NameIndex[T]) Add(name string, v T) bool {
	key := nameKey(name)
	if _, ok := ix.values[key]; ok {
		return false
	}
	ix.values[key] = v
	ix.order = append(ix.order, key)
	return true
}

// Put stores v under name, replacing any existing value.
func (ix *NameIndex[T]) Put(name string, v T) {
	if !ix.Add(name, v) {
		ix.values[nameKey(name)] = v
	}
}

// Lookup returns the value stored under name.
func (ix *NameIndex[T]) Lookup(name string) (T, bool) {
	v, ok := ix.values[nameKey(name)]
	return v, ok
}

// Remove deletes name from the index and returns its value.
func (ix *NameIndex[T]) Remove(name string) (T, bool) {
	key := nameKey(name)
	v, ok := ix.values[key]
	if !ok {
		return v, false
	}
	delete(ix.values, key)
	for i, k := range ix.order {
		if k == key {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
	return v, true
}

// Len returns the number of names in the index.
func (ix *NameIndex[T]) Len() int {
	return len(ix.values)
}

// Values returns the indexed values in insertion order.
func (ix *NameIndex[T]) Values() []T {
	out := make([]T, 0, len(ix.order))
	for _, key := range ix.order {
		out = append(out, ix.values[key])
	}
	return out
}
