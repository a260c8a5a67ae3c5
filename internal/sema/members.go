package sema

import (
	"fmt"
	"slices"

	"github.com/roach88/kiln/internal/ast"
)

// Members is an insertion-ordered registry mapping a key to a value and
// the node id of the key's declaration. The two channels have separate
// accessors: Get and Set never touch the declaration channel.
type Members[T any] struct {
	keys    []string
	entries map[string]*member[T]
}

type member[T any] struct {
	value   T
	decl    ast.NodeID
	hasDecl bool
}

// NewMembers returns an empty registry.
func NewMembers[T any]() *Members[T] {
	return &Members[T]{entries: make(map[string]*member[T])}
}

// Set stores v under key. A new key starts with no declaration node;
// overwriting an existing key keeps its position and declaration node.
func (m *Members[T]) Set(key string, v T) {
	if e, ok := m.entries[key]; ok {
		e.value = v
		return
	}
	m.keys = append(m.keys, key)
	m.entries[key] = &member[T]{value: v}
}

// Get returns the value stored under key.
func (m *Members[T]) Get(key string) (T, bool) {
	e, ok := m.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Has reports whether key is present.
func (m *Members[T]) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// SetDeclNode records the declaration node of an existing key.
func (m *Members[T]) SetDeclNode(key string, id ast.NodeID) error {
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("no member %q", key)
	}
	e.decl, e.hasDecl = id, true
	return nil
}

// DeclNode returns the declaration node of key, if one was recorded.
func (m *Members[T]) DeclNode(key string) (ast.NodeID, bool) {
	e, ok := m.entries[key]
	if !ok || !e.hasDecl {
		return 0, false
	}
	return e.decl, true
}

// Keys returns the keys in insertion order.
func (m *Members[T]) Keys() []string { return slices.Clone(m.keys) }

// Values returns the values in insertion order.
func (m *Members[T]) Values() []T {
	out := make([]T, len(m.keys))
	for i, k := range m.keys {
		out[i] = m.entries[k].value
	}
	return out
}

// DeclNodes returns the recorded declaration nodes keyed by member.
func (m *Members[T]) DeclNodes() map[string]ast.NodeID {
	out := make(map[string]ast.NodeID)
	for k, e := range m.entries {
		if e.hasDecl {
			out[k] = e.decl
		}
	}
	return out
}

// Len is the number of members.
func (m *Members[T]) Len() int { return len(m.keys) }

// Clone returns an independent copy holding both channels.
func (m *Members[T]) Clone() *Members[T] {
	c := NewMembers[T]()
	for _, k := range m.keys {
		e := *m.entries[k]
		c.keys = append(c.keys, k)
		c.entries[k] = &e
	}
	return c
}
