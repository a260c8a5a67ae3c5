// Package sema holds the resolved-name structures shared by the loader and
// code generation: a scope stack and an ordered member registry.
package sema

import (
	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/types"
)

// SymbolKind says where a name was declared.
type SymbolKind int

const (
	SymImmutable SymbolKind = iota + 1
	SymArg
	SymLocal
)

// Symbol is a resolved name.
type Symbol struct {
	Name string
	Kind SymbolKind
	Type types.Descriptor
}

// Scope is a stack of name frames. The root frame holds module-level names.
// It is passed by reference to whatever resolves names; nothing global.
type Scope struct {
	frames []*Members[Symbol]
}

// NewScope returns a scope with only the root frame.
func NewScope() *Scope {
	return &Scope{frames: []*Members[Symbol]{NewMembers[Symbol]()}}
}

// Enter pushes a frame.
func (s *Scope) Enter() {
	s.frames = append(s.frames, NewMembers[Symbol]())
}

// Exit pops the innermost frame. The root frame cannot be popped.
func (s *Scope) Exit() error {
	if len(s.frames) == 1 {
		return diag.Panicf("scope: exit without matching enter")
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Depth is the number of frames above the root.
func (s *Scope) Depth() int { return len(s.frames) - 1 }

// Declare adds sym to the innermost frame. Shadowing any visible name is
// rejected.
func (s *Scope) Declare(sym Symbol, decl ast.NodeID) error {
	if _, ok := s.Lookup(sym.Name); ok {
		return diag.Structure(int(decl), "%s is already declared", sym.Name)
	}
	top := s.frames[len(s.frames)-1]
	top.Set(sym.Name, sym)
	return top.SetDeclNode(sym.Name, decl)
}

// Lookup resolves name, innermost frame first.
func (s *Scope) Lookup(name string) (Symbol, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if sym, ok := s.frames[i].Get(name); ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// DeclNode returns the node that declared name.
func (s *Scope) DeclNode(name string) (ast.NodeID, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Has(name) {
			return s.frames[i].DeclNode(name)
		}
	}
	return 0, false
}
