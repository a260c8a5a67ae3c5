package ast

import (
	"strings"

	"github.com/roach88/kiln/internal/diag"
)

// TupleSeparator joins the names of a mangled tuple declaration target.
const TupleSeparator = "__"

// UnmangleTupleDeclarations returns a copy of m in which every declaration
// whose target is a mangled name such as "a__b" declares a tuple of names.
//
// The input module is not modified. Unchanged subtrees are shared with the
// result. The tuple keeps the mangled name's node id; the new names get
// fresh ids above the module's current maximum.
func UnmangleTupleDeclarations(m *Module) (*Module, error) {
	next := MaxID(m) + 1
	out := *m
	out.Functions = make([]*FunctionDef, len(m.Functions))
	for i, f := range m.Functions {
		body := make([]Stmt, len(f.Body))
		changed := false
		for j, s := range f.Body {
			decl, ok := s.(*AnnAssign)
			if !ok {
				body[j] = s
				continue
			}
			repl, err := unmangle(decl, &next)
			if err != nil {
				return nil, err
			}
			if repl != decl {
				changed = true
			}
			body[j] = repl
		}
		if !changed {
			out.Functions[i] = f
			continue
		}
		fc := *f
		fc.Body = body
		out.Functions[i] = &fc
	}
	return &out, nil
}

func unmangle(decl *AnnAssign, next *NodeID) (*AnnAssign, error) {
	target, ok := decl.Target.(*Name)
	if !ok {
		return decl, nil
	}
	idents := strings.Split(target.Ident, TupleSeparator)
	if len(idents) < 2 {
		return decl, nil
	}
	annotation, ok := decl.Annotation.(*Tuple)
	if !ok {
		return nil, diag.Panicf("tuple declaration %s found without defined types", target.Ident)
	}
	if len(idents) != len(annotation.Elems) {
		return nil, diag.Panicf("tuple declaration %s has %d names but %d types",
			target.Ident, len(idents), len(annotation.Elems))
	}
	if value, ok := decl.Value.(*Tuple); !ok || len(value.Elems) != len(idents) {
		return nil, diag.Panicf("tuple declaration %s has incorrect number of values", target.Ident)
	}

	names := make([]Expr, len(idents))
	for i, id := range idents {
		names[i] = &Name{NodeID: *next, Ident: id, Typ: annotation.Elems[i].Type()}
		*next++
	}
	out := *decl
	out.Target = &Tuple{NodeID: target.NodeID, Elems: names}
	return &out, nil
}
