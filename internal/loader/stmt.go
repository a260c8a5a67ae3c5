package loader

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/sema"
	"github.com/roach88/kiln/internal/types"
)

// stmt reads one statement. returns is the enclosing function's return
// type and hints the type of a returned literal.
func (l *loader) stmt(v cue.Value, returns types.Descriptor) (ast.Stmt, error) {
	if _, ok := has(v, "pass"); ok {
		return &ast.Pass{NodeID: l.id()}, nil
	}
	if f, ok := has(v, "return"); ok {
		s := &ast.Return{NodeID: l.id()}
		if f.IsNull() {
			return s, nil
		}
		val, err := l.expr(f, returns)
		if err != nil {
			return nil, err
		}
		s.Value = val
		return s, nil
	}
	if f, ok := has(v, "assert"); ok {
		id := l.id()
		test, err := l.expr(f, types.Bool())
		if err != nil {
			return nil, err
		}
		return &ast.Assert{NodeID: id, Test: test}, nil
	}
	if f, ok := has(v, "declare"); ok {
		if f.Kind() == cue.ListKind {
			return l.tupleDecl(v)
		}
		return l.decl(v, f)
	}
	return nil, errorf(v, "stmt", "unrecognized statement")
}

func (l *loader) decl(v, target cue.Value) (ast.Stmt, error) {
	name, err := target.String()
	if err != nil {
		return nil, errorf(target, "declare", "declare must name a variable")
	}
	typ, err := requiredType(v, "type")
	if err != nil {
		return nil, err
	}
	val, ok := has(v, "value")
	if !ok {
		return nil, errorf(v, "value", "declaration of %s needs a value", name)
	}

	s := &ast.AnnAssign{NodeID: l.id(), Annotation: &ast.TypeRef{NodeID: l.id(), Typ: typ}}
	if s.Value, err = l.expr(val, typ); err != nil {
		return nil, err
	}
	tn := &ast.Name{NodeID: l.id(), Ident: name, Typ: typ}
	if err := l.declare(target, name, typ, tn.NodeID); err != nil {
		return nil, err
	}
	s.Target = tn
	return s, nil
}

// tupleDecl reads a declaration of several names at once. The target is
// written as a single mangled name, which code generation splits back
// into a tuple.
func (l *loader) tupleDecl(v cue.Value) (ast.Stmt, error) {
	targets, err := list(v, "declare", true)
	if err != nil {
		return nil, err
	}
	typeVals, err := list(v, "type", true)
	if err != nil {
		return nil, err
	}
	vals, err := list(v, "value", true)
	if err != nil {
		return nil, err
	}
	if len(targets) < 2 || len(typeVals) != len(targets) || len(vals) != len(targets) {
		return nil, errorf(v, "declare", "tuple declaration needs matching names, types and values")
	}

	s := &ast.AnnAssign{NodeID: l.id()}
	anns := &ast.Tuple{NodeID: l.id()}
	values := &ast.Tuple{NodeID: l.id()}
	names := make([]string, len(targets))
	typs := make([]types.Descriptor, len(targets))
	for i := range targets {
		if names[i], err = targets[i].String(); err != nil {
			return nil, errorf(targets[i], "declare", "declare must name variables")
		}
		if strings.Contains(names[i], ast.TupleSeparator) {
			return nil, errorf(targets[i], "declare", "%s cannot contain %q", names[i], ast.TupleSeparator)
		}
		if typs[i], err = parseType(typeVals[i]); err != nil {
			return nil, err
		}
		anns.Elems = append(anns.Elems, &ast.TypeRef{NodeID: l.id(), Typ: typs[i]})
		e, err := l.expr(vals[i], typs[i])
		if err != nil {
			return nil, err
		}
		values.Elems = append(values.Elems, e)
	}
	id := l.id()
	for i, name := range names {
		if err := l.declare(targets[i], name, typs[i], id); err != nil {
			return nil, err
		}
	}
	s.Target = &ast.Name{NodeID: id, Ident: strings.Join(names, ast.TupleSeparator)}
	s.Annotation = anns
	s.Value = values
	return s, nil
}

func (l *loader) declare(v cue.Value, name string, typ types.Descriptor, id ast.NodeID) error {
	if err := l.scope.Declare(sema.Symbol{Name: name, Kind: sema.SymLocal, Type: typ}, id); err != nil {
		return errorf(v, "declare", "%v", err)
	}
	return nil
}
