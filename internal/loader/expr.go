package loader

import (
	"encoding/hex"
	"math/big"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/types"
)

var arithOps = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true}

var compareOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true}

// literalKinds maps the field naming a literal to its kind, in the order
// fields are looked for.
var literalKinds = []struct {
	field string
	kind  ast.LitKind
}{
	{"int", ast.LitInt},
	{"decimal", ast.LitDecimal},
	{"hex", ast.LitHex},
	{"bytes", ast.LitBytes},
	{"str", ast.LitStr},
	{"bool", ast.LitBool},
}

func has(v cue.Value, field string) (cue.Value, bool) {
	f := v.LookupPath(cue.ParsePath(field))
	return f, f.Exists()
}

// expr reads an expression. hint is the type the context expects, or the
// zero Descriptor when there is none; it only decides the type of
// untyped literals.
func (l *loader) expr(v cue.Value, hint types.Descriptor) (ast.Expr, error) {
	if v.Kind() != cue.StructKind {
		return nil, errorf(v, "expr", "expression must be a struct, got %v", v.Kind())
	}
	for _, lk := range literalKinds {
		if f, ok := has(v, lk.field); ok {
			return l.literal(v, f, lk.kind, hint)
		}
	}
	if f, ok := has(v, "name"); ok {
		return l.name(f)
	}
	if f, ok := has(v, "op"); ok {
		return l.binary(v, f, hint)
	}
	if f, ok := has(v, "convert"); ok {
		return l.convert(v, f)
	}
	return nil, errorf(v, "expr", "unrecognized expression")
}

func (l *loader) name(v cue.Value) (ast.Expr, error) {
	ident, err := v.String()
	if err != nil {
		return nil, errorf(v, "name", "name must be a string")
	}
	sym, ok := l.scope.Lookup(ident)
	if !ok {
		return nil, errorf(v, "name", "%s is not declared", ident)
	}
	return &ast.Name{NodeID: l.id(), Ident: ident, Typ: sym.Type}, nil
}

func (l *loader) binary(v, opv cue.Value, hint types.Descriptor) (ast.Expr, error) {
	op, err := opv.String()
	if err != nil {
		return nil, errorf(opv, "op", "op must be a string")
	}
	if !arithOps[op] && !compareOps[op] {
		return nil, errorf(opv, "op", "unknown operator %q", op)
	}
	lv, ok := has(v, "left")
	if !ok {
		return nil, errorf(v, "left", "%s needs a left operand", op)
	}
	rv, ok := has(v, "right")
	if !ok {
		return nil, errorf(v, "right", "%s needs a right operand", op)
	}

	id := l.id()
	// A comparison says nothing about its operand types.
	if compareOps[op] {
		hint = types.Descriptor{}
	}
	left, err := l.expr(lv, hint)
	if err != nil {
		return nil, err
	}
	right, err := l.expr(rv, hint)
	if err != nil {
		return nil, err
	}
	// An untyped literal takes the type of the other side.
	if !l.fit(left, right.Type()) {
		l.fit(right, left.Type())
	}

	if compareOps[op] {
		return &ast.Compare{NodeID: id, Op: op, Left: left, Right: right}, nil
	}
	return &ast.BinOp{NodeID: id, Op: op, Left: left, Right: right, Typ: left.Type()}, nil
}

func (l *loader) convert(v, arg cue.Value) (ast.Expr, error) {
	to, ok := has(v, "to")
	if !ok {
		return nil, errorf(v, "to", "convert needs a target type")
	}
	target, err := parseType(to)
	if err != nil {
		return nil, err
	}

	id := l.id()
	call := &ast.Convert{NodeID: id, Typ: target}
	// A list spells out every argument; the builtin reports the wrong
	// count itself.
	args := []cue.Value{arg}
	if arg.Kind() == cue.ListKind {
		if args, err = list(v, "convert", true); err != nil {
			return nil, err
		}
	}
	for _, av := range args {
		e, err := l.expr(av, types.Descriptor{})
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
	}
	call.Args = append(call.Args, &ast.TypeRef{NodeID: l.id(), Typ: target})
	return call, nil
}

// literal reads a literal. Its type is, in order: the explicit type
// field, hint when the literal can take it, or the literal's own type.
func (l *loader) literal(v, f cue.Value, kind ast.LitKind, hint types.Descriptor) (ast.Expr, error) {
	value, err := literalValue(f, kind)
	if err != nil {
		return nil, err
	}
	lit := &ast.Literal{NodeID: l.id(), Kind: kind, Value: value}

	if tv, ok := has(v, "type"); ok {
		if lit.Typ, err = parseType(tv); err != nil {
			return nil, err
		}
		l.explicit[lit.NodeID] = true
		return lit, nil
	}
	if lit.Typ, err = defaultType(f, kind, value); err != nil {
		return nil, err
	}
	l.fit(lit, hint)
	return lit, nil
}

// fit gives an untyped literal the type want when its kind can hold a
// want. It reports whether e was retyped.
func (l *loader) fit(e ast.Expr, want types.Descriptor) bool {
	lit, ok := e.(*ast.Literal)
	if !ok || l.explicit[lit.NodeID] || !want.Valid() || !want.IsBaseType() {
		return false
	}
	if !accepts(lit.Kind, want) {
		return false
	}
	lit.Typ = want
	return true
}

func accepts(kind ast.LitKind, t types.Descriptor) bool {
	switch kind {
	case ast.LitInt:
		return t.Tag() == types.TagInteger || t.Tag() == types.TagDecimal
	case ast.LitDecimal:
		return t.Tag() == types.TagDecimal
	case ast.LitHex:
		return t.Tag() == types.TagFixedBytes || t.Tag() == types.TagAddress || t.Tag() == types.TagInteger
	case ast.LitBool:
		return t.Tag() == types.TagBool
	}
	return false
}

func literalValue(f cue.Value, kind ast.LitKind) (string, error) {
	switch kind {
	case ast.LitInt:
		switch f.Kind() {
		case cue.IntKind:
			n, err := f.Int(nil)
			if err != nil {
				return "", errorf(f, "int", "%v", err)
			}
			return n.String(), nil
		case cue.StringKind:
			s, _ := f.String()
			if _, ok := new(big.Int).SetString(s, 10); !ok {
				return "", errorf(f, "int", "%q is not an integer", s)
			}
			return s, nil
		}
		return "", errorf(f, "int", "int literal must be an integer")

	case ast.LitDecimal:
		switch f.Kind() {
		case cue.StringKind:
			s, _ := f.String()
			return s, nil
		case cue.IntKind:
			n, _ := f.Int(nil)
			return n.String(), nil
		}
		return "", errorf(f, "decimal", "decimal literals must be quoted strings, got %v", f.Kind())

	case ast.LitHex:
		s, err := f.String()
		if err != nil {
			return "", errorf(f, "hex", "hex literal must be a string")
		}
		if !strings.HasPrefix(s, "0x") || len(s) == 2 {
			return "", errorf(f, "hex", "hex literal %q must start with 0x", s)
		}
		if _, err := hex.DecodeString(s[2:]); err != nil {
			return "", errorf(f, "hex", "hex literal %q: %v", s, err)
		}
		return s, nil

	case ast.LitBytes:
		if f.Kind() == cue.BytesKind {
			b, _ := f.Bytes()
			return string(b), nil
		}
		s, err := f.String()
		if err != nil {
			return "", errorf(f, "bytes", "bytes literal must be bytes or a string")
		}
		return s, nil

	case ast.LitStr:
		s, err := f.String()
		if err != nil {
			return "", errorf(f, "str", "str literal must be a string")
		}
		return s, nil

	case ast.LitBool:
		b, err := f.Bool()
		if err != nil {
			return "", errorf(f, "bool", "bool literal must be true or false")
		}
		if b {
			return "true", nil
		}
		return "false", nil
	}
	return "", errorf(f, "literal", "unknown literal kind %v", kind)
}

// defaultType is the type of a literal written without one.
func defaultType(f cue.Value, kind ast.LitKind, value string) (types.Descriptor, error) {
	switch kind {
	case ast.LitInt:
		if strings.HasPrefix(value, "-") {
			return types.Int256, nil
		}
		return types.Uint256, nil
	case ast.LitDecimal:
		return types.Decimal(), nil
	case ast.LitHex:
		n := (len(value) - 2) / 2
		if n > types.WordBytes {
			return types.Descriptor{}, errorf(f, "hex", "hex literal %s is wider than %d bytes", value, types.WordBytes)
		}
		return types.FixedBytes(n), nil
	case ast.LitBytes:
		return types.DynBytes(max(len(value), 1)), nil
	case ast.LitStr:
		return types.DynString(max(len(value), 1)), nil
	}
	return types.Bool(), nil
}
