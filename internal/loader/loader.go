// Package loader reads a contract written as a CUE document into a typed
// program tree.
//
// The document shape is:
//
//	contract: {
//		name: "token"
//		immutables: [{name: "cap", type: "uint256", value: {int: 1000}}]
//		functions: [{
//			name: "double"
//			args: [{name: "x", type: "uint128"}]
//			returns: "uint128"
//			body: [{return: {op: "*", left: {name: "x"}, right: {int: 2}}}]
//		}]
//	}
//
// Every expression comes out carrying its resolved type. Literal types are
// taken from an explicit type field, then from context, then from the
// literal itself.
package loader

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/sema"
	"github.com/roach88/kiln/internal/types"
)

// CompileError is a malformed program, with the CUE position of the
// offending value when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func errorf(v cue.Value, field, format string, args ...any) *CompileError {
	return &CompileError{Field: field, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// LoadFile loads the contract in the CUE file at path.
func LoadFile(path string) (*ast.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(path, src)
}

// Load loads a contract from CUE source. filename is used for positions.
func Load(filename string, src []byte) (*ast.Module, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	c := v.LookupPath(cue.ParsePath("contract"))
	if !c.Exists() {
		return nil, errorf(v, "contract", "contract is required")
	}
	if err := c.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	l := &loader{scope: sema.NewScope(), explicit: map[ast.NodeID]bool{}}
	return l.module(c)
}

type loader struct {
	scope *sema.Scope
	next  ast.NodeID

	// explicit marks literals written with a type field.
	explicit map[ast.NodeID]bool
}

func (l *loader) id() ast.NodeID {
	l.next++
	return l.next
}

func (l *loader) module(v cue.Value) (*ast.Module, error) {
	m := &ast.Module{NodeID: l.id()}
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	m.Name = name

	imms, err := list(v, "immutables", false)
	if err != nil {
		return nil, err
	}
	for _, iv := range imms {
		im, err := l.immutable(iv)
		if err != nil {
			return nil, err
		}
		m.Immutables = append(m.Immutables, im)
	}

	fns, err := list(v, "functions", true)
	if err != nil {
		return nil, err
	}
	for _, fv := range fns {
		fn, err := l.function(fv)
		if err != nil {
			return nil, err
		}
		m.Functions = append(m.Functions, fn)
	}
	return m, nil
}

func (l *loader) immutable(v cue.Value) (*ast.Immutable, error) {
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	typ, err := requiredType(v, "type")
	if err != nil {
		return nil, err
	}
	val := v.LookupPath(cue.ParsePath("value"))
	if !val.Exists() {
		return nil, errorf(v, "immutable", "immutable %s needs a value", name)
	}
	// The value cannot refer to the immutable itself, so it is read
	// before the name is declared.
	e, err := l.expr(val, typ)
	if err != nil {
		return nil, err
	}
	im := &ast.Immutable{NodeID: l.id(), Name: name, Typ: typ, Value: e}
	if err := l.scope.Declare(sema.Symbol{Name: name, Kind: sema.SymImmutable, Type: typ}, im.NodeID); err != nil {
		return nil, errorf(v, "name", "%v", err)
	}
	return im, nil
}

func (l *loader) function(v cue.Value) (*ast.FunctionDef, error) {
	fn := &ast.FunctionDef{NodeID: l.id()}
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	fn.Name = name

	if p := v.LookupPath(cue.ParsePath("payable")); p.Exists() {
		if fn.Payable, err = p.Bool(); err != nil {
			return nil, errorf(p, "payable", "payable must be a bool")
		}
	}
	if r := v.LookupPath(cue.ParsePath("returns")); r.Exists() {
		if fn.Returns, err = parseType(r); err != nil {
			return nil, err
		}
	}

	l.scope.Enter()
	defer l.scope.Exit()

	args, err := list(v, "args", false)
	if err != nil {
		return nil, err
	}
	for _, av := range args {
		argName, err := requiredString(av, "name")
		if err != nil {
			return nil, err
		}
		typ, err := requiredType(av, "type")
		if err != nil {
			return nil, err
		}
		arg := &ast.Arg{NodeID: l.id(), Name: argName, Typ: typ}
		if err := l.scope.Declare(sema.Symbol{Name: argName, Kind: sema.SymArg, Type: typ}, arg.NodeID); err != nil {
			return nil, errorf(av, "name", "%v", err)
		}
		fn.Args = append(fn.Args, arg)
	}

	body, err := list(v, "body", true)
	if err != nil {
		return nil, err
	}
	for _, sv := range body {
		s, err := l.stmt(sv, fn.Returns)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		fn.Body = append(fn.Body, s)
	}
	return fn, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", errorf(v, field, "%s is required", field)
	}
	s, err := f.String()
	if err != nil {
		return "", errorf(f, field, "%s must be a string", field)
	}
	return s, nil
}

func requiredType(v cue.Value, field string) (types.Descriptor, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return types.Descriptor{}, errorf(v, field, "%s is required", field)
	}
	return parseType(f)
}

func parseType(v cue.Value) (types.Descriptor, error) {
	s, err := v.String()
	if err != nil {
		return types.Descriptor{}, errorf(v, "type", "type must be a string")
	}
	t, err := types.Parse(s)
	if err != nil {
		return types.Descriptor{}, errorf(v, "type", "%v", err)
	}
	return t, nil
}

// list returns the elements of the list at field. A missing optional list
// is empty; a missing required one is an error.
func list(v cue.Value, field string, required bool) ([]cue.Value, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		if required {
			return nil, errorf(v, field, "%s is required", field)
		}
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, errorf(f, field, "%s must be a list", field)
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}
