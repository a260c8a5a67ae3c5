package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/types"
)

func fn(id ast.NodeID, name string, args ...*ast.Arg) *ast.FunctionDef {
	return &ast.FunctionDef{NodeID: id, Name: name, Args: args, Body: []ast.Stmt{&ast.Pass{NodeID: id + 100}}}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	m := &ast.Module{
		Name:       "ok",
		Immutables: []*ast.Immutable{{NodeID: 1, Name: "cap", Typ: types.Uint256}},
		Functions:  []*ast.FunctionDef{fn(2, "foo", &ast.Arg{NodeID: 3, Name: "x", Typ: types.Uint256})},
	}
	assert.Empty(t, Validate(m))
}

func TestValidateEmptyModule(t *testing.T) {
	errs := Validate(&ast.Module{Name: "  "})
	assert.Equal(t, []string{ErrContractNameEmpty, ErrNoFunctions}, codes(errs))
}

// Validation reports every problem, not just the first.
func TestValidateCollectsAllErrors(t *testing.T) {
	empty := fn(5, "empty")
	empty.Body = nil
	m := &ast.Module{
		Name: "bad",
		Immutables: []*ast.Immutable{
			{NodeID: 1, Name: "memo", Typ: types.DynBytes(10)},
			{NodeID: 2, Name: "memo", Typ: types.Uint256},
		},
		Functions: []*ast.FunctionDef{
			fn(3, "f", &ast.Arg{NodeID: 10, Name: "memo", Typ: types.Uint256}),
			fn(4, "f"),
			empty,
			fn(6, "a__b"),
		},
	}
	errs := Validate(m)
	assert.ElementsMatch(t, []string{
		ErrImmutableType,
		ErrDuplicateName,
		ErrDuplicateName,
		ErrDuplicateFunction,
		ErrEmptyBody,
		ErrInvalidIdentifier,
	}, codes(errs))
}

func TestValidateIdentifiers(t *testing.T) {
	for _, name := range []string{"", "1abc", "has space", "_private", "a__b", "dash-ed"} {
		errs := Validate(&ast.Module{Name: "c", Functions: []*ast.FunctionDef{fn(1, name)}})
		assert.Contains(t, codes(errs), ErrInvalidIdentifier, "%q", name)
	}
	for _, name := range []string{"a", "transfer", "foo_bar2", "A1"} {
		errs := Validate(&ast.Module{Name: "c", Functions: []*ast.FunctionDef{fn(1, name)}})
		assert.Empty(t, errs, "%q", name)
	}
}

func TestValidateOversizedReturn(t *testing.T) {
	f := fn(1, "big")
	f.Returns = types.DynBytes(5000)
	errs := Validate(&ast.Module{Name: "c", Functions: []*ast.FunctionDef{f}})
	assert.Equal(t, []string{ErrDynamicReturnValue}, codes(errs))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "functions[0].name", Message: "invalid identifier", Code: ErrInvalidIdentifier, Node: 4}
	assert.Equal(t, "[E105] node 4: functions[0].name: invalid identifier", e.Error())
	e.Node = 0
	assert.Equal(t, "[E105] functions[0].name: invalid identifier", e.Error())
}
