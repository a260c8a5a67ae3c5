package ast

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/types"
)

var (
	u8  = types.Int(8, false)
	i16 = types.Int(16, true)
)

func tupleModule(target string, annTypes []types.Descriptor, values int) *Module {
	ann := &Tuple{NodeID: 4}
	for i, t := range annTypes {
		ann.Elems = append(ann.Elems, &TypeRef{NodeID: NodeID(10 + i), Typ: t})
	}
	val := &Tuple{NodeID: 5}
	for i := 0; i < values; i++ {
		val.Elems = append(val.Elems, &Literal{NodeID: NodeID(20 + i), Kind: LitInt, Value: "1", Typ: u8})
	}
	return &Module{
		NodeID: 1,
		Name:   "c",
		Functions: []*FunctionDef{{
			NodeID: 2,
			Name:   "f",
			Body: []Stmt{
				&AnnAssign{NodeID: 3, Target: &Name{NodeID: 6, Ident: target}, Annotation: ann, Value: val},
				&Pass{NodeID: 7},
			},
		}},
	}
}

func TestUnmangleTupleDeclarations(t *testing.T) {
	m := tupleModule("a__b", []types.Descriptor{u8, i16}, 2)
	before := cloneModule(m)

	got, err := UnmangleTupleDeclarations(m)
	require.NoError(t, err)

	decl := got.Functions[0].Body[0].(*AnnAssign)
	want := &Tuple{NodeID: 6, Elems: []Expr{
		&Name{NodeID: 22, Ident: "a", Typ: u8},
		&Name{NodeID: 23, Ident: "b", Typ: i16},
	}}
	if diff := cmp.Diff(want, decl.Target, cmp.AllowUnexported(types.Descriptor{})); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}

	// Pure: the input tree is untouched and unrelated nodes are shared.
	if diff := cmp.Diff(before, m, cmp.AllowUnexported(types.Descriptor{})); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
	assert.Same(t, m.Functions[0].Body[1], got.Functions[0].Body[1])
	assert.Same(t, m.Functions[0].Body[0].(*AnnAssign).Value, decl.Value)
}

func TestUnmangleLeavesPlainDeclarations(t *testing.T) {
	m := &Module{Functions: []*FunctionDef{{Body: []Stmt{
		&AnnAssign{NodeID: 3, Target: &Name{NodeID: 4, Ident: "plain_name"}, Annotation: &TypeRef{NodeID: 5, Typ: u8},
			Value: &Literal{NodeID: 6, Kind: LitInt, Value: "1", Typ: u8}},
	}}}}
	got, err := UnmangleTupleDeclarations(m)
	require.NoError(t, err)
	assert.Same(t, m.Functions[0], got.Functions[0])
}

func TestUnmangleArityMismatchIsCompilerPanic(t *testing.T) {
	_, err := UnmangleTupleDeclarations(tupleModule("a__b__c", []types.Descriptor{u8, i16}, 3))
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindCompilerPanic))

	_, err = UnmangleTupleDeclarations(tupleModule("a__b", []types.Descriptor{u8, i16}, 3))
	assert.True(t, diag.Is(err, diag.KindCompilerPanic))
}

func TestUnmangleWithoutTupleTypes(t *testing.T) {
	m := &Module{Functions: []*FunctionDef{{Body: []Stmt{
		&AnnAssign{NodeID: 3, Target: &Name{NodeID: 4, Ident: "a__b"}, Annotation: &TypeRef{NodeID: 5, Typ: u8},
			Value: &Literal{NodeID: 6, Kind: LitInt, Value: "1", Typ: u8}},
	}}}}
	_, err := UnmangleTupleDeclarations(m)
	assert.True(t, diag.Is(err, diag.KindCompilerPanic))
}

func TestMaxIDAndInspect(t *testing.T) {
	m := tupleModule("a__b", []types.Descriptor{u8, i16}, 2)
	assert.Equal(t, NodeID(21), MaxID(m))

	var names []string
	Inspect(m, func(n Node) bool {
		if nm, ok := n.(*Name); ok {
			names = append(names, nm.Ident)
		}
		return true
	})
	assert.Equal(t, []string{"a__b"}, names)
}

func TestSignature(t *testing.T) {
	f := &FunctionDef{Name: "transfer", Args: []*Arg{
		{Name: "to", Typ: types.Address()},
		{Name: "amount", Typ: types.Uint256},
		{Name: "memo", Typ: types.DynBytes(64)},
	}}
	assert.Equal(t, "transfer(address,uint256,bytes)", f.Signature())
	assert.Equal(t, "foo1()", (&FunctionDef{Name: "foo1"}).Signature())
}

func cloneModule(m *Module) *Module {
	out := *m
	out.Functions = nil
	for _, f := range m.Functions {
		fc := *f
		fc.Body = append([]Stmt(nil), f.Body...)
		for i, s := range fc.Body {
			if d, ok := s.(*AnnAssign); ok {
				dc := *d
				if n, ok := d.Target.(*Name); ok {
					nc := *n
					dc.Target = &nc
				}
				fc.Body[i] = &dc
			}
		}
		out.Functions = append(out.Functions, &fc)
	}
	return &out
}
