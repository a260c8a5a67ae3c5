package codegen

import (
	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/sema"
	"github.com/roach88/kiln/internal/types"
)

func (f *frame) stmt(s ast.Stmt) (*ir.Node, error) {
	switch s := s.(type) {
	case *ast.Pass:
		return ir.New(ir.OpPass), nil
	case *ast.Return:
		return f.ret(s)
	case *ast.Assert:
		test, err := f.expr(s.Test)
		if err != nil {
			return nil, err
		}
		if err := sameType(s.Test, test.Type(), types.Bool()); err != nil {
			return nil, err
		}
		return ir.Assert(ir.Load(test)), nil
	case *ast.AnnAssign:
		return f.declaration(s)
	}
	return nil, diag.Panicf("codegen: unhandled statement %T", s)
}

func (f *frame) ret(s *ast.Return) (*ir.Node, error) {
	want := f.def.Returns
	if s.Value == nil {
		if want.Valid() {
			return nil, diag.Structure(int(s.ID()), "%s must return a %s", f.def.Name, want)
		}
		return ir.New(ir.OpStop), nil
	}
	if !want.Valid() {
		return nil, diag.Structure(int(s.ID()), "%s does not return a value", f.def.Name)
	}
	v, err := f.expr(s.Value)
	if err != nil {
		return nil, err
	}
	if err := sameType(s.Value, v.Type(), want); err != nil {
		return nil, err
	}

	if want.IsBaseType() {
		return ir.Seq(
			ir.New(ir.OpMStore, ir.Int64(0), ir.Load(v)),
			ir.New(ir.OpReturn, ir.Int64(0), ir.Int64(types.WordBytes)),
		), nil
	}

	// A byte array is returned ABI encoded: an offset word, then the
	// length-prefixed payload padded to whole words.
	buf := f.alloc(want)
	f.alloc(types.Uint256)
	body := ir.New(ir.OpMStore, ir.Int64(int64(buf)), ir.Int64(types.WordBytes))
	copied, err := f.copyWords(buf+types.WordBytes, v, v.Type())
	if err != nil {
		return nil, err
	}
	length := ir.New(ir.OpMLoad, ir.Int64(int64(buf+types.WordBytes)))
	padded := ir.New(ir.OpAnd, ir.New(ir.OpAdd, length, ir.Int64(types.WordBytes-1)), ir.New(ir.OpNot, ir.Int64(types.WordBytes-1)))
	size := ir.New(ir.OpAdd, ir.Int64(2*types.WordBytes), padded)
	return ir.Seq(body, copied, ir.New(ir.OpReturn, ir.Int64(int64(buf)), size)), nil
}

func (f *frame) declaration(s *ast.AnnAssign) (*ir.Node, error) {
	switch target := s.Target.(type) {
	case *ast.Name:
		ann, ok := s.Annotation.(*ast.TypeRef)
		if !ok {
			return nil, diag.Structure(int(s.ID()), "declaration of %s needs a type", target.Ident)
		}
		return f.declare1(target, ann.Typ, s.Value)

	case *ast.Tuple:
		anns, ok := s.Annotation.(*ast.Tuple)
		vals, ok2 := s.Value.(*ast.Tuple)
		if !ok || !ok2 || len(anns.Elems) != len(target.Elems) || len(vals.Elems) != len(target.Elems) {
			return nil, diag.Panicf("codegen: malformed tuple declaration at node %d", s.ID())
		}
		stores := make([]*ir.Node, 0, len(target.Elems))
		for i, t := range target.Elems {
			name, ok := t.(*ast.Name)
			ann, ok2 := anns.Elems[i].(*ast.TypeRef)
			if !ok || !ok2 {
				return nil, diag.Panicf("codegen: malformed tuple element %d at node %d", i, s.ID())
			}
			n, err := f.declare1(name, ann.Typ, vals.Elems[i])
			if err != nil {
				return nil, err
			}
			stores = append(stores, n)
		}
		return ir.Seq(stores...), nil
	}
	return nil, diag.Structure(int(s.ID()), "cannot declare %T", s.Target)
}

// declare1 declares one local and stores its initial value.
func (f *frame) declare1(target *ast.Name, typ types.Descriptor, value ast.Expr) (*ir.Node, error) {
	v, err := f.expr(value)
	if err != nil {
		return nil, err
	}
	if err := sameType(value, v.Type(), typ); err != nil {
		return nil, err
	}
	if err := f.declare(target.Ident, sema.SymLocal, typ, target.ID()); err != nil {
		return nil, err
	}
	slot, _ := f.slots.Get(target.Ident)
	if typ.IsBaseType() {
		return ir.New(ir.OpMStore, ir.Int64(int64(slot)), ir.Load(v)), nil
	}
	return f.copyWords(slot, v, v.Type())
}

// copyWords copies a byte array, length word included, to dst.
func (f *frame) copyWords(dst int, src *ir.Node, typ types.Descriptor) (*ir.Node, error) {
	if src.Kind() != ir.KindLoc || src.Location() != ir.Memory {
		return nil, diag.Panicf("codegen: %s copy source is not in memory", typ)
	}
	words := typ.MemoryBytes() / types.WordBytes
	return f.b.Cache(src.Pointer(), "src", func(ptr *ir.Node) (*ir.Node, error) {
		stores := make([]*ir.Node, words)
		for i := range stores {
			off := int64(i * types.WordBytes)
			at := ir.New(ir.OpAdd, ptr, ir.Int64(off))
			stores[i] = ir.New(ir.OpMStore, ir.Int64(int64(dst)+off), ir.New(ir.OpMLoad, at))
		}
		return ir.Seq(stores...), nil
	})
}
