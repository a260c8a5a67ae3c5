package codegen

import (
	"fmt"
	"math/big"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/clamp"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/numeric"
	"github.com/roach88/kiln/internal/types"
)

var (
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	minusOne  = big.NewInt(-1)
)

// rawMulBits is the widest operand for which a product cannot leave the
// word.
const rawMulBits = 128

func (f *frame) binOp(e *ast.BinOp) (*ir.Node, error) {
	l, r, typ, err := f.operands(e, e.Op, e.Left, e.Right)
	if err != nil {
		return nil, err
	}
	if typ.Tag() != types.TagInteger && typ.Tag() != types.TagDecimal {
		return nil, diag.TypeMismatch(int(e.ID()), "%s does not support %s", typ, e.Op)
	}
	out, err := f.b.Cache(l, "l", func(x *ir.Node) (*ir.Node, error) {
		return f.b.Cache(r, "r", func(y *ir.Node) (*ir.Node, error) {
			return f.arith(e, x, y, typ)
		})
	})
	if err != nil {
		return nil, err
	}
	return out.WithType(typ).WithAnnotation(fmt.Sprintf("%s %s", typ, e.Op)), nil
}

// arith computes x op y and reverts when the result leaves typ.
func (f *frame) arith(e *ast.BinOp, x, y *ir.Node, typ types.Descriptor) (*ir.Node, error) {
	signed, bits := typ.Signed(), typ.Bits()
	decimal := typ.Tag() == types.TagDecimal

	var (
		res *ir.Node
		err error
	)
	switch e.Op {
	case "+":
		if bits < 256 {
			res = ir.New(ir.OpAdd, x, y)
		} else {
			res, err = f.checkedAdd(x, y, signed)
		}
	case "-":
		if bits < 256 {
			res = ir.New(ir.OpSub, x, y)
		} else {
			res, err = f.checkedSub(x, y, signed)
		}
	case "*":
		if bits <= rawMulBits {
			res = ir.New(ir.OpMul, x, y)
		} else {
			res, err = f.checkedMul(x, y, signed)
		}
		if err == nil && decimal {
			res = ir.New(ir.OpSDiv, res, ir.Const(numeric.Divisor()))
		}
	case "/":
		var nz *ir.Node
		if nz, err = clamp.NonZero(f.b, y); err != nil {
			return nil, err
		}
		switch {
		case decimal:
			res = ir.New(ir.OpSDiv, ir.New(ir.OpMul, x, ir.Const(numeric.Divisor())), nz)
		case !signed:
			res = ir.New(ir.OpDiv, x, nz)
		case bits == 256:
			// The one signed quotient that does not fit.
			overflow := ir.New(ir.OpAnd, ir.New(ir.OpEq, x, ir.Const(minInt256)), ir.New(ir.OpEq, y, ir.Const(minusOne)))
			res = ir.Seq(ir.Assert(ir.New(ir.OpIsZero, overflow)), ir.New(ir.OpSDiv, x, nz))
		default:
			res = ir.New(ir.OpSDiv, x, nz)
		}
	case "%":
		var nz *ir.Node
		if nz, err = clamp.NonZero(f.b, y); err != nil {
			return nil, err
		}
		op := ir.OpMod
		if signed {
			op = ir.OpSMod
		}
		res = ir.New(op, x, nz)
	default:
		return nil, diag.Structure(int(e.ID()), "unknown operator %q", e.Op)
	}
	if err != nil {
		return nil, err
	}
	if bits < 256 {
		return clamp.IntClamp(f.b, res.WithType(typ), bits, signed)
	}
	return res, nil
}

func (f *frame) checkedAdd(x, y *ir.Node, signed bool) (*ir.Node, error) {
	return f.b.Cache(ir.New(ir.OpAdd, x, y), "res", func(res *ir.Node) (*ir.Node, error) {
		var ok *ir.Node
		if signed {
			// Adding a negative must decrease, anything else must not.
			ok = ir.New(ir.OpEq, ir.New(ir.OpSlt, res, x), ir.New(ir.OpSlt, y, ir.Int64(0)))
		} else {
			ok = ir.New(ir.OpIsZero, ir.New(ir.OpLt, res, x))
		}
		return ir.Seq(ir.Assert(ok), res), nil
	})
}

func (f *frame) checkedSub(x, y *ir.Node, signed bool) (*ir.Node, error) {
	if !signed {
		ok := ir.New(ir.OpIsZero, ir.New(ir.OpGt, y, x))
		return ir.Seq(ir.Assert(ok), ir.New(ir.OpSub, x, y)), nil
	}
	return f.b.Cache(ir.New(ir.OpSub, x, y), "res", func(res *ir.Node) (*ir.Node, error) {
		ok := ir.New(ir.OpEq, ir.New(ir.OpSgt, res, x), ir.New(ir.OpSlt, y, ir.Int64(0)))
		return ir.Seq(ir.Assert(ok), res), nil
	})
}

func (f *frame) checkedMul(x, y *ir.Node, signed bool) (*ir.Node, error) {
	return f.b.Cache(ir.New(ir.OpMul, x, y), "res", func(res *ir.Node) (*ir.Node, error) {
		div := ir.OpDiv
		if signed {
			div = ir.OpSDiv
		}
		checks := []*ir.Node{
			ir.Assert(ir.New(ir.OpOr, ir.New(ir.OpIsZero, x), ir.New(ir.OpEq, ir.New(div, res, x), y))),
		}
		if signed {
			// -1 * MIN wraps to MIN and passes the division check.
			overflow := ir.New(ir.OpAnd, ir.New(ir.OpEq, x, ir.Const(minusOne)), ir.New(ir.OpEq, y, ir.Const(minInt256)))
			checks = append(checks, ir.Assert(ir.New(ir.OpIsZero, overflow)))
		}
		return ir.Seq(append(checks, res)...), nil
	})
}
