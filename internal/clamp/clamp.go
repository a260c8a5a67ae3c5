// Package clamp emits runtime range checks.
//
// Every check either passes the checked value through or reverts. The
// generator never emits a check the declared bounds already prove.
package clamp

import (
	"fmt"
	"math/big"

	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/types"
)

// Range is an inclusive value range in a descriptor's own units.
type Range struct {
	Lo, Hi *big.Int
	Signed bool
}

// RangeOf returns the range of a numeric descriptor.
func RangeOf(t types.Descriptor) (Range, bool) {
	lo, hi, ok := t.Bounds()
	if !ok {
		return Range{}, false
	}
	return Range{Lo: lo, Hi: hi, Signed: t.Signed()}, true
}

// Bounds wraps arg with the checks needed to keep a value from src inside
// dst: a signed lower check when src.Lo < dst.Lo and an upper check when
// src.Hi > dst.Hi. The upper check compares signed only when both ranges
// are signed; with mixed signedness the raw bit pattern must be compared
// unsigned.
func Bounds(arg *ir.Node, src, dst Range) *ir.Node {
	typ := arg.Type()
	if src.Lo.Cmp(dst.Lo) < 0 {
		arg = ir.New(ir.OpClampGE, arg, ir.Const(dst.Lo))
	}
	if src.Hi.Cmp(dst.Hi) > 0 {
		op := ir.OpUClampLE
		if src.Signed && dst.Signed {
			op = ir.OpClampLE
		}
		arg = ir.New(op, arg, ir.Const(dst.Hi))
	}
	return arg.WithType(typ)
}

// IntClamp checks that x fits in an integer of the given width.
//
// Signed: x must equal its own sign extension from bit bits-1.
// Unsigned: x shifted right by bits must be zero.
func IntClamp(b *ir.Bindings, x *ir.Node, bits int, signed bool) (*ir.Node, error) {
	if bits >= 256 || bits < 1 {
		return nil, diag.Panicf("int_clamp: invalid width %d", bits)
	}
	if signed && bits%8 != 0 {
		return nil, diag.Panicf("int_clamp: signed width %d is not byte aligned", bits)
	}
	out, err := b.Cache(x, "val", func(val *ir.Node) (*ir.Node, error) {
		var ok *ir.Node
		if signed {
			ext := ir.New(ir.OpSignExtend, ir.Int64(int64(bits/8-1)), val)
			ok = ir.New(ir.OpEq, val, ext)
		} else {
			ok = ir.New(ir.OpIsZero, ir.Shr(ir.Int64(int64(bits)), val))
		}
		return ir.Seq(ir.Assert(ok), val), nil
	})
	if err != nil {
		return nil, err
	}
	return out.WithType(x.Type()).WithAnnotation(fmt.Sprintf("int_clamp %d", bits)), nil
}

// BytesClamp checks that only the leading n bytes of x are set.
func BytesClamp(b *ir.Bindings, x *ir.Node, n int) (*ir.Node, error) {
	if n < 1 || n > types.WordBytes {
		return nil, diag.Panicf("bytes_clamp: invalid width %d", n)
	}
	out, err := b.Cache(x, "val", func(val *ir.Node) (*ir.Node, error) {
		ok := ir.New(ir.OpIsZero, ir.Shl(ir.Int64(int64(8*n)), val))
		return ir.Seq(ir.Assert(ok), val), nil
	})
	if err != nil {
		return nil, err
	}
	return out.WithType(x.Type()).WithAnnotation(fmt.Sprintf("bytes%d_clamp", n)), nil
}

// BaseType validates a word of type typ, as read from untrusted input.
// Full-width types need no check.
func BaseType(b *ir.Bindings, x *ir.Node, typ types.Descriptor) (*ir.Node, error) {
	x = ir.Load(x)
	var (
		out *ir.Node
		err error
	)
	switch typ.Tag() {
	case types.TagInteger, types.TagDecimal:
		if typ.Bits() == 256 {
			out = x
		} else {
			out, err = IntClamp(b, x, typ.Bits(), typ.Signed())
		}
	case types.TagFixedBytes:
		if typ.M() == types.WordBytes {
			out = x
		} else {
			out, err = BytesClamp(b, x, typ.M())
		}
	case types.TagAddress:
		out, err = IntClamp(b, x, types.AddressBits, false)
	case types.TagBool:
		out, err = IntClamp(b, x, 1, false)
	default:
		return nil, diag.Panicf("clamp_basetype: %s is not a base type", typ)
	}
	if err != nil {
		return nil, err
	}
	return out.WithType(typ), nil
}

// NonZero reverts when x is zero and otherwise yields x.
func NonZero(b *ir.Bindings, x *ir.Node) (*ir.Node, error) {
	out, err := b.Cache(x, "val", func(val *ir.Node) (*ir.Node, error) {
		return ir.Seq(ir.Assert(val), val), nil
	})
	if err != nil {
		return nil, err
	}
	return out.WithType(x.Type()).WithAnnotation("clamp_nonzero"), nil
}
