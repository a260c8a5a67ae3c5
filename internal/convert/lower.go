package convert

import (
	"math/big"

	"github.com/roach88/kiln/internal/clamp"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/numeric"
	"github.com/roach88/kiln/internal/types"
)

// wordBits is the width of a machine word.
const wordBits = 8 * types.WordBytes

// fitsWord rejects byte arrays that may hold more than max bytes.
func (c *call) fitsWord(max int) error {
	if c.from.IsByteArray() && c.from.MaxLen() > max {
		return c.fail()
	}
	return nil
}

// srcBits is the widest value the source can carry, in bits.
func (c *call) srcBits() int {
	if c.from.IsByteArray() {
		return 8 * c.from.MaxLen()
	}
	return c.from.Bits()
}

// zeroBits returns the number of unused low bits in the source's
// left-aligned word and the word itself.
func (c *call) zeroBits() (bits, word *ir.Node) {
	if c.from.IsByteArray() {
		length := ir.BytesLength(c.arg)
		bits = ir.New(ir.OpMul, ir.Int64(8), ir.New(ir.OpSub, ir.Int64(types.WordBytes), length))
		return bits, ir.Load(ir.BytesDataPtr(c.arg))
	}
	return ir.Int64(int64(wordBits - c.from.Bits())), c.arg
}

// bytesToNum right-aligns a byte sequence as a number.
func (c *call) bytesToNum(signed bool) *ir.Node {
	bits, word := c.zeroBits()
	if signed {
		return ir.Sar(bits, word)
	}
	return ir.Shr(bits, word)
}

func toBool(c *call) (*ir.Node, error) {
	x := c.arg
	if c.from.IsByteArray() {
		if err := c.fitsWord(types.WordBytes); err != nil {
			return nil, err
		}
		x = c.bytesToNum(false)
	}
	return ir.New(ir.OpIsZero, ir.New(ir.OpIsZero, x)), nil
}

func toInt(c *call) (*ir.Node, error) {
	switch c.from.Class() {
	case types.ClassBytes, types.ClassBytesM:
		if err := c.fitsWord(types.WordBytes); err != nil {
			return nil, err
		}
		num := c.bytesToNum(c.to.Signed())
		if c.srcBits() > c.to.Bits() {
			return clamp.IntClamp(c.b, num, c.to.Bits(), c.to.Signed())
		}
		return num, nil

	case types.ClassDecimal:
		src, _ := clamp.RangeOf(c.from)
		dst, _ := clamp.RangeOf(c.to)
		div := numeric.Divisor()
		dst.Lo.Mul(dst.Lo, div)
		dst.Hi.Mul(dst.Hi, div)
		clamped := clamp.Bounds(c.arg, src, dst)
		return ir.New(ir.OpSDiv, clamped, ir.Const(div)), nil

	case types.ClassInt:
		src, _ := clamp.RangeOf(c.from)
		dst, _ := clamp.RangeOf(c.to)
		return clamp.Bounds(c.arg, src, dst), nil

	case types.ClassAddress:
		if c.to.Signed() || c.to.Bits() < types.AddressBits {
			return nil, c.fail()
		}
		if c.to.Bits() > types.AddressBits {
			return clamp.IntClamp(c.b, c.arg, types.AddressBits, false)
		}
		return c.arg, nil

	case types.ClassBool:
		return c.arg, nil
	}
	return nil, diag.Panicf("convert: unreachable source %s for %s", c.from, c.to)
}

func toDecimal(c *call) (*ir.Node, error) {
	switch c.from.Class() {
	case types.ClassBytes, types.ClassBytesM:
		if err := c.fitsWord(types.WordBytes); err != nil {
			return nil, err
		}
		num := c.bytesToNum(true)
		if c.srcBits() > types.DecimalBits {
			return clamp.IntClamp(c.b, num, types.DecimalBits, true)
		}
		return num, nil

	case types.ClassInt:
		src, _ := clamp.RangeOf(c.from)
		lo, hi, _ := c.to.Bounds()
		div := numeric.Divisor()
		var err error
		if lo, err = numeric.TruncDiv(lo, div); err != nil {
			return nil, err
		}
		if hi, err = numeric.TruncDiv(hi, div); err != nil {
			return nil, err
		}
		clamped := clamp.Bounds(c.arg, src, clamp.Range{Lo: lo, Hi: hi, Signed: true})
		return ir.New(ir.OpMul, clamped, ir.Const(div)), nil

	case types.ClassBool:
		return ir.New(ir.OpMul, c.arg, ir.Const(numeric.Divisor())), nil
	}
	return nil, diag.Panicf("convert: unreachable source %s for %s", c.from, c.to)
}

func toBytesM(c *call) (*ir.Node, error) {
	switch c.from.Class() {
	case types.ClassBytes:
		if err := c.fitsWord(c.to.M()); err != nil {
			return nil, err
		}
		// Memory past the length may be dirty; clear it.
		bits, word := c.zeroBits()
		return c.b.Cache(bits, "bits", func(bits *ir.Node) (*ir.Node, error) {
			return ir.Shl(bits, ir.Shr(bits, word)), nil
		})

	case types.ClassBytesM:
		if c.from.M() > c.to.M() {
			return clamp.BytesClamp(c.b, c.arg, c.to.M())
		}
		return c.arg, nil

	case types.ClassInt, types.ClassAddress, types.ClassDecimal, types.ClassBool:
		// Decimals and bools are moved as raw bit patterns; only integers
		// and addresses may not lose bits.
		cls := c.from.Class()
		if (cls == types.ClassInt || cls == types.ClassAddress) && c.from.Bits() > c.to.Bits() {
			return nil, c.fail()
		}
		shift := wordBits - c.to.Bits()
		if shift == 0 {
			return c.arg, nil
		}
		return ir.Shl(ir.Int64(int64(shift)), c.arg), nil
	}
	return nil, diag.Panicf("convert: unreachable source %s for %s", c.from, c.to)
}

func toAddress(c *call) (*ir.Node, error) {
	switch c.from.Class() {
	case types.ClassInt:
		if c.from.Signed() {
			return nil, c.fail()
		}
		src, _ := clamp.RangeOf(c.from)
		dst, _ := clamp.RangeOf(c.to)
		return clamp.Bounds(c.arg, src, dst), nil

	case types.ClassBytes, types.ClassBytesM:
		if err := c.fitsWord(types.WordBytes); err != nil {
			return nil, err
		}
		num := c.bytesToNum(false)
		if c.srcBits() > types.AddressBits {
			return clamp.IntClamp(c.b, num, types.AddressBits, false)
		}
		return num, nil
	}
	return nil, diag.Panicf("convert: unreachable source %s for %s", c.from, c.to)
}

// toByteArray reinterprets a bytes or string location as the other.
func toByteArray(c *call) (*ir.Node, error) {
	if c.from.MaxLen() > c.to.MaxLen() {
		return nil, c.fail()
	}
	if c.arg.Kind() != ir.KindLoc {
		return nil, diag.Panicf("convert: %s source is not a location", c.from)
	}
	return ir.Loc(c.arg.Location(), c.arg.Pointer(), c.to), nil
}

// inBounds returns v when it lies inside t's bounds.
func (c *call) inBounds(v *big.Int, t types.Descriptor) (*big.Int, error) {
	lo, hi, _ := t.Bounds()
	if v.Cmp(lo) < 0 || v.Cmp(hi) > 0 {
		return nil, diag.InvalidLiteral(c.node(), "Number out of range: %s", v)
	}
	return v, nil
}
