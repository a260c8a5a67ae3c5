// Package convert lowers the convert builtin.
//
// Legality is decided by type class through a table indexed by the
// destination tag. Literal sources fold at compile time and never emit
// runtime checks; other sources are lowered to IR with the clamps needed
// to keep out-of-range values from passing silently.
package convert

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/types"
)

// call is one conversion being lowered.
type call struct {
	b    *ir.Bindings
	src  ast.Expr
	arg  *ir.Node
	from types.Descriptor
	to   types.Descriptor
}

func (c *call) node() int { return int(c.src.ID()) }

func (c *call) fail() error { return diag.CantConvert(c.node(), c.from, c.to) }

type rule struct {
	accepts []types.Class
	lower   func(*call) (*ir.Node, error)

	// fold evaluates a literal source at compile time. Nil when the
	// destination has no constant form.
	fold func(*call, *ast.Literal) (*big.Int, error)
}

var rules = [...]rule{
	types.TagBool: {
		accepts: []types.Class{types.ClassInt, types.ClassDecimal, types.ClassBytesM, types.ClassAddress, types.ClassBool, types.ClassBytes, types.ClassString},
		lower:   toBool,
	},
	types.TagAddress: {
		accepts: []types.Class{types.ClassBytesM, types.ClassInt, types.ClassBytes},
		lower:   toAddress,
		fold:    foldAddress,
	},
	types.TagInteger: {
		accepts: []types.Class{types.ClassInt, types.ClassBytesM, types.ClassDecimal, types.ClassBytes, types.ClassAddress, types.ClassBool},
		lower:   toInt,
		fold:    foldInt,
	},
	types.TagFixedBytes: {
		accepts: []types.Class{types.ClassInt, types.ClassDecimal, types.ClassBytesM, types.ClassAddress, types.ClassBytes, types.ClassBool},
		lower:   toBytesM,
	},
	types.TagDecimal: {
		accepts: []types.Class{types.ClassInt, types.ClassBool, types.ClassBytesM, types.ClassBytes},
		lower:   toDecimal,
		fold:    foldDecimal,
	},
	types.TagDynBytes: {
		accepts: []types.Class{types.ClassString},
		lower:   toByteArray,
	},
	types.TagDynString: {
		accepts: []types.Class{types.ClassBytes},
		lower:   toByteArray,
	},
}

// Both checks fail to compile unless the table has exactly one slot per tag.
var (
	_ [len(rules) - int(types.TagCount)]struct{}
	_ [int(types.TagCount) - len(rules)]struct{}
)

// Convert lowers a conversion of src, already lowered to arg, into to.
func Convert(b *ir.Bindings, src ast.Expr, arg *ir.Node, to types.Descriptor) (*ir.Node, error) {
	from := arg.Type()
	if !from.Valid() {
		from = src.Type()
	}
	if !from.Valid() || !to.Valid() {
		return nil, diag.Panicf("convert: untyped operand (%s to %s)", from, to)
	}

	r := rules[to.Tag()]
	c := &call{b: b, src: src, arg: arg, from: from, to: to}
	// Self-conversion is refused, except for the native words that literal
	// inference may already have produced.
	if from == to && !to.IsNative256() {
		return nil, diag.InvalidType(c.node(), "value and target are both %s", to)
	}
	if !slices.Contains(r.accepts, from.Class()) {
		return nil, c.fail()
	}

	annotation := fmt.Sprintf("convert %s to %s", from, to)
	// Byte arrays wider than a word never reach a value type, literal or not.
	if !to.IsByteArray() {
		if err := c.fitsWord(types.WordBytes); err != nil {
			return nil, err
		}
	}
	if lit, ok := src.(*ast.Literal); ok && r.fold != nil {
		v, err := r.fold(c, lit)
		if err != nil {
			return nil, err
		}
		return ir.Const(v).WithType(to).WithAnnotation(annotation), nil
	}

	if from.IsBaseType() {
		c.arg = ir.Load(arg)
	}
	var (
		out *ir.Node
		err error
	)
	if to.IsByteArray() {
		// Pointer casts reuse the location as is.
		out, err = r.lower(c)
	} else {
		out, err = b.Cache(c.arg, "arg", func(ref *ir.Node) (*ir.Node, error) {
			c.arg = ref
			return r.lower(c)
		})
	}
	if err != nil {
		return nil, err
	}
	return out.WithType(to).WithAnnotation(annotation), nil
}

// ConvertCall lowers convert(value, type). lower turns the value
// expression into IR; it runs only after the call shape is validated.
func ConvertCall(b *ir.Bindings, call *ast.Convert, lower func(ast.Expr) (*ir.Node, error)) (*ir.Node, error) {
	if len(call.Args) != 2 {
		return nil, diag.Structure(int(call.ID()), "The convert function expects two parameters.")
	}
	target, ok := call.Args[1].(*ast.TypeRef)
	if !ok {
		return nil, diag.Structure(int(call.Args[1].ID()), "conversion target must be a type")
	}
	arg, err := lower(call.Args[0])
	if err != nil {
		return nil, err
	}
	return Convert(b, call.Args[0], arg, target.Typ)
}
