package convert

import (
	"math/big"
	"strings"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/numeric"
	"github.com/roach88/kiln/internal/types"
)

// literalInt reads a literal as an integer. Hex and byte literals are
// big-endian unsigned; decimals truncate toward zero; booleans are 0 or 1.
func literalInt(lit *ast.Literal) (*big.Int, error) {
	switch lit.Kind {
	case ast.LitInt:
		if v, ok := new(big.Int).SetString(lit.Value, 10); ok {
			return v, nil
		}
	case ast.LitHex:
		digits := strings.TrimPrefix(strings.TrimPrefix(lit.Value, "0x"), "0X")
		if digits == "" {
			return new(big.Int), nil
		}
		if v, ok := new(big.Int).SetString(digits, 16); ok {
			return v, nil
		}
	case ast.LitBytes, ast.LitStr:
		return new(big.Int).SetBytes([]byte(lit.Value)), nil
	case ast.LitBool:
		switch lit.Value {
		case "true":
			return big.NewInt(1), nil
		case "false":
			return new(big.Int), nil
		}
	case ast.LitDecimal:
		d, err := numeric.ParseDecimal(lit.Value)
		if err != nil {
			return nil, diag.Panicf("convert: %v", err)
		}
		v, err := numeric.Truncate(d)
		if err != nil {
			return nil, diag.Panicf("convert: %v", err)
		}
		return v, nil
	}
	return nil, diag.Panicf("convert: malformed %s literal %q", lit.Kind, lit.Value)
}

func foldInt(c *call, lit *ast.Literal) (*big.Int, error) {
	v, err := literalInt(lit)
	if err != nil {
		return nil, err
	}
	return c.inBounds(v, c.to)
}

func foldAddress(c *call, lit *ast.Literal) (*big.Int, error) {
	if c.from.Class() == types.ClassInt && c.from.Signed() {
		return nil, c.fail()
	}
	return foldInt(c, lit)
}

// foldDecimal returns the literal in scaled units.
func foldDecimal(c *call, lit *ast.Literal) (*big.Int, error) {
	v, err := literalInt(lit)
	if err != nil {
		return nil, err
	}
	return c.inBounds(v.Mul(v, numeric.Divisor()), c.to)
}
