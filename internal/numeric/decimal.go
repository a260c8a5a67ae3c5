// Package numeric holds the process-wide decimal arithmetic unit used to
// fold decimal literals.
//
// The context is fixed at package initialization. Callers receive copies;
// the setters exist only to reject overrides with a DECIMAL_OVERRIDE error.
package numeric

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/types"
)

// Precision is the number of significant digits, enough for any 256-bit word.
const Precision = 78

var ctx = apd.Context{
	Precision:   Precision,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
	Rounding:    apd.RoundHalfEven,
}

// ErrDecimalOverride is returned by every attempt to alter the context.
var ErrDecimalOverride = &diag.Error{
	Kind:    diag.KindDecimalOverride,
	Message: "overriding the decimal context is not allowed",
}

// Context returns a copy of the package context.
func Context() apd.Context {
	return ctx
}

// SetPrecision always fails.
func SetPrecision(uint32) error {
	return ErrDecimalOverride
}

// SetRounding always fails.
func SetRounding(apd.Rounder) error {
	return ErrDecimalOverride
}

// Divisor returns a fresh 10^DecimalPlaces.
func Divisor() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(types.DecimalPlaces), nil)
}

// ParseDecimal parses a decimal literal such as "-1.25" or "3".
func ParseDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("parse decimal %q: not finite", s)
	}
	return d, nil
}

// Scale returns d * 10^DecimalPlaces as an integer. It fails when the
// scaled value has a fractional part.
func Scale(d *apd.Decimal) (*big.Int, error) {
	scaled := new(apd.Decimal).Set(d)
	scaled.Exponent += types.DecimalPlaces
	reduced, _ := new(apd.Decimal).Reduce(scaled)
	if reduced.Exponent < 0 {
		return nil, fmt.Errorf("decimal %s has more than %d places", d.Text('f'), types.DecimalPlaces)
	}
	return integral(reduced)
}

// Truncate drops the fractional part of d, rounding toward zero.
func Truncate(d *apd.Decimal) (*big.Int, error) {
	c := ctx
	c.Rounding = apd.RoundDown
	var out apd.Decimal
	if _, err := c.Quantize(&out, d, 0); err != nil {
		return nil, fmt.Errorf("truncate %s: %w", d.Text('f'), err)
	}
	return integral(&out)
}

// TruncDiv returns x / y rounded toward zero.
func TruncDiv(x, y *big.Int) (*big.Int, error) {
	if y.Sign() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	var q apd.Decimal
	if _, err := ctx.QuoInteger(&q, fromBig(x), fromBig(y)); err != nil {
		return nil, fmt.Errorf("divide %s by %s: %w", x, y, err)
	}
	return integral(&q)
}

func fromBig(x *big.Int) *apd.Decimal {
	d, _, err := apd.NewFromString(x.String())
	if err != nil {
		panic(fmt.Sprintf("numeric: %v", err))
	}
	return d
}

// integral converts an exponent >= 0 decimal to a big.Int.
func integral(d *apd.Decimal) (*big.Int, error) {
	s := d.Text('f')
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", d.Text('f'))
	}
	return v, nil
}
