// Package types provides the value-type descriptors consumed by lowering.
//
// Descriptors are immutable, comparable values created during type
// resolution. The compiler core only reads them. Every numeric-capable
// descriptor exposes inclusive bounds that fit a 256-bit two's-complement
// word; decimal bounds are expressed in scaled units (value * 10^10).
package types

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
)

// Tag identifies the kind of a descriptor.
type Tag int

const (
	TagInteger Tag = iota
	TagDecimal
	TagFixedBytes
	TagAddress
	TagBool
	TagDynBytes
	TagDynString

	// TagCount is the number of tags. Tables indexed by Tag check their
	// length against it at compile time.
	TagCount
)

var tagNames = [...]string{
	TagInteger:    "integer",
	TagDecimal:    "decimal",
	TagFixedBytes: "fixed-bytes",
	TagAddress:    "address",
	TagBool:       "bool",
	TagDynBytes:   "dyn-bytes",
	TagDynString:  "dyn-string",
}

func (t Tag) String() string {
	if t < 0 || t >= TagCount {
		return fmt.Sprintf("tag(%d)", int(t))
	}
	return tagNames[t]
}

// Class is the coarse bucket used to decide conversion legality.
type Class string

const (
	ClassInt     Class = "int"
	ClassDecimal Class = "decimal"
	ClassBytesM  Class = "bytes_m"
	ClassAddress Class = "address"
	ClassBool    Class = "bool"
	ClassBytes   Class = "bytes"
	ClassString  Class = "string"
)

const (
	// DecimalBits is the usable two's-complement width of decimal values.
	DecimalBits = 168

	// DecimalPlaces is the fixed scale of decimal values.
	DecimalPlaces = 10

	// AddressBits is the width of an address.
	AddressBits = 160

	// WordBytes is the machine word size.
	WordBytes = 32
)

// Descriptor is a precise value type. The zero Descriptor is invalid.
type Descriptor struct {
	tag    Tag
	valid  bool
	bits   int
	signed bool
	m      int
	maxLen int
}

// Int returns an integer descriptor. Bits must be a multiple of 8 in 8..256.
func Int(bits int, signed bool) Descriptor {
	if bits < 8 || bits > 256 || bits%8 != 0 {
		panic(fmt.Sprintf("types: invalid integer width %d", bits))
	}
	return Descriptor{tag: TagInteger, valid: true, bits: bits, signed: signed}
}

// Uint256 and Int256 are the native word integers.
var (
	Uint256 = Int(256, false)
	Int256  = Int(256, true)
)

// Decimal returns the fixed-point decimal descriptor.
func Decimal() Descriptor {
	return Descriptor{tag: TagDecimal, valid: true, bits: DecimalBits, signed: true}
}

// FixedBytes returns a bytesM descriptor for 1 <= m <= 32.
func FixedBytes(m int) Descriptor {
	if m < 1 || m > WordBytes {
		panic(fmt.Sprintf("types: invalid bytes width %d", m))
	}
	return Descriptor{tag: TagFixedBytes, valid: true, bits: 8 * m, m: m}
}

// Address returns the address descriptor.
func Address() Descriptor {
	return Descriptor{tag: TagAddress, valid: true, bits: AddressBits}
}

// Bool returns the boolean descriptor.
func Bool() Descriptor {
	return Descriptor{tag: TagBool, valid: true, bits: 1}
}

// DynBytes returns a dynamic byte sequence with the given maximum length.
func DynBytes(maxLen int) Descriptor {
	if maxLen < 1 {
		panic(fmt.Sprintf("types: invalid Bytes length %d", maxLen))
	}
	return Descriptor{tag: TagDynBytes, valid: true, maxLen: maxLen}
}

// DynString returns a dynamic string with the given maximum length.
func DynString(maxLen int) Descriptor {
	if maxLen < 1 {
		panic(fmt.Sprintf("types: invalid String length %d", maxLen))
	}
	return Descriptor{tag: TagDynString, valid: true, maxLen: maxLen}
}

func (d Descriptor) Tag() Tag     { return d.tag }
func (d Descriptor) Valid() bool  { return d.valid }
func (d Descriptor) Signed() bool { return d.signed }
func (d Descriptor) M() int       { return d.m }
func (d Descriptor) MaxLen() int  { return d.maxLen }

// Decimals is the number of fractional digits; nonzero only for decimal.
func (d Descriptor) Decimals() int {
	if d.tag == TagDecimal {
		return DecimalPlaces
	}
	return 0
}

// Bits is the value width: integer/decimal width, 8*m for bytesM,
// 160 for address, 1 for bool, 0 for dynamic types.
func (d Descriptor) Bits() int { return d.bits }

// IsNative256 reports whether d is uint256 or int256.
func (d Descriptor) IsNative256() bool {
	return d.tag == TagInteger && d.bits == 256
}

// IsBaseType reports whether values of d fit in a single word.
func (d Descriptor) IsBaseType() bool {
	return d.valid && d.tag != TagDynBytes && d.tag != TagDynString
}

// IsByteArray reports whether d is a dynamic bytes or string type.
func (d Descriptor) IsByteArray() bool {
	return d.tag == TagDynBytes || d.tag == TagDynString
}

// Class returns the conversion class of d.
func (d Descriptor) Class() Class {
	switch d.tag {
	case TagInteger:
		return ClassInt
	case TagDecimal:
		return ClassDecimal
	case TagFixedBytes:
		return ClassBytesM
	case TagAddress:
		return ClassAddress
	case TagBool:
		return ClassBool
	case TagDynBytes:
		return ClassBytes
	case TagDynString:
		return ClassString
	}
	panic(fmt.Sprintf("types: no class for %v", d.tag))
}

// Numeric reports whether d exposes bounds.
func (d Descriptor) Numeric() bool {
	switch d.tag {
	case TagInteger, TagDecimal, TagAddress, TagBool:
		return d.valid
	}
	return false
}

// Bounds returns fresh inclusive bounds. ok is false for non-numeric types.
func (d Descriptor) Bounds() (lo, hi *big.Int, ok bool) {
	if !d.Numeric() {
		return nil, nil, false
	}
	lo, hi = widthBounds(d.bits, d.signed)
	return lo, hi, true
}

func widthBounds(bits int, signed bool) (lo, hi *big.Int) {
	one := big.NewInt(1)
	if signed {
		half := new(big.Int).Lsh(one, uint(bits-1))
		return new(big.Int).Neg(half), new(big.Int).Sub(half, one)
	}
	return new(big.Int), new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
}

// MemoryBytes is the memory footprint of one value of d.
func (d Descriptor) MemoryBytes() int {
	if d.IsByteArray() {
		return WordBytes + ceil32(d.maxLen)
	}
	return WordBytes
}

func ceil32(n int) int {
	return (n + WordBytes - 1) / WordBytes * WordBytes
}

// String returns the source-level spelling of d.
func (d Descriptor) String() string {
	if !d.valid {
		return "<invalid>"
	}
	switch d.tag {
	case TagInteger:
		if d.signed {
			return "int" + strconv.Itoa(d.bits)
		}
		return "uint" + strconv.Itoa(d.bits)
	case TagDecimal:
		return "decimal"
	case TagFixedBytes:
		return "bytes" + strconv.Itoa(d.m)
	case TagAddress:
		return "address"
	case TagBool:
		return "bool"
	case TagDynBytes:
		return fmt.Sprintf("Bytes[%d]", d.maxLen)
	case TagDynString:
		return fmt.Sprintf("String[%d]", d.maxLen)
	}
	return fmt.Sprintf("<%v>", d.tag)
}

// ABIName is the spelling used in function selector signatures.
func (d Descriptor) ABIName() string {
	switch d.tag {
	case TagDecimal:
		return fmt.Sprintf("fixed%dx%d", DecimalBits, DecimalPlaces)
	case TagDynBytes:
		return "bytes"
	case TagDynString:
		return "string"
	}
	return d.String()
}

var (
	intPattern   = regexp.MustCompile(`^(u?)int([0-9]+)$`)
	bytesPattern = regexp.MustCompile(`^bytes([0-9]+)$`)
	dynPattern   = regexp.MustCompile(`^(Bytes|String)\[([0-9]+)\]$`)
)

// Parse resolves a type spelling such as "uint8", "bytes32" or "Bytes[64]".
func Parse(s string) (Descriptor, error) {
	switch s {
	case "decimal":
		return Decimal(), nil
	case "address":
		return Address(), nil
	case "bool":
		return Bool(), nil
	}
	if m := intPattern.FindStringSubmatch(s); m != nil {
		bits, _ := strconv.Atoi(m[2])
		if bits < 8 || bits > 256 || bits%8 != 0 {
			return Descriptor{}, fmt.Errorf("invalid integer type %q", s)
		}
		return Int(bits, m[1] == ""), nil
	}
	if m := bytesPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > WordBytes {
			return Descriptor{}, fmt.Errorf("invalid bytes type %q", s)
		}
		return FixedBytes(n), nil
	}
	if m := dynPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[2])
		if n < 1 {
			return Descriptor{}, fmt.Errorf("invalid length in %q", s)
		}
		if m[1] == "Bytes" {
			return DynBytes(n), nil
		}
		return DynString(n), nil
	}
	return Descriptor{}, fmt.Errorf("unknown type %q", s)
}

// MustParse is like Parse but panics on error.
// Use only in tests or for spellings known to be valid.
func MustParse(s string) Descriptor {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
