package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{
		"uint8", "uint256", "int128", "int256", "decimal", "bytes1", "bytes32",
		"address", "bool", "Bytes[64]", "String[10]",
	} {
		d, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, d.String())
	}
}

func TestParseRejects(t *testing.T) {
	for _, s := range []string{"uint7", "int264", "bytes0", "bytes33", "Bytes[0]", "float", ""} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestClasses(t *testing.T) {
	assert.Equal(t, ClassInt, MustParse("int8").Class())
	assert.Equal(t, ClassDecimal, Decimal().Class())
	assert.Equal(t, ClassBytesM, FixedBytes(4).Class())
	assert.Equal(t, ClassAddress, Address().Class())
	assert.Equal(t, ClassBool, Bool().Class())
	assert.Equal(t, ClassBytes, DynBytes(3).Class())
	assert.Equal(t, ClassString, DynString(3).Class())
}

func TestIntegerBounds(t *testing.T) {
	lo, hi, ok := Int(8, false).Bounds()
	require.True(t, ok)
	assert.Equal(t, int64(0), lo.Int64())
	assert.Equal(t, int64(255), hi.Int64())

	lo, hi, _ = Int(128, true).Bounds()
	half := new(big.Int).Lsh(big.NewInt(1), 127)
	assert.Equal(t, 0, lo.Cmp(new(big.Int).Neg(half)))
	assert.Equal(t, 0, hi.Cmp(new(big.Int).Sub(half, big.NewInt(1))))
}

func TestBoundsFitWord(t *testing.T) {
	minInt256 := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for _, d := range []Descriptor{Uint256, Int256, Decimal(), Address(), Bool(), Int(64, true)} {
		lo, hi, ok := d.Bounds()
		require.True(t, ok, d.String())
		assert.True(t, lo.Cmp(minInt256) >= 0, d.String())
		assert.True(t, hi.Cmp(maxUint256) <= 0, d.String())
	}
}

func TestDecimalBoundsAreScaled(t *testing.T) {
	lo, hi, ok := Decimal().Bounds()
	require.True(t, ok)
	assert.Equal(t, 168, lo.BitLen())
	assert.Equal(t, 167, hi.BitLen())
	assert.Equal(t, DecimalPlaces, Decimal().Decimals())
}

func TestBoundsAreFreshCopies(t *testing.T) {
	_, hi, _ := Bool().Bounds()
	hi.SetInt64(99)
	_, hi2, _ := Bool().Bounds()
	assert.Equal(t, int64(1), hi2.Int64())
}

func TestNonNumericHasNoBounds(t *testing.T) {
	for _, d := range []Descriptor{FixedBytes(32), DynBytes(4), DynString(4), {}} {
		_, _, ok := d.Bounds()
		assert.False(t, ok, d.String())
	}
}

func TestMemoryBytes(t *testing.T) {
	assert.Equal(t, 32, Uint256.MemoryBytes())
	assert.Equal(t, 64, DynBytes(1).MemoryBytes())
	assert.Equal(t, 96, DynString(33).MemoryBytes())
}

func TestDescriptorsAreComparable(t *testing.T) {
	assert.Equal(t, Int(128, true), MustParse("int128"))
	assert.NotEqual(t, Int(128, true), Int(128, false))
	assert.NotEqual(t, DynBytes(3), DynString(3))
	assert.True(t, Uint256.IsNative256())
	assert.False(t, Int(128, false).IsNative256())
}

func TestABIName(t *testing.T) {
	assert.Equal(t, "uint256", Uint256.ABIName())
	assert.Equal(t, "fixed168x10", Decimal().ABIName())
	assert.Equal(t, "bytes", DynBytes(100).ABIName())
	assert.Equal(t, "string", DynString(5).ABIName())
	assert.Equal(t, "bytes4", FixedBytes(4).ABIName())
}
