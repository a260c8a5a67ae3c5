package ir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/types"
)

func TestNewChecksArity(t *testing.T) {
	assert.Panics(t, func() { New(OpAdd, Int64(1)) })
	assert.Panics(t, func() { New(OpIsZero) })
	assert.Panics(t, func() { New(OpWith, Int64(1), Int64(2)) }, "named ops need a name")
	assert.Panics(t, func() { New(OpAdd, Int64(1), nil) })
	assert.NotPanics(t, func() { New(OpSeq) })
}

func TestConstIsCopied(t *testing.T) {
	v := big.NewInt(7)
	n := Const(v)
	v.SetInt64(9)
	assert.Equal(t, int64(7), n.Value().Int64())

	n.Value().SetInt64(11)
	assert.Equal(t, int64(7), n.Value().Int64())
}

func TestWithTypeCopies(t *testing.T) {
	n := New(OpAdd, Int64(1), Int64(2))
	typed := n.WithType(types.Int(8, false))
	annotated := typed.WithAnnotation("sum")

	assert.False(t, n.Type().Valid())
	assert.Equal(t, types.Int(8, false), typed.Type())
	assert.Empty(t, typed.Annotation())
	assert.Equal(t, "sum", annotated.Annotation())
	assert.Equal(t, types.Int(8, false), annotated.Type())
}

func TestArgsIsACopy(t *testing.T) {
	n := New(OpAdd, Int64(1), Int64(2))
	args := n.Args()
	args[0] = Int64(5)
	assert.Equal(t, int64(1), n.Arg(0).Value().Int64())
}

func TestValued(t *testing.T) {
	assert.True(t, Int64(1).Valued())
	assert.True(t, New(OpAdd, Int64(1), Int64(2)).Valued())
	assert.False(t, New(OpMStore, Int64(0), Int64(1)).Valued())
	assert.False(t, Seq().Valued())
	assert.True(t, Seq(New(OpMStore, Int64(0), Int64(1)), Int64(3)).Valued())
	assert.False(t, If(Int64(1), Int64(2), nil).Valued())
	assert.True(t, If(Int64(1), Int64(2), Int64(3)).Valued())
	assert.True(t, With("x", Int64(1), Var("x")).Valued())
	assert.False(t, With("x", Int64(1), Assert(Var("x"))).Valued())
	assert.True(t, Loc(Memory, Int64(64), types.Uint256).Valued())
}

func TestLoadUnwrapsBaseTypes(t *testing.T) {
	mem := Load(Loc(Memory, Int64(64), types.Uint256))
	assert.Equal(t, "[mload, 64]", mem.String())
	assert.Equal(t, types.Uint256, mem.Type())

	cd := Load(Loc(Calldata, Int64(4), types.Bool()))
	assert.Equal(t, "[calldataload, 4]", cd.String())

	code := Load(Loc(Code, Int64(100), types.Address()))
	assert.Equal(t, "[seq, [codecopy, 0, 100, 32], [mload, 0]]", code.String())

	arr := Loc(Memory, Int64(64), types.DynBytes(10))
	assert.Same(t, arr, Load(arr), "byte arrays stay locations")

	plain := Int64(5)
	assert.Same(t, plain, Load(plain))
}

func TestByteArrayLayout(t *testing.T) {
	arr := Loc(Calldata, Int64(68), types.DynBytes(32))
	assert.Equal(t, "[calldataload, 68]", BytesLength(arr).String())

	ptr := BytesDataPtr(arr)
	require.Equal(t, KindLoc, ptr.Kind())
	assert.Equal(t, Calldata, ptr.Location())
	assert.Equal(t, "[calldataload, [add, 68, 32]]", Load(ptr).String())
}

func TestDataItemsAreChecked(t *testing.T) {
	assert.Panics(t, func() { Data("t", Int64(1)) })
	d := Data("t", Bytes([]byte{1, 2}), Symbol("f"))
	assert.Equal(t, "[data t, [bytes 0x0102], [symbol f]]", d.String())
}

func TestWord(t *testing.T) {
	assert.Equal(t, "0", Word(big.NewInt(0)).String())
	neg := Word(big.NewInt(-1))
	assert.Equal(t, 256, neg.BitLen())
	assert.Equal(t, "5", Word(big.NewInt(5)).String())
}

func TestLookupOp(t *testing.T) {
	op, ok := LookupOp("uclample")
	require.True(t, ok)
	assert.Equal(t, OpUClampLE, op)
	_, ok = LookupOp("nope")
	assert.False(t, ok)

	code, direct := OpSar.Opcode()
	assert.True(t, direct)
	assert.Equal(t, byte(0x1d), code)
	_, direct = OpClampGE.Opcode()
	assert.False(t, direct)
}

func TestEveryOpHasAName(t *testing.T) {
	seen := map[string]Op{}
	for o := OpAdd; o < opCount; o++ {
		name := opTable[o].name
		require.NotEmpty(t, name, "op %d", o)
		_, dup := seen[name]
		require.False(t, dup, name)
		seen[name] = o
	}
}
