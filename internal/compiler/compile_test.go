package compiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/asm"
	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/dispatch"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/loader"
	"github.com/roach88/kiln/internal/testutil"
)

// foos returns a contract whose functions foo1..fooN return their index.
func foos(n int) string {
	var fns []string
	for i := 1; i <= n; i++ {
		fns = append(fns, fmt.Sprintf(
			`{name: "foo%d", returns: "uint256", body: [{return: {int: %d}}]}`, i, i))
	}
	return `contract: {name: "foos", functions: [` + strings.Join(fns, ", ") + `]}`
}

const token = `contract: {
	name: "token"
	immutables: [{name: "cap", type: "uint256", value: {op: "*", left: {int: 1000}, right: {int: 1000}}}]
	functions: [{
		name: "double"
		args: [{name: "x", type: "uint128"}]
		returns: "uint128"
		body: [{return: {op: "*", left: {name: "x"}, right: {int: 2}}}]
	}, {
		name: "under_cap"
		args: [{name: "amount", type: "uint256"}]
		returns: "bool"
		body: [{return: {op: "<=", left: {name: "amount"}, right: {name: "cap"}}}]
	}, {
		name: "narrow"
		args: [{name: "x", type: "int256"}]
		returns: "int8"
		body: [{return: {convert: {name: "x"}, to: "int8"}}]
	}, {
		name: "split"
		args: [{name: "x", type: "uint8"}]
		returns: "int16"
		body: [
			{declare: ["a", "b"], type: ["int16", "int16"], value: [{int: -3}, {convert: {name: "x"}, to: "int16"}]},
			{assert: {op: "!=", left: {name: "b"}, right: {int: 0}}},
			{return: {op: "+", left: {name: "a"}, right: {name: "b"}}},
		]
	}, {
		name:    "deposit"
		payable: true
		args: [{name: "memo", type: "Bytes[64]"}]
		body: [{pass: true}]
	}]
}`

func load(t *testing.T, src string) *ast.Module {
	t.Helper()
	m, err := loader.Load("test.cue", []byte(src))
	require.NoError(t, err)
	return m
}

func settings(optimize string, debug bool) Settings {
	s := DefaultSettings()
	s.Optimize = optimize
	s.Debug = debug
	return s
}

var variants = map[string]Settings{
	"gas":        settings("gas", false),
	"size":       settings("size", false),
	"none":       settings("none", false),
	"debug size": settings("size", true),
	"debug gas":  settings("gas", true),
}

func TestCompileDataSectionLengths(t *testing.T) {
	tests := []struct {
		name string
		n    int
		s    Settings
		want []uint64
	}{
		{"five size", 5, settings("size", false), []uint64{5, 35}},
		{"five gas", 5, settings("gas", false), []uint64{8}},
		{"five debug size", 5, settings("size", true), []uint64{5, 35}},
		{"five debug gas", 5, settings("gas", true), []uint64{8}},
		{"five none", 5, settings("none", false), []uint64{}},
		{"one debug size", 1, settings("size", true), []uint64{5, 7}},
		{"one size", 1, settings("size", false), []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Compile(load(t, foos(tt.n)), tt.s)
			require.NoError(t, err)

			m, err := asm.DecodeMetadata(a.Build.Initcode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NewMetadataJSON(m).DataSectionLengths)
			assert.Equal(t, uint64(0), m.ImmutablesLength)
			assert.Equal(t, uint64(len(a.Build.Runtime)), m.RuntimeLength)
		})
	}
}

func selector(sig string) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, dispatch.MethodID(sig))
	return out
}

func word(v int64) []byte {
	return ir.Word(big.NewInt(v)).FillBytes(make([]byte, 32))
}

func calldata(sig string, words ...[]byte) []byte {
	out := selector(sig)
	for _, w := range words {
		out = append(out, w...)
	}
	return out
}

func deploy(t *testing.T, a *Artifacts) []byte {
	t.Helper()
	code, err := testutil.Deploy(a.Build.Initcode)
	require.NoError(t, err)
	return code
}

func returned(t *testing.T, code, data []byte, value uint64) *big.Int {
	t.Helper()
	res, err := testutil.Run(testutil.Call{Code: code, Calldata: data, CallValue: value})
	require.NoError(t, err)
	require.Len(t, res.Return, 32)
	return new(big.Int).SetBytes(res.Return)
}

func reverts(t *testing.T, code, data []byte, value uint64) {
	t.Helper()
	_, err := testutil.Run(testutil.Call{Code: code, Calldata: data, CallValue: value})
	assert.ErrorIs(t, err, testutil.ErrReverted)
}

// Every layout must route each selector to its function and send anything
// else to the fallback.
func TestCompileDispatchesEveryLayout(t *testing.T) {
	for _, n := range []int{1, 5, 12} {
		for name, s := range variants {
			t.Run(fmt.Sprintf("%d %s", n, name), func(t *testing.T) {
				a, err := Compile(load(t, foos(n)), s)
				require.NoError(t, err)
				code := deploy(t, a)

				for i := 1; i <= n; i++ {
					sig := fmt.Sprintf("foo%d()", i)
					assert.Equal(t, int64(i), returned(t, code, calldata(sig), 0).Int64(), sig)
					reverts(t, code, calldata(sig), 1)
				}
				reverts(t, code, calldata("transfer(address,uint256)"), 0)
				reverts(t, code, nil, 0)
				reverts(t, code, []byte{0xd3, 0x89, 0x55}, 0)
			})
		}
	}
}

func TestCompileTokenCalls(t *testing.T) {
	for name, s := range variants {
		t.Run(name, func(t *testing.T) {
			a, err := Compile(load(t, token), s)
			require.NoError(t, err)
			assert.Equal(t, 32, a.Program.ImmutablesLength())
			code := deploy(t, a)

			assert.Equal(t, int64(42), returned(t, code, calldata("double(uint128)", word(21)), 0).Int64())
			big128 := new(big.Int).Lsh(big.NewInt(1), 128)
			reverts(t, code, calldata("double(uint128)", big128.FillBytes(make([]byte, 32))), 0)
			// Fits the argument, overflows the result.
			reverts(t, code, calldata("double(uint128)", new(big.Int).Sub(big128, big.NewInt(1)).FillBytes(make([]byte, 32))), 0)

			assert.Equal(t, int64(1), returned(t, code, calldata("under_cap(uint256)", word(1_000_000)), 0).Int64())
			assert.Equal(t, int64(0), returned(t, code, calldata("under_cap(uint256)", word(1_000_001)), 0).Int64())

			minusOne := returned(t, code, calldata("narrow(int256)", word(-1)), 0)
			assert.Equal(t, 0, minusOne.Cmp(ir.Word(big.NewInt(-1))))
			reverts(t, code, calldata("narrow(int256)", word(128)), 0)

			assert.Equal(t, int64(2), returned(t, code, calldata("split(uint8)", word(5)), 0).Int64())
			reverts(t, code, calldata("split(uint8)", word(0)), 0)
			reverts(t, code, calldata("split(uint8)", word(256)), 0)

			memo := make([]byte, 32)
			copy(memo, "abc")
			res, err := testutil.Run(testutil.Call{
				Code:      code,
				Calldata:  calldata("deposit(bytes)", word(32), word(3), memo),
				CallValue: 5,
			})
			require.NoError(t, err)
			assert.Empty(t, res.Return)
			// Too short to hold the offset and length words.
			reverts(t, code, calldata("deposit(bytes)", word(32)), 0)
		})
	}
}

func TestCompileImmutablesFollowRuntime(t *testing.T) {
	a, err := Compile(load(t, token), DefaultSettings())
	require.NoError(t, err)
	code := deploy(t, a)

	require.Len(t, code, len(a.Build.Runtime)+32)
	assert.Equal(t, word(1_000_000), code[len(a.Build.Runtime):])

	m, err := asm.Verify(a.Build.Initcode, code)
	require.NoError(t, err)
	assert.Equal(t, uint64(32), m.ImmutablesLength)
	assert.Equal(t, a.Build.Integrity[:], m.Integrity)
}

func TestCompileIsDeterministic(t *testing.T) {
	first, err := Compile(load(t, token), settings("size", true))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Compile(load(t, token), settings("size", true))
		require.NoError(t, err)
		assert.Equal(t, first.Build.Initcode, again.Build.Initcode)
		assert.Equal(t, first.Build.Integrity, again.Build.Integrity)
	}

	other, err := Compile(load(t, token), settings("gas", false))
	require.NoError(t, err)
	assert.NotEqual(t, first.Build.Integrity, other.Build.Integrity)
}

func TestOutputs(t *testing.T) {
	a, err := Compile(load(t, foos(5)), settings("size", false))
	require.NoError(t, err)

	for _, name := range OutputNames {
		out, err := a.Output(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, out, name)
		assert.False(t, strings.HasPrefix(out, "0x"), name)
	}

	integrity, err := a.Output(OutputIntegrity)
	require.NoError(t, err)
	assert.Len(t, integrity, 64)

	meta, err := a.Output(OutputMetadata)
	require.NoError(t, err)
	assert.Contains(t, meta, `"immutables_len": 0`)
	assert.Contains(t, meta, `"kiln": [`)

	_, err = a.Output("abi")
	assert.Error(t, err)
}

func TestOutputLayoutGolden(t *testing.T) {
	a, err := Compile(load(t, foos(5)), settings("size", false))
	require.NoError(t, err)
	out, err := a.Output(OutputLayout)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "layout_foos_size", []byte(out))
}

func TestCompileRejectsInvalidModules(t *testing.T) {
	_, err := Compile(load(t, `contract: {name: "c", functions: [
		{name: "f", body: [{pass: true}]},
		{name: "f", body: [{pass: true}]},
	]}`), DefaultSettings())
	require.Error(t, err)
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ErrDuplicateFunction, ve.Code)

	_, err = Compile(load(t, foos(1)), settings("fastest", false))
	assert.ErrorContains(t, err, "unknown optimization objective")
}
