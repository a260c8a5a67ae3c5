package dispatch

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
)

func entries(names ...string) []Entry {
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry{Signature: n + "()", Label: "external_" + n, MinCalldataSize: 4}
	}
	return out
}

func numbered(n int) []Entry {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	return entries(names...)
}

var fiveFoos = entries("foo1", "foo2", "foo3", "foo4", "foo5")

func TestMethodID(t *testing.T) {
	tests := map[string]uint32{
		"transfer(address,uint256)": 0xa9059cbb,
		"foo1()":                    0xd38955e8,
		"foo5()":                    0xfa22b1ed,
		"a()":                       0x0dbe671f,
	}
	for sig, want := range tests {
		assert.Equal(t, want, MethodID(sig), sig)
	}
}

func TestParseObjective(t *testing.T) {
	for in, want := range map[string]Objective{"": ObjectiveGas, "gas": ObjectiveGas, "Size": ObjectiveSize, "codesize": ObjectiveSize, "none": ObjectiveNone} {
		got, err := ParseObjective(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseObjective("fast")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		entries  []Entry
		policy   Policy
		kind     Kind
		sections []int
	}{
		{"five functions for size", fiveFoos, Policy{Objective: ObjectiveSize}, KindDense, []int{5, 35}},
		{"five functions for gas", fiveFoos, Policy{Objective: ObjectiveGas}, KindSparse, []int{8}},
		{"five functions debug for size", fiveFoos, Policy{Objective: ObjectiveSize, Debug: true}, KindDense, []int{5, 35}},
		{"five functions debug for gas", fiveFoos, Policy{Objective: ObjectiveGas, Debug: true}, KindSparse, []int{8}},
		{"five functions unoptimized", fiveFoos, Policy{Objective: ObjectiveNone}, KindLinear, []int{}},
		{"one function debug for size", entries("a"), Policy{Objective: ObjectiveSize, Debug: true}, KindDense, []int{5, 7}},
		{"one function for size", entries("a"), Policy{Objective: ObjectiveSize}, KindSparse, []int{}},
		{"one function for gas", entries("a"), Policy{Objective: ObjectiveGas}, KindSparse, []int{}},
		{"no functions", nil, Policy{Objective: ObjectiveSize, Debug: true}, KindLinear, []int{}},
		{"threshold override", fiveFoos, Policy{Objective: ObjectiveSize, DenseThreshold: 5}, KindSparse, []int{8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Select(tt.entries, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, l.Kind())
			assert.Equal(t, tt.sections, l.SectionLengths())
		})
	}
}

func TestSelectRejectsCollision(t *testing.T) {
	_, err := Select(entries("foo1", "foo2", "foo1"), Policy{})
	require.Error(t, err)
	assert.True(t, diag.Is(err, diag.KindStructure))
	assert.Contains(t, err.Error(), "foo1()")
}

func TestSparseBucketCount(t *testing.T) {
	l, err := Select(fiveFoos, Policy{})
	require.NoError(t, err)
	assert.Equal(t, 4, l.Buckets())

	l, err = Select(numbered(40), Policy{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.Buckets(), 34)
	assert.LessOrEqual(t, l.Buckets(), 46)
}

func TestDenseSlotsAreDistinct(t *testing.T) {
	for _, n := range []int{1, 5, 12, 40} {
		l, err := Select(numbered(n), Policy{Objective: ObjectiveSize, Debug: true})
		require.NoError(t, err)
		require.Equal(t, KindDense, l.Kind(), n)

		total := 0
		for _, b := range l.buckets {
			total += len(b.entries)
			for i, e := range b.entries {
				assert.Equal(t, uint32(b.index), e.id%uint32(len(l.buckets)))
				assert.Equal(t, i, slot(e.id, b.magic, len(b.entries)), "%d selectors, bucket %d", n, b.index)
			}
		}
		assert.Equal(t, n, total)
	}
}

func TestDenseMetaWidth(t *testing.T) {
	es := entries("small", "large")
	es[1].MinCalldataSize = 4 + 32*10
	es[1].Payable = true
	l, err := Select(es, Policy{Objective: ObjectiveSize, Debug: true})
	require.NoError(t, err)
	assert.Equal(t, 2, l.metaBytes)
	assert.Equal(t, uint64(9), l.entries[0].meta())
	assert.Equal(t, uint64(648), l.entries[1].meta())
}

// dataSections collects data sections in the order they appear.
func dataSections(n *ir.Node) []*ir.Node {
	if n.Is(ir.OpData) {
		return []*ir.Node{n}
	}
	var out []*ir.Node
	if n.Kind() != ir.KindOp {
		return nil
	}
	for _, a := range n.Args() {
		out = append(out, dataSections(a)...)
	}
	return out
}

func TestSectionLengthsMatchEmittedData(t *testing.T) {
	for _, n := range []int{1, 5, 13, 40} {
		for _, p := range []Policy{{Objective: ObjectiveGas}, {Objective: ObjectiveSize, Debug: true}, {Objective: ObjectiveNone}} {
			l, err := Select(numbered(n), p)
			require.NoError(t, err)
			root := l.SelectorIR()
			require.NoError(t, ir.CheckScopes(root))

			got := []int{}
			for _, d := range dataSections(root) {
				size := 0
				for _, it := range d.Args() {
					if it.Is(ir.OpSymbol) {
						size += 2
					} else {
						size += len(it.Raw())
					}
				}
				got = append(got, size)
			}
			assert.Equal(t, l.SectionLengths(), got, "%d selectors, %s", n, p.Objective)
		}
	}
}

func TestSelectorIRSingleFunction(t *testing.T) {
	l, err := Select(entries("a"), Policy{})
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "single_gas", []byte(l.SelectorIR().String()))
}

func TestSparseIRJumpsThroughTable(t *testing.T) {
	l, err := Select(fiveFoos, Policy{})
	require.NoError(t, err)
	s := l.SelectorIR().String()
	assert.Contains(t, s, "[djump, [shr, 240,")
	assert.Contains(t, s, "[data BUCKET_HEADERS, ")
	assert.Contains(t, s, "[label bucket_0, [with calldata_method_id")
	for _, e := range fiveFoos {
		assert.Contains(t, s, "[goto "+e.Label+"]")
	}
}

func TestSummary(t *testing.T) {
	l, err := Select(fiveFoos, Policy{})
	require.NoError(t, err)
	s := l.Summary()
	assert.Equal(t, "sparse", s.Kind)
	assert.Equal(t, 4, s.Buckets)
	assert.Equal(t, []int{8}, s.Sections)
	require.Len(t, s.Entries, 5)
	assert.Equal(t, EntrySummary{Signature: "foo1()", MethodID: "0xd38955e8", Bucket: int(0xd38955e8 % 4)}, s.Entries[0])
}
