package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/compiler"
)

func TestCounterGolden(t *testing.T) {
	s, err := LoadScenario("testdata/counter.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Positive(t, result.RuntimeBytes)
}

func TestTokenScenario(t *testing.T) {
	s, err := LoadScenario("testdata/token.yaml")
	require.NoError(t, err)
	require.NotNil(t, s.Settings)
	assert.Equal(t, "size", s.Settings.Optimize)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "token", result.Contract)
	assert.Equal(t, "dense", result.Layout)

	require.Len(t, result.Trace, 6)
	assert.Equal(t, "42", result.Trace[0].Decoded)
	assert.Equal(t, "true", result.Trace[2].Decoded)
	assert.Equal(t, "-1", result.Trace[3].Decoded)

	deposit := result.Trace[5]
	assert.Equal(t, "deposit(bytes)", deposit.Call)
	assert.Equal(t, OutcomeReturn, deposit.Outcome)
	assert.Equal(t, uint64(5), deposit.Value)
	assert.Empty(t, deposit.Return)
	assert.Empty(t, deposit.Decoded)
}

func TestRunReportsFailures(t *testing.T) {
	s := &Scenario{
		Name:    "failing",
		Program: "testdata/counter.cue",
		Calls: []Step{
			{Call: "inc", Args: []any{5}, Expect: &Expect{Returns: 7}},
			{Call: "inc", Args: []any{1}, Expect: &Expect{Revert: true}},
			{Call: "inc", Args: []any{1}, Value: 1, Expect: &Expect{}},
			{Call: "inc", Args: []any{2}},
		},
		Assertions: []Assertion{
			{Type: AssertLayout, Kind: "dense"},
			{Type: AssertRuntimeSize, MaxBytes: 1},
			{Type: AssertTraceCount, Call: "inc", Outcome: OutcomeReturn, Count: 3},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "calls[0] inc(uint64): expected 7, got 6")
	assert.Contains(t, result.Errors[1], "calls[1] inc(uint64): expected revert")
	assert.Contains(t, result.Errors[2], "calls[2] inc(uint64): unexpected revert")
	assert.Contains(t, result.Errors[3], "assertions[0] layout: expected dense layout, got sparse")
	assert.Contains(t, result.Errors[4], "assertions[1] runtime_size")
}

func TestRunErrors(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		_, err := Run(&Scenario{
			Program: "testdata/counter.cue",
			Calls:   []Step{{Call: "dec", Args: []any{1}}},
		})
		assert.ErrorContains(t, err, `calls[0]: unknown function "dec"`)
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := Run(&Scenario{
			Program: "testdata/counter.cue",
			Calls:   []Step{{Call: "inc"}},
		})
		assert.ErrorContains(t, err, "got 0 value(s), want 1")
	})

	t.Run("bad calldata", func(t *testing.T) {
		_, err := Run(&Scenario{
			Program: "testdata/counter.cue",
			Calls:   []Step{{Calldata: "0xzz"}},
		})
		assert.ErrorContains(t, err, "calldata")
	})

	t.Run("missing program", func(t *testing.T) {
		_, err := New("testdata/missing.cue", nil)
		assert.ErrorContains(t, err, "load testdata/missing.cue")
	})
}

func TestHarnessCallSequence(t *testing.T) {
	settings := compiler.DefaultSettings()
	settings.Optimize = "none"
	h, err := New("testdata/counter.cue", &settings)
	require.NoError(t, err)
	assert.Equal(t, "linear", h.Artifacts().Layout.Kind().String())

	first, err := h.Call(Step{Call: "inc", Args: []any{"41"}})
	require.NoError(t, err)
	second, err := h.Call(Step{Calldata: "0x"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "42", first.Decoded)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, RawCall, second.Call)
	assert.Equal(t, OutcomeRevert, second.Outcome)
}

func TestLoadScenarioResolvesProgram(t *testing.T) {
	s, err := LoadScenario("testdata/counter.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "counter.cue"), s.Program)
	assert.Nil(t, s.Settings)
	require.Len(t, s.Calls, 4)
	assert.Equal(t, uint64(1), s.Calls[2].Value)
	assert.Equal(t, "0x00000000", s.Calls[3].Calldata)
}
