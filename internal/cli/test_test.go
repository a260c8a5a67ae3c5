package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("testdata", "scenarios")

func TestTestCommandPasses(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}),
		scenariosDir, "--filter", "counter*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_calls (4 calls)")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandReportsFailures(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ counter_calls")
	assert.Contains(t, out, "✗ wrong_return")
	assert.Contains(t, out, "expected 3, got 2")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["passed"])
}

func TestTestCommandUpdatesGolden(t *testing.T) {
	dir := t.TempDir()
	program, err := os.ReadFile(counterPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.cue"), program, 0o644))
	scenario := "name: counter_calls\ndescription: d\nprogram: counter.cue\n" +
		"calls:\n  - call: inc\n    args: [5]\n    expect: {returns: 6}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_calls (golden updated)")

	golden := filepath.Join(dir, "golden", "counter_calls.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"decoded": "6"`)

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "testdata/nowhere")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("bad filter", func(t *testing.T) {
		_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir, "--filter", "[")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("no scenarios", func(t *testing.T) {
		out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "No scenarios found.\n", out)
	})

	t.Run("unloadable scenario", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))
		out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ broken.yaml")
		assert.Contains(t, out, "failed to load scenario")
	})
}
