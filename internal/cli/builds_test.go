package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/store"
)

func TestBuildsListsRecordedBuilds(t *testing.T) {
	db := filepath.Join(t.TempDir(), "builds.db")
	for _, optimize := range []string{"gas", "size", "none"} {
		_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}),
			counterPath, "--record", db, "--optimize", optimize)
		require.NoError(t, err)
	}

	out, err := execute(t, NewBuildsCommand(&RootOptions{Format: "json"}), "counter", "--db", db)
	require.NoError(t, err)
	var resp struct{ Data []store.Build }
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	for i, b := range resp.Data {
		assert.Equal(t, int64(i+1), b.Seq)
	}

	out, err = execute(t, NewBuildsCommand(&RootOptions{Format: "text"}), "counter", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 build(s) of counter")
	assert.Contains(t, out, resp.Data[0].ID)
}

func TestBuildsUnknownContract(t *testing.T) {
	db := filepath.Join(t.TempDir(), "builds.db")
	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), counterPath, "--record", db)
	require.NoError(t, err)

	out, err := execute(t, NewBuildsCommand(&RootOptions{Format: "text"}), "token", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No builds of token\n", out)

	out, err = execute(t, NewBuildsCommand(&RootOptions{Format: "json"}), "token", "--db", db)
	require.NoError(t, err)
	var resp struct{ Data []store.Build }
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestBuildsMissingRegistry(t *testing.T) {
	_, err := execute(t, NewBuildsCommand(&RootOptions{Format: "text"}),
		"counter", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
