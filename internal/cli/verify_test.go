package cli

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyDecodesMetadata(t *testing.T) {
	a := compileCounter(t)
	initcode := hex.EncodeToString(a.Build.Initcode)
	integrity := hex.EncodeToString(a.Build.Integrity[:])

	for _, arg := range []string{initcode, "0x" + initcode} {
		out, err := execute(t, NewVerifyCommand(&RootOptions{Format: "text"}), arg)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Metadata decoded")
		assert.Contains(t, out, integrity)
		assert.Contains(t, out, "kiln 0.1.0")
		assert.NotContains(t, out, "Deployed code matches")
	}
}

func TestVerifyDeployedCode(t *testing.T) {
	a := compileCounter(t)
	dir := t.TempDir()
	initcodeFile := filepath.Join(dir, "counter.hex")
	require.NoError(t, os.WriteFile(initcodeFile, []byte(hex.EncodeToString(a.Build.Initcode)+"\n"), 0o644))

	out, err := execute(t, NewVerifyCommand(&RootOptions{Format: "json"}),
		"@"+initcodeFile, "--deployed", hex.EncodeToString(a.Build.Runtime))
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   VerifyResult
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.DeployedMatch)
	assert.Equal(t, uint64(len(a.Build.Runtime)), resp.Data.Metadata.RuntimeLength)
	assert.Equal(t, uint64(0), resp.Data.Metadata.ImmutablesLength)
}

func TestVerifyFindsRecordedBuild(t *testing.T) {
	db := filepath.Join(t.TempDir(), "builds.db")
	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), counterPath, "--record", db)
	require.NoError(t, err)

	a := compileCounter(t)
	out, err := execute(t, NewVerifyCommand(&RootOptions{Format: "json"}),
		hex.EncodeToString(a.Build.Initcode), "--db", db)
	require.NoError(t, err)

	var resp struct{ Data VerifyResult }
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Builds, 1)
	assert.Equal(t, "counter", resp.Data.Builds[0].Contract)
	assert.Equal(t, int64(1), resp.Data.Builds[0].Seq)
	assert.Empty(t, resp.Data.RuntimeBuilds)

	out, err = execute(t, NewVerifyCommand(&RootOptions{Format: "json"}),
		hex.EncodeToString(a.Build.Initcode), "--db", db,
		"--deployed", hex.EncodeToString(a.Build.Runtime))
	require.NoError(t, err)
	resp = struct{ Data VerifyResult }{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.RuntimeBuilds, 1)
	assert.Equal(t, resp.Data.Builds[0].ID, resp.Data.RuntimeBuilds[0].ID)
}

func TestVerifyErrors(t *testing.T) {
	a := compileCounter(t)
	initcode := hex.EncodeToString(a.Build.Initcode)
	truncated := hex.EncodeToString(a.Build.Runtime[:len(a.Build.Runtime)-1])

	tests := []struct {
		name     string
		args     []string
		code     string
		exitCode int
	}{
		{"not hex", []string{"zz"}, ErrCodeInvalidHex, ExitCommandError},
		{"missing file", []string{"@testdata/missing.hex"}, ErrCodeNotFound, ExitCommandError},
		{"no trailer", []string{"00"}, ErrCodeVerifyFailed, ExitFailure},
		{"deployed mismatch", []string{initcode, "--deployed", truncated}, ErrCodeVerifyFailed, ExitFailure},
		{"missing registry", []string{initcode, "--db", filepath.Join(t.TempDir(), "none.db")}, ErrCodeRegistry, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewVerifyCommand(&RootOptions{Format: "json"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))

			resp := decodeResponse(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
