package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/compiler"
)

func TestValidateValidProgram(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{counterPath})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ counter is valid")
}

func TestValidateValidProgramJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), counterPath)
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   ValidationResult
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "counter", resp.Data.Contract)
}

func TestValidateNonExistentProgram(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "testdata/nonexistent.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateDuplicateFunction(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "testdata/duplicate.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "functions[1].name")
	assert.Contains(t, out, compiler.ErrDuplicateFunction)
}

func TestValidateDuplicateFunctionJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), "testdata/duplicate.cue")
	require.Error(t, err)

	var resp struct {
		Status string
		Data   ValidationResult
		Error  *CLIError
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrDuplicateFunction, resp.Data.Errors[0].Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrDuplicateFunction, resp.Error.Code)
}

// A program that fails to load is reported as invalid, with its position.
func TestValidateUnloadableProgram(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "testdata/bad_type.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "bad_type.cue:5:")
	assert.Contains(t, out, ErrCodeInvalidType)
}
