package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "kiln", cmd.Use)
	assert.Contains(t, cmd.Long, "metadata trailer")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "layout", "verify", "builds", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	outputsFlag := compileCmd.Flags().Lookup("outputs")
	require.NotNil(t, outputsFlag)
	assert.Equal(t, "f", outputsFlag.Shorthand)
	assert.Equal(t, "[bytecode]", outputsFlag.DefValue)

	optimizeFlag := compileCmd.Flags().Lookup("optimize")
	require.NotNil(t, optimizeFlag)
	assert.Equal(t, "gas", optimizeFlag.DefValue)

	thresholdFlag := compileCmd.Flags().Lookup("dense-threshold")
	require.NotNil(t, thresholdFlag)
	assert.Equal(t, "4", thresholdFlag.DefValue)
}

func TestBuildsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	buildsCmd, _, err := cmd.Find([]string{"builds"})
	require.NoError(t, err)

	dbFlag := buildsCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	cmd := NewRootCommand()
	stderr := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--format", "yaml", "validate", counterPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr.String(), `invalid format "yaml"`)
}

func TestRootRunsSubcommand(t *testing.T) {
	cmd := NewRootCommand()
	out, err := execute(t, cmd, "validate", counterPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter is valid")
}
