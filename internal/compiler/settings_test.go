package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/dispatch"
)

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte("optimize: size\ndebug: true\ndense_threshold: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, Settings{Optimize: "size", Debug: true, DenseThreshold: 8}, s)

	p, err := s.Policy()
	require.NoError(t, err)
	assert.Equal(t, dispatch.Policy{Objective: dispatch.ObjectiveSize, Debug: true, DenseThreshold: 8}, p)
}

func TestParseSettingsDefaults(t *testing.T) {
	s, err := ParseSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s, err = ParseSettings([]byte("debug: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "gas", s.Optimize)
	assert.Equal(t, dispatch.DefaultDenseThreshold, s.DenseThreshold)
}

func TestParseSettingsErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown key":        "optimise: size\n",
		"unknown objective":  "optimize: fastest\n",
		"negative threshold": "dense_threshold: -1\n",
		"wrong type":         "debug: [1]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSettings([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimize: none\n"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "none", s.Optimize)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
