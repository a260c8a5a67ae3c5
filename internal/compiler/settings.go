package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kiln/internal/dispatch"
)

// Settings are the options of one compilation.
type Settings struct {
	// Optimize is the dispatch objective: gas, size or none.
	Optimize string `yaml:"optimize" json:"optimize"`

	// Debug forces the dense dispatch table under the size objective.
	Debug bool `yaml:"debug" json:"debug"`

	// DenseThreshold is the selector count above which the size
	// objective picks the dense table.
	DenseThreshold int `yaml:"dense_threshold" json:"dense_threshold"`
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		Optimize:       dispatch.ObjectiveGas.String(),
		DenseThreshold: dispatch.DefaultDenseThreshold,
	}
}

// LoadSettings reads YAML settings from path over the defaults. Unknown
// keys are rejected.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings over the defaults.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if _, err := s.Policy(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Policy returns the dispatch policy the settings describe.
func (s Settings) Policy() (dispatch.Policy, error) {
	obj, err := dispatch.ParseObjective(s.Optimize)
	if err != nil {
		return dispatch.Policy{}, err
	}
	if s.DenseThreshold < 0 {
		return dispatch.Policy{}, fmt.Errorf("dense_threshold must not be negative, got %d", s.DenseThreshold)
	}
	return dispatch.Policy{Objective: obj, Debug: s.Debug, DenseThreshold: s.DenseThreshold}, nil
}
