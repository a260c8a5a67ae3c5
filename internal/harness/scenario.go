package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kiln/internal/compiler"
)

// Scenario is a sequence of calls against one compiled program.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Program is the CUE program to compile. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Program string `yaml:"program"`

	// Settings override the default compilation settings.
	Settings *compiler.Settings `yaml:"settings,omitempty"`

	// Calls run in order against one deployment.
	Calls []Step `yaml:"calls"`

	// Assertions are checked after every call has run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one message call. Exactly one of Call and Calldata is set.
type Step struct {
	// Call is the name of the function to call.
	Call string `yaml:"call,omitempty"`

	// Args are encoded with the function's argument types.
	Args []any `yaml:"args,omitempty"`

	// Calldata is sent as-is, in hex. Used for malformed calls.
	Calldata string `yaml:"calldata,omitempty"`

	// Value is the call value in wei.
	Value uint64 `yaml:"value,omitempty"`

	// Expect checks the outcome. Without it any outcome is accepted and
	// only recorded.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Revert says the call must revert. When false the call must return.
	Revert bool `yaml:"revert,omitempty"`

	// Returns is the expected return value, encoded with the function's
	// return type and compared byte for byte.
	Returns any `yaml:"returns,omitempty"`
}

// Assertion checks the compiled program or the whole trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the expected layout kind (layout).
	Kind string `yaml:"kind,omitempty"`

	// MaxBytes bounds the runtime code length (runtime_size).
	MaxBytes int `yaml:"max_bytes,omitempty"`

	// Call is a function name, or "raw" for calldata steps (trace_count).
	Call string `yaml:"call,omitempty"`

	// Outcome is "return" or "revert" (trace_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of matching trace events (trace_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertLayout      = "layout"
	AssertRuntimeSize = "runtime_size"
	AssertTraceCount  = "trace_count"
)

// Outcomes recorded in the trace.
const (
	OutcomeReturn = "return"
	OutcomeRevert = "revert"
)

// RawCall names calldata steps in the trace.
const RawCall = "raw"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the program path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}
	if s.Settings != nil {
		if _, err := s.Settings.Policy(); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}

	for i, step := range s.Calls {
		switch {
		case step.Call == "" && step.Calldata == "":
			return fmt.Errorf("calls[%d]: call or calldata is required", i)
		case step.Call != "" && step.Calldata != "":
			return fmt.Errorf("calls[%d]: call and calldata are exclusive", i)
		case step.Calldata != "" && len(step.Args) > 0:
			return fmt.Errorf("calls[%d]: args need a call", i)
		}
		if step.Expect != nil && step.Expect.Revert && step.Expect.Returns != nil {
			return fmt.Errorf("calls[%d].expect: a reverting call returns nothing", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLayout:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for layout", index)
		}
	case AssertRuntimeSize:
		if a.MaxBytes <= 0 {
			return fmt.Errorf("assertions[%d]: max_bytes must be positive for runtime_size", index)
		}
	case AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_count", index)
		}
		if a.Outcome != OutcomeReturn && a.Outcome != OutcomeRevert {
			return fmt.Errorf("assertions[%d]: outcome must be %q or %q", index, OutcomeReturn, OutcomeRevert)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
