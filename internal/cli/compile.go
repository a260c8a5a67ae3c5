package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/compiler"
	"github.com/roach88/kiln/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Settings SettingsFlags
	Outputs  []string // requested outputs, see compiler.OutputNames
	Output   string   // output file path
	Record   string   // build registry database
}

// CompileResult is the JSON payload of a successful compile.
type CompileResult struct {
	Contract string         `json:"contract"`
	Outputs  map[string]any `json:"outputs"`
	BuildID  string         `json:"build_id,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <program.cue>",
		Short: "Compile a contract program to bytecode",
		Long: `Compile a contract program to EVM initcode.

The program is loaded from CUE, checked, lowered to IR, given a function
selector and assembled. Initcode ends with a CBOR metadata trailer that
carries the integrity hash of the build.

Outputs: ` + strings.Join(compiler.OutputNames, ", "),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	opts.Settings.register(cmd)
	cmd.Flags().StringSliceVarP(&opts.Outputs, "outputs", "f", []string{compiler.OutputBytecode}, "outputs to print")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Record, "record", "", "record the build in this registry database")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	for _, name := range opts.Outputs {
		if !slices.Contains(compiler.OutputNames, name) {
			return outputCompileError(formatter, &LoadError{
				Code:    ErrCodeInvalidFlag,
				Message: fmt.Sprintf("unknown output %q: must be one of %v", name, compiler.OutputNames),
			})
		}
	}
	settings, err := opts.Settings.resolve(cmd)
	if err != nil {
		return outputCompileError(formatter, convertError(err))
	}

	m, err := LoadProgram(path)
	if err != nil {
		return outputCompileError(formatter, convertError(err))
	}
	formatter.VerboseLog("Loaded %s: %d function(s), %d immutable(s)", m.Name, len(m.Functions), len(m.Immutables))

	a, err := compiler.Compile(m, settings)
	if err != nil {
		return outputCompileErrors(formatter, splitCompileError(err))
	}

	rendered := make(map[string]string, len(opts.Outputs))
	for _, name := range opts.Outputs {
		v, err := a.Output(name)
		if err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
		}
		rendered[name] = v
	}

	if opts.Output != "" {
		if err := writeOutputs(opts.Output, opts.Outputs, rendered); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	result := CompileResult{Contract: a.Name, Outputs: make(map[string]any, len(rendered))}
	for name, v := range rendered {
		result.Outputs[name] = jsonValue(name, v)
	}

	if opts.Record != "" {
		id, inserted, err := recordBuild(cmd, opts.Record, a)
		if err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeRegistry, Message: err.Error()})
		}
		result.BuildID = id
		if inserted {
			formatter.VerboseLog("Recorded build %s in %s", id, opts.Record)
		} else {
			formatter.VerboseLog("Build %s already recorded in %s", id, opts.Record)
		}
	}

	return outputCompileSuccess(formatter, opts, result, rendered)
}

func recordBuild(cmd *cobra.Command, path string, a *compiler.Artifacts) (string, bool, error) {
	s, err := store.Open(path)
	if err != nil {
		return "", false, err
	}
	defer s.Close()

	b, err := store.NewBuild(a)
	if err != nil {
		return "", false, err
	}
	return s.RecordBuild(cmd.Context(), b)
}

// jsonValue embeds JSON outputs as objects rather than strings.
func jsonValue(name, v string) any {
	switch name {
	case compiler.OutputLayout, compiler.OutputMetadata:
		return json.RawMessage(v)
	}
	return v
}

// writeOutputs writes a single output as-is, or several as one JSON object.
func writeOutputs(path string, names []string, rendered map[string]string) error {
	var data []byte
	if len(names) == 1 {
		data = []byte(rendered[names[0]] + "\n")
	} else {
		obj := make(map[string]any, len(rendered))
		for name, v := range rendered {
			obj[name] = jsonValue(name, v)
		}
		var err error
		if data, err = json.MarshalIndent(obj, "", "  "); err != nil {
			return fmt.Errorf("marshaling outputs: %w", err)
		}
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, opts *CompileOptions, result CompileResult, rendered map[string]string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// A single output piped elsewhere is printed bare.
	if len(opts.Outputs) == 1 && opts.Output == "" && !formatter.Interactive() {
		fmt.Fprintln(formatter.Writer, rendered[opts.Outputs[0]])
		return nil
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %s\n\n", result.Contract)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote %d output(s) to %s\n", len(opts.Outputs), opts.Output)
	} else {
		for _, name := range opts.Outputs {
			formatter.Section(name, rendered[name])
		}
	}
	if result.BuildID != "" {
		fmt.Fprintf(formatter.Writer, "Build %s\n", result.BuildID)
	}
	return nil
}

// splitCompileError flattens joined validation errors into one LoadError
// each.
func splitCompileError(err error) []*LoadError {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]*LoadError, 0, len(errs))
	for _, e := range errs {
		var ve compiler.ValidationError
		if errors.As(e, &ve) {
			out = append(out, &LoadError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)})
			continue
		}
		out = append(out, convertError(e))
	}
	return out
}

// isCommandError reports whether code describes a problem with the
// invocation rather than with the program.
func isCommandError(code string) bool {
	switch code {
	case ErrCodeGeneric, ErrCodeInvalidFlag, ErrCodeNotCUE, ErrCodeNotFound,
		ErrCodeWriteFailed, ErrCodeRegistry, ErrCodeInvalidHex:
		return true
	}
	return false
}

func exitCodeFor(code string) int {
	if isCommandError(code) {
		return ExitCommandError
	}
	return ExitFailure
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, err *LoadError) error {
	return outputCompileErrors(formatter, []*LoadError{err})
}

// outputCompileErrors outputs every compilation error. The exit code
// follows the first one.
func outputCompileErrors(formatter *OutputFormatter, errs []*LoadError) error {
	code := exitCodeFor(errs[0].Code)
	summary := fmt.Sprintf("%s: %s", errs[0].Code, errs[0].Message)
	if len(errs) > 1 {
		summary = fmt.Sprintf("compilation failed with %d error(s)", len(errs))
	}

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, e := range errs {
			cliErrors[i] = CLIError{Code: e.Code, Message: e.Message}
			if line := e.Line(); line > 0 {
				cliErrors[i].Details = map[string]any{"file": e.Pos.Filename(), "line": line, "column": e.Pos.Column()}
			}
		}
		response := CLIResponse{Status: "error", Error: &cliErrors[0]}
		if len(errs) > 1 {
			response.Data = cliErrors
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(code, summary)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(code, summary)
}
