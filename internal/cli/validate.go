package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationResult represents the result of validation.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Contract string                     `json:"contract,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <program.cue>",
		Short: "Check a contract program without compiling it",
		Long: `Check a contract program without compiling it.

Every structural problem is reported, not just the first: empty names,
duplicate functions or names, selector collisions, unsupported immutable
types and oversized return values.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	m, err := LoadProgram(path)
	if err != nil {
		le := convertError(err)
		if isCommandError(le.Code) {
			return outputValidateError(formatter, le.Code, le.Message)
		}
		// A program that does not load is invalid, not a bad invocation.
		field := "program"
		if le.Pos.IsValid() {
			field = fmt.Sprintf("%s:%d:%d", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column())
		}
		return outputValidationErrors(formatter, []compiler.ValidationError{{Field: field, Message: le.Message, Code: le.Code}})
	}

	formatter.VerboseLog("Validating %s", m.Name)
	if errs := compiler.Validate(m); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	return outputValidateSuccess(formatter, m.Name)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, contract string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Contract: contract})
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", contract)
	return nil
}

// outputValidateError outputs an error with the invocation itself.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n", e.Field)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
