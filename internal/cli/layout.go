package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/compiler"
	"github.com/roach88/kiln/internal/dispatch"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	Settings SettingsFlags
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout <program.cue>",
		Short: "Show the function selector layout",
		Long: `Compile a contract program and show how its external functions are
dispatched: linear, sparse buckets or a dense table, with the bucket of
every method id and the length of each data section.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(opts, args[0], cmd)
		},
	}

	opts.Settings.register(cmd)

	return cmd
}

func runLayout(opts *LayoutOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	settings, err := opts.Settings.resolve(cmd)
	if err != nil {
		return outputCompileError(formatter, convertError(err))
	}
	m, err := LoadProgram(path)
	if err != nil {
		return outputCompileError(formatter, convertError(err))
	}
	a, err := compiler.Compile(m, settings)
	if err != nil {
		return outputCompileErrors(formatter, splitCompileError(err))
	}

	summary := a.Layout.Summary()
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	printLayout(formatter, a.Name, settings.Optimize, summary)
	return nil
}

func printLayout(formatter *OutputFormatter, contract, objective string, s dispatch.Summary) {
	w := formatter.Writer
	fmt.Fprintf(w, "%s: %s selector (optimize=%s)\n", contract, s.Kind, objective)
	if s.Buckets > 0 {
		fmt.Fprintf(w, "  buckets: %d, data sections: %v\n", s.Buckets, s.Sections)
	}
	fmt.Fprintln(w)
	for _, e := range s.Entries {
		if e.Bucket >= 0 {
			fmt.Fprintf(w, "  %s  %-32s bucket %d\n", e.MethodID, e.Signature, e.Bucket)
		} else {
			fmt.Fprintf(w, "  %s  %s\n", e.MethodID, e.Signature)
		}
	}
}
