package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/store"
)

// BuildsOptions holds flags for the builds command.
type BuildsOptions struct {
	*RootOptions
	DB string
}

// NewBuildsCommand creates the builds command.
func NewBuildsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "builds <contract>",
		Short:         "List the recorded builds of a contract",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuilds(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "build registry database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runBuilds(opts *BuildsOptions, contract string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("registry not found: %s", opts.DB)})
	}
	s, err := store.Open(opts.DB)
	if err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeRegistry, Message: err.Error()})
	}
	defer s.Close()

	builds, err := s.ListBuilds(cmd.Context(), contract)
	if err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeRegistry, Message: err.Error()})
	}
	formatter.VerboseLog("Found %d build(s) of %s", len(builds), contract)

	if formatter.Format == "json" {
		if builds == nil {
			builds = []store.Build{}
		}
		return formatter.Success(builds)
	}

	if len(builds) == 0 {
		fmt.Fprintf(formatter.Writer, "No builds of %s\n", contract)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d build(s) of %s\n\n", len(builds), contract)
	for _, b := range builds {
		fmt.Fprintf(formatter.Writer, "  #%d %s\n", b.Seq, b.ID)
		fmt.Fprintf(formatter.Writer, "     integrity %s\n", b.Integrity)
		fmt.Fprintf(formatter.Writer, "     settings  %s\n", b.Settings)
	}
	return nil
}
