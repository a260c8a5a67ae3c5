package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/asm"
	"github.com/roach88/kiln/internal/compiler"
	"github.com/roach88/kiln/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Deployed string // deployed code, hex or @file
	DB       string // build registry database
}

// VerifyResult is the JSON payload of a successful verify.
type VerifyResult struct {
	Metadata      compiler.MetadataJSON `json:"metadata"`
	DeployedMatch bool                  `json:"deployed_match,omitempty"`
	Builds        []BuildRef            `json:"builds,omitempty"`
	// RuntimeBuilds are builds whose runtime code equals the deployed
	// runtime section, whatever their integrity hash.
	RuntimeBuilds []BuildRef `json:"runtime_builds,omitempty"`
}

// BuildRef identifies a registry build.
type BuildRef struct {
	ID       string `json:"id"`
	Contract string `json:"contract"`
	Settings string `json:"settings"`
	Seq      int64  `json:"seq"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <initcode>",
		Short: "Decode and check the metadata trailer of initcode",
		Long: `Decode the metadata trailer at the end of initcode.

Bytecode arguments are hex (with or without 0x) or @path to a file holding
hex. With --deployed, the deployed code is checked against the runtime
length and immutables length the trailer declares. With --db, builds with
the same integrity hash are looked up in the registry, and so are builds
with the same runtime code when --deployed is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Deployed, "deployed", "", "deployed code to check (hex or @file)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "build registry database")

	return cmd
}

func runVerify(opts *VerifyOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	initcode, err := readBytecode(arg)
	if err != nil {
		return outputCompileError(formatter, convertError(err))
	}

	var (
		result   VerifyResult
		m        *asm.Metadata
		deployed []byte
	)
	if opts.Deployed != "" {
		deployed, err = readBytecode(opts.Deployed)
		if err != nil {
			return outputCompileError(formatter, convertError(err))
		}
		m, err = asm.Verify(initcode, deployed)
		if err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeVerifyFailed, Message: err.Error()})
		}
		result.DeployedMatch = true
	} else {
		m, err = asm.DecodeMetadata(initcode)
		if err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeVerifyFailed, Message: err.Error()})
		}
	}
	result.Metadata = compiler.NewMetadataJSON(m)
	formatter.VerboseLog("Decoded metadata: runtime %d bytes, integrity %s", m.RuntimeLength, result.Metadata.Integrity)

	if opts.DB != "" {
		var runtime []byte
		if result.DeployedMatch {
			runtime = deployed[:m.RuntimeLength]
		}
		if err := lookupBuilds(cmd, opts.DB, &result, runtime); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeRegistry, Message: err.Error()})
		}
	}

	return outputVerifySuccess(formatter, opts, result)
}

// lookupBuilds fills the registry matches of result. A nil runtime skips
// the runtime lookup.
func lookupBuilds(cmd *cobra.Command, path string, result *VerifyResult, runtime []byte) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("registry not found: %w", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	builds, err := s.LookupByIntegrity(cmd.Context(), result.Metadata.Integrity)
	if err != nil {
		return err
	}
	result.Builds = buildRefs(builds)

	if runtime != nil {
		builds, err = s.LookupByRuntime(cmd.Context(), runtime)
		if err != nil {
			return err
		}
		result.RuntimeBuilds = buildRefs(builds)
	}
	return nil
}

func buildRefs(builds []store.Build) []BuildRef {
	refs := make([]BuildRef, len(builds))
	for i, b := range builds {
		refs[i] = BuildRef{ID: b.ID, Contract: b.Contract, Settings: b.Settings, Seq: b.Seq}
	}
	return refs
}

// readBytecode decodes a hex argument, reading it from a file first when
// it starts with @.
func readBytecode(arg string) ([]byte, error) {
	text := arg
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("bytecode file not found: %s", path)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if t, ok := strings.CutPrefix(text, "0x"); ok {
		text = t
	} else if t, ok := strings.CutPrefix(text, "0X"); ok {
		text = t
	}
	code, err := hex.DecodeString(text)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidHex, Message: fmt.Sprintf("invalid bytecode: %v", err)}
	}
	return code, nil
}

// outputVerifySuccess outputs the decoded trailer.
func outputVerifySuccess(formatter *OutputFormatter, opts *VerifyOptions, result VerifyResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	md := result.Metadata
	fmt.Fprintln(w, "✓ Metadata decoded")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  integrity:      %s\n", md.Integrity)
	fmt.Fprintf(w, "  runtime length: %d\n", md.RuntimeLength)
	fmt.Fprintf(w, "  data sections:  %v\n", md.DataSectionLengths)
	fmt.Fprintf(w, "  immutables:     %d\n", md.ImmutablesLength)
	for name, v := range md.Compiler {
		fmt.Fprintf(w, "  compiler:       %s %d.%d.%d\n", name, v[0], v[1], v[2])
	}
	if result.DeployedMatch {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✓ Deployed code matches")
	}
	if opts.DB != "" {
		fmt.Fprintln(w)
		if len(result.Builds) == 0 {
			fmt.Fprintln(w, "No recorded builds")
		}
		for _, b := range result.Builds {
			fmt.Fprintf(w, "  build %s  %s  %s\n", b.ID, b.Contract, b.Settings)
		}
		for _, b := range result.RuntimeBuilds {
			fmt.Fprintf(w, "  same runtime %s  %s  %s\n", b.ID, b.Contract, b.Settings)
		}
	}
	return nil
}
