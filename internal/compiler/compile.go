// Package compiler runs the back end end to end: typed module in,
// initcode with its metadata trailer out.
package compiler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/kiln/internal/asm"
	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/codegen"
	"github.com/roach88/kiln/internal/dispatch"
	"github.com/roach88/kiln/internal/ir"
)

// Output names accepted by Artifacts.Output.
const (
	OutputBytecode        = "bytecode"
	OutputBytecodeRuntime = "bytecode_runtime"
	OutputIntegrity       = "integrity"
	OutputIR              = "ir"
	OutputLayout          = "layout"
	OutputMetadata        = "metadata"
)

// OutputNames lists every output in the order the CLI prints them.
var OutputNames = []string{
	OutputBytecode,
	OutputBytecodeRuntime,
	OutputIntegrity,
	OutputIR,
	OutputLayout,
	OutputMetadata,
}

// Artifacts is everything one compilation produced.
type Artifacts struct {
	Name     string
	Settings Settings
	Program  *codegen.Program
	Layout   *dispatch.Layout

	// RuntimeIR is the runtime code before assembly.
	RuntimeIR *ir.Node

	Build *asm.Output
}

// Compile lowers, lays out and assembles m. Every call starts from fresh
// state, so the same module and settings always give the same bytes.
func Compile(m *ast.Module, s Settings) (*Artifacts, error) {
	policy, err := s.Policy()
	if err != nil {
		return nil, err
	}
	if verrs := Validate(m); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, errors.Join(errs...)
	}

	m, err = ast.UnmangleTupleDeclarations(m)
	if err != nil {
		return nil, err
	}
	prog, err := codegen.Lower(m, ir.NewBindings())
	if err != nil {
		return nil, err
	}
	slog.Debug("module lowered",
		"contract", m.Name,
		"functions", len(prog.Functions),
		"immutables", len(prog.Immutables),
	)

	entries := make([]dispatch.Entry, len(prog.Functions))
	for i, fn := range prog.Functions {
		entries[i] = dispatch.Entry{
			Signature:       fn.Signature,
			Label:           fn.Label,
			MinCalldataSize: fn.MinCalldataSize,
			Payable:         fn.Payable,
		}
	}
	layout, err := dispatch.Select(entries, policy)
	if err != nil {
		return nil, err
	}
	slog.Debug("dispatch layout selected",
		"contract", m.Name,
		"kind", layout.Kind().String(),
		"buckets", layout.Buckets(),
		"objective", policy.Objective.String(),
	)

	runtime := RuntimeIR(layout, prog)
	if err := ir.CheckScopes(runtime); err != nil {
		return nil, err
	}

	p := asm.Program{Runtime: runtime, ImmutablesLength: prog.ImmutablesLength()}
	for _, im := range prog.Immutables {
		p.Immutables = append(p.Immutables, asm.Immutable{Offset: im.Offset, Value: im.Value})
	}
	out, err := asm.Build(p, asm.Compiler{Name: ir.CompilerName, Version: ir.VersionTriple})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", m.Name, err)
	}
	slog.Debug("contract assembled",
		"contract", m.Name,
		"runtime_bytes", len(out.Runtime),
		"initcode_bytes", len(out.Initcode),
		"integrity", hex.EncodeToString(out.Integrity[:]),
	)

	return &Artifacts{
		Name:      m.Name,
		Settings:  s,
		Program:   prog,
		Layout:    layout,
		RuntimeIR: runtime,
		Build:     out,
	}, nil
}

// RuntimeIR joins the selector, the fallback and every function body.
// Calls that match no function, or fail a selector check, revert with no
// data.
func RuntimeIR(layout *dispatch.Layout, prog *codegen.Program) *ir.Node {
	parts := []*ir.Node{
		layout.SelectorIR(),
		ir.Label(dispatch.FallbackLabel, ir.New(ir.OpRevert, ir.Int64(0), ir.Int64(0))),
	}
	for _, fn := range prog.Functions {
		parts = append(parts, fn.Body)
	}
	return ir.Seq(parts...)
}

// MetadataJSON is the printable form of the metadata trailer.
type MetadataJSON struct {
	Integrity          string               `json:"integrity"`
	RuntimeLength      uint64               `json:"runtime_length"`
	DataSectionLengths []uint64             `json:"data_section_lengths"`
	ImmutablesLength   uint64               `json:"immutables_len"`
	Compiler           map[string][3]uint64 `json:"compiler"`
}

// NewMetadataJSON converts a decoded trailer for printing.
func NewMetadataJSON(m *asm.Metadata) MetadataJSON {
	lengths := m.DataSectionLengths
	if lengths == nil {
		lengths = []uint64{}
	}
	return MetadataJSON{
		Integrity:          hex.EncodeToString(m.Integrity),
		RuntimeLength:      m.RuntimeLength,
		DataSectionLengths: lengths,
		ImmutablesLength:   m.ImmutablesLength,
		Compiler:           m.Compiler,
	}
}

// Output renders one named output. Hex outputs have no 0x prefix.
func (a *Artifacts) Output(name string) (string, error) {
	switch name {
	case OutputBytecode:
		return hex.EncodeToString(a.Build.Initcode), nil
	case OutputBytecodeRuntime:
		return hex.EncodeToString(a.Build.Runtime), nil
	case OutputIntegrity:
		return hex.EncodeToString(a.Build.Integrity[:]), nil
	case OutputIR:
		return ir.Pretty(a.RuntimeIR), nil
	case OutputLayout:
		return marshal(a.Layout.Summary())
	case OutputMetadata:
		return marshal(NewMetadataJSON(a.Build.Metadata))
	}
	return "", fmt.Errorf("unknown output %q", name)
}

func marshal(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
