package asm

import (
	"fmt"
	"slices"

	"github.com/roach88/kiln/internal/ir"
)

// RuntimeSection is the deploy-code data section holding the runtime code.
const RuntimeSection = "runtime_code"

// Immutable is a word computed at deployment and stored Offset bytes
// after the runtime code.
type Immutable struct {
	Offset int
	Value  *ir.Node
}

// Program is the input to Build.
type Program struct {
	Runtime          *ir.Node
	Immutables       []Immutable
	ImmutablesLength int
}

// Output is a finished build.
type Output struct {
	Initcode  []byte
	Runtime   []byte
	Integrity [32]byte
	Metadata  *Metadata

	DeployIR *ir.Node

	// Symbols are the runtime code offsets of labels and data sections.
	Symbols map[string]int
}

func immutableVar(i int) string { return fmt.Sprintf("immutable_%d", i) }

// DeployIR returns the code run at deployment: it computes every
// immutable, copies the runtime code to memory with the immutables after
// it, and returns the lot.
func DeployIR(runtime []byte, p Program) *ir.Node {
	n := int64(len(runtime))
	body := []*ir.Node{ir.New(ir.OpCodeCopy, ir.Int64(0), ir.Symbol(RuntimeSection), ir.Int64(n))}
	for i, im := range p.Immutables {
		body = append(body, ir.New(ir.OpMStore, ir.Int64(n+int64(im.Offset)), ir.Var(immutableVar(i))))
	}
	body = append(body,
		ir.New(ir.OpReturn, ir.Int64(0), ir.Int64(n+int64(p.ImmutablesLength))),
		ir.Data(RuntimeSection, ir.Bytes(runtime)),
	)

	// Values are computed before anything is written to memory.
	out := ir.Seq(body...)
	for i := len(p.Immutables) - 1; i >= 0; i-- {
		out = ir.With(immutableVar(i), p.Immutables[i].Value, out)
	}
	return out
}

// Build assembles p and appends the metadata trailer.
func Build(p Program, c Compiler) (*Output, error) {
	rt, err := Assemble(p.Runtime)
	if err != nil {
		return nil, fmt.Errorf("assemble runtime: %w", err)
	}
	deploy := DeployIR(rt.Code, p)
	dp, err := Assemble(deploy)
	if err != nil {
		return nil, fmt.Errorf("assemble deploy code: %w", err)
	}
	integrity, err := ir.IntegrityHash(p.Runtime, deploy, uint64(p.ImmutablesLength))
	if err != nil {
		return nil, err
	}

	lengths := make([]uint64, len(rt.DataSectionLengths))
	for i, l := range rt.DataSectionLengths {
		lengths[i] = uint64(l)
	}
	md := &Metadata{
		Integrity:          slices.Clone(integrity[:]),
		RuntimeLength:      uint64(len(rt.Code)),
		DataSectionLengths: lengths,
		ImmutablesLength:   uint64(p.ImmutablesLength),
		Compiler:           map[string][3]uint64{c.Name: c.Version},
	}
	trailer, err := md.Encode()
	if err != nil {
		return nil, err
	}
	return &Output{
		Initcode:  append(slices.Clone(dp.Code), trailer...),
		Runtime:   rt.Code,
		Integrity: integrity,
		Metadata:  md,
		DeployIR:  deploy,
		Symbols:   rt.Symbols,
	}, nil
}
