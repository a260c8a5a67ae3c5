// Package codegen lowers a typed module into per-function IR.
//
// Each external function becomes a labelled body that decodes its
// arguments from calldata into a memory frame and then runs its
// statements. Dispatch to those labels is built separately by the
// dispatch package.
package codegen

import (
	"fmt"

	"github.com/roach88/kiln/internal/asm"
	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/clamp"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/sema"
	"github.com/roach88/kiln/internal/types"
)

const (
	// FrameStart is the first memory offset available to variables.
	// Memory below it is scratch space.
	FrameStart = 0x40

	// CodeEnd is the symbol the assembler resolves to the end of the
	// runtime code. Immutables are stored right after it.
	CodeEnd = asm.CodeEnd

	selectorBytes = 4
)

// Program is a lowered module.
type Program struct {
	Name       string
	Functions  []*Function
	Immutables []*Immutable
}

// ImmutablesLength is the number of bytes appended to the runtime code at
// deployment.
func (p *Program) ImmutablesLength() int {
	n := 0
	for _, im := range p.Immutables {
		n += im.Type.MemoryBytes()
	}
	return n
}

// Function is one lowered external function.
type Function struct {
	Name      string
	Signature string
	Label     string
	Payable   bool

	// MinCalldataSize is the smallest calldata that can hold the
	// selector and every argument head.
	MinCalldataSize int

	// Body is the labelled function body.
	Body *ir.Node
}

// Immutable is a deploy-time constant stored after the runtime code.
type Immutable struct {
	Name   string
	Type   types.Descriptor
	Offset int

	// Value computes the immutable during deployment.
	Value *ir.Node
}

// Lower lowers every immutable and function of m. b is shared by the
// whole compilation so binding names stay unique.
func Lower(m *ast.Module, b *ir.Bindings) (*Program, error) {
	p := &Program{Name: m.Name}
	scope := sema.NewScope()

	for _, im := range m.Immutables {
		lowered, err := lowerImmutable(b, scope, im, p.ImmutablesLength())
		if err != nil {
			return nil, fmt.Errorf("immutable %s: %w", im.Name, err)
		}
		p.Immutables = append(p.Immutables, lowered)
	}

	seen := make(map[string]bool, len(m.Functions))
	for _, def := range m.Functions {
		if seen[def.Name] {
			return nil, diag.Structure(int(def.ID()), "function %s is declared twice", def.Name)
		}
		seen[def.Name] = true

		fn, err := lowerFunction(b, scope, p, def)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", def.Name, err)
		}
		p.Functions = append(p.Functions, fn)
	}
	return p, nil
}

func lowerImmutable(b *ir.Bindings, scope *sema.Scope, im *ast.Immutable, offset int) (*Immutable, error) {
	if !im.Typ.IsBaseType() {
		return nil, diag.Structure(int(im.ID()), "immutable %s must be a word type, not %s", im.Name, im.Typ)
	}
	// Immutables are not readable while deploying, so the value is
	// lowered before the name is declared.
	fc := &frame{b: b, scope: scope, slots: sema.NewMembers[int](), next: FrameStart, deploying: true}
	val, err := fc.expr(im.Value)
	if err != nil {
		return nil, err
	}
	if err := sameType(im.Value, val.Type(), im.Typ); err != nil {
		return nil, err
	}
	if err := scope.Declare(sema.Symbol{Name: im.Name, Kind: sema.SymImmutable, Type: im.Typ}, im.ID()); err != nil {
		return nil, err
	}
	return &Immutable{Name: im.Name, Type: im.Typ, Offset: offset, Value: ir.Load(val)}, nil
}

func lowerFunction(b *ir.Bindings, scope *sema.Scope, p *Program, def *ast.FunctionDef) (*Function, error) {
	scope.Enter()
	fc := &frame{
		b:          b,
		scope:      scope,
		slots:      sema.NewMembers[int](),
		next:       FrameStart,
		def:        def,
		immutables: p.Immutables,
	}

	var body []*ir.Node
	minSize := selectorBytes
	for i, arg := range def.Args {
		if err := fc.declare(arg.Name, sema.SymArg, arg.Typ, arg.ID()); err != nil {
			return nil, err
		}
		n, err := fc.decodeArg(i, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		body = append(body, n)
		if arg.Typ.IsBaseType() {
			minSize += types.WordBytes
		} else {
			// Head offset plus the length word.
			minSize += 2 * types.WordBytes
		}
	}

	for _, s := range def.Body {
		n, err := fc.stmt(s)
		if err != nil {
			return nil, err
		}
		body = append(body, n)
	}
	body = append(body, ir.New(ir.OpStop))

	if err := scope.Exit(); err != nil {
		return nil, err
	}

	label := "external_" + def.Name
	return &Function{
		Name:            def.Name,
		Signature:       def.Signature(),
		Label:           label,
		Payable:         def.Payable,
		MinCalldataSize: minSize,
		Body:            ir.Label(label, ir.Seq(body...)),
	}, nil
}

// frame is the lowering state of one function body.
type frame struct {
	b     *ir.Bindings
	scope *sema.Scope

	// slots maps each variable to its memory offset.
	slots *sema.Members[int]
	next  int

	def        *ast.FunctionDef
	immutables []*Immutable
	deploying  bool
}

// declare adds a variable and reserves its memory.
func (f *frame) declare(name string, kind sema.SymbolKind, typ types.Descriptor, decl ast.NodeID) error {
	if err := f.scope.Declare(sema.Symbol{Name: name, Kind: kind, Type: typ}, decl); err != nil {
		return err
	}
	f.slots.Set(name, f.next)
	if err := f.slots.SetDeclNode(name, decl); err != nil {
		return diag.Panicf("frame: %v", err)
	}
	f.next += typ.MemoryBytes()
	return nil
}

// alloc reserves anonymous memory for a temporary.
func (f *frame) alloc(typ types.Descriptor) int {
	off := f.next
	f.next += typ.MemoryBytes()
	return off
}

// decodeArg copies argument i from calldata into its slot, validating it.
func (f *frame) decodeArg(i int, arg *ast.Arg) (*ir.Node, error) {
	slot, _ := f.slots.Get(arg.Name)
	head := ir.Int64(int64(selectorBytes + types.WordBytes*i))

	if arg.Typ.IsBaseType() {
		val, err := clamp.BaseType(f.b, ir.Loc(ir.Calldata, head, arg.Typ), arg.Typ)
		if err != nil {
			return nil, err
		}
		return ir.New(ir.OpMStore, ir.Int64(int64(slot)), val), nil
	}

	// Dynamic arguments: the head holds the offset of a length-prefixed
	// payload.
	ptr := ir.New(ir.OpAdd, ir.Int64(selectorBytes), ir.New(ir.OpCalldataLoad, head))
	return f.b.Cache(ptr, "ptr", func(ptr *ir.Node) (*ir.Node, error) {
		return f.b.Cache(ir.New(ir.OpCalldataLoad, ptr), "len", func(length *ir.Node) (*ir.Node, error) {
			tooLong := ir.New(ir.OpGt, length, ir.Int64(int64(arg.Typ.MaxLen())))
			size := ir.New(ir.OpAdd, ir.Int64(types.WordBytes), length)
			return ir.Seq(
				ir.Assert(ir.New(ir.OpIsZero, tooLong)),
				ir.New(ir.OpCalldataCopy, ir.Int64(int64(slot)), ptr, size),
			), nil
		})
	})
}

// sameType requires a value of type got to be storable as want. Byte
// arrays fit any array of the same kind with at least their capacity.
func sameType(e ast.Expr, got, want types.Descriptor) error {
	if got.IsByteArray() && got.Tag() == want.Tag() && got.MaxLen() <= want.MaxLen() {
		return nil
	}
	if got != want {
		return diag.TypeMismatch(int(e.ID()), "expected %s, got %s", want, got)
	}
	return nil
}
