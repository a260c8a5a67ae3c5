// Package asm assembles IR into stack-machine bytecode and writes the
// metadata trailer that ties the bytecode back to its IR.
//
// Assembly is two-pass. The first pass walks the IR and emits a flat list
// of instructions in which every label reference is a fixed-width 2-byte
// push. The second pass lays the instructions out, appends data sections
// in the order they were met, and patches the references.
package asm

import (
	"fmt"
	"math/big"

	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
)

// CodeEnd is resolved to the total length of the assembled code, data
// sections included. Immutables are appended right after it at deployment.
const CodeEnd = "code_end"

// revertLabel is the shared stub that checks jump to when they fail.
const revertLabel = "_revert"

const (
	opStop     = 0x00
	opPop      = 0x50
	opJump     = 0x56
	opJumpI    = 0x57
	opJumpDest = 0x5b
	opPush1    = 0x60
	opPush2    = 0x61
	opDup1     = 0x80
	opSwap1    = 0x90
	opRevert   = 0xfd

	maxDup       = 16
	symbolBytes  = 2
	maxCodeBytes = 1 << (8 * symbolBytes)
)

// Assembly is assembled code.
type Assembly struct {
	Code []byte

	// DataSectionLengths holds the byte length of each data section in
	// emission order.
	DataSectionLengths []int

	// Symbols maps labels, data sections and marks to code offsets.
	Symbols map[string]int
}

type instr struct {
	op    byte
	imm   []byte
	ref   string // a PUSH2 of this symbol when set
	label string // a JUMPDEST defining this symbol when set
	mark  string // a zero-width symbol when set
}

func (in instr) size() int {
	switch {
	case in.mark != "":
		return 0
	case in.ref != "":
		return 1 + symbolBytes
	}
	return 1 + len(in.imm)
}

type section struct {
	name  string
	items []*ir.Node
}

func (s *section) size() int {
	n := 0
	for _, it := range s.items {
		if it.Is(ir.OpSymbol) {
			n += symbolBytes
		} else {
			n += len(it.Raw())
		}
	}
	return n
}

type binding struct {
	name string
	pos  int
}

type assembler struct {
	code     []instr
	sections []*section

	height int
	env    []binding

	usesRevert bool
	branches   int
}

// Assemble compiles root into bytecode.
func Assemble(root *ir.Node) (*Assembly, error) {
	a := &assembler{}
	if err := a.compile(root); err != nil {
		return nil, err
	}
	if root.Valued() {
		a.emit(opPop)
	}
	if a.usesRevert {
		// Straight-line code must not fall into the stub.
		a.emit(opStop)
		a.code = append(a.code, instr{op: opJumpDest, label: revertLabel})
		a.push(big.NewInt(0))
		a.emit(opDup1, opRevert)
	}
	return a.link()
}

func (a *assembler) emit(ops ...byte) {
	for _, op := range ops {
		a.code = append(a.code, instr{op: op})
	}
}

func (a *assembler) push(v *big.Int) {
	raw := ir.Word(v).Bytes()
	if len(raw) == 0 {
		raw = []byte{0}
	}
	a.code = append(a.code, instr{op: opPush1 + byte(len(raw)-1), imm: raw})
}

func (a *assembler) pushRef(name string) {
	a.code = append(a.code, instr{op: opPush2, ref: name})
}

func (a *assembler) jumpDest(name string) {
	a.code = append(a.code, instr{op: opJumpDest, label: name})
}

func opcode(op ir.Op) byte {
	code, ok := op.Opcode()
	if !ok {
		panic(fmt.Sprintf("asm: %s has no opcode", op))
	}
	return code
}

func (a *assembler) freshLabel(kind string) string {
	a.branches++
	return fmt.Sprintf("_%s_%d", kind, a.branches)
}

// revertIf consumes the condition on top of the stack and reverts when it
// is nonzero.
func (a *assembler) revertIf() {
	a.pushRef(revertLabel)
	a.emit(opJumpI)
	a.height--
	a.usesRevert = true
}

// args compiles children right to left so the first ends up on top.
func (a *assembler) args(n *ir.Node) error {
	for i := n.NumArgs() - 1; i >= 0; i-- {
		arg := n.Arg(i)
		if !arg.Valued() {
			return diag.Panicf("asm: %s argument %d has no value", n.Op(), i)
		}
		if err := a.compile(arg); err != nil {
			return err
		}
	}
	return nil
}

// compile emits n. Afterwards the stack is one word higher if n is valued
// and unchanged otherwise.
func (a *assembler) compile(n *ir.Node) error {
	switch n.Kind() {
	case ir.KindConst:
		a.push(n.Value())
		a.height++
		return nil
	case ir.KindLoc:
		return a.compile(n.Pointer())
	}

	switch n.Op() {
	case ir.OpSeq:
		last := n.NumArgs() - 1
		for i, c := range n.Args() {
			if err := a.compile(c); err != nil {
				return err
			}
			if c.Valued() && (i != last || !n.Valued()) {
				a.emit(opPop)
				a.height--
			}
		}
		return nil

	case ir.OpIf:
		return a.branch(n)

	case ir.OpWith:
		if err := a.compile(n.Arg(0)); err != nil {
			return err
		}
		a.env = append(a.env, binding{name: n.Name(), pos: a.height})
		err := a.compile(n.Arg(1))
		a.env = a.env[:len(a.env)-1]
		if err != nil {
			return err
		}
		if n.Valued() {
			a.emit(opSwap1)
		}
		a.emit(opPop)
		a.height--
		return nil

	case ir.OpVar:
		for i := len(a.env) - 1; i >= 0; i-- {
			if a.env[i].name != n.Name() {
				continue
			}
			depth := a.height - a.env[i].pos + 1
			if depth > maxDup {
				return diag.Panicf("asm: %s is %d deep, beyond dup%d", n.Name(), depth, maxDup)
			}
			a.emit(opDup1 + byte(depth-1))
			a.height++
			return nil
		}
		return diag.Panicf("asm: var %s used outside its binding", n.Name())

	case ir.OpAssert:
		if err := a.args(n); err != nil {
			return err
		}
		a.emit(opcode(ir.OpIsZero))
		a.revertIf()
		return nil

	case ir.OpClampGE, ir.OpClampLE, ir.OpUClampGE, ir.OpUClampLE:
		return a.clamp(n)

	case ir.OpPass:
		return nil

	case ir.OpLabel:
		return a.label(n)

	case ir.OpGoto:
		a.pushRef(n.Name())
		a.emit(opJump)
		return nil

	case ir.OpDJump:
		if err := a.args(n); err != nil {
			return err
		}
		a.emit(opJump)
		a.height--
		return nil

	case ir.OpSymbol:
		a.pushRef(n.Name())
		a.height++
		return nil

	case ir.OpMark:
		a.code = append(a.code, instr{mark: n.Name()})
		return nil

	case ir.OpData:
		a.sections = append(a.sections, &section{name: n.Name(), items: n.Args()})
		return nil

	case ir.OpBytes:
		return diag.Panicf("asm: bytes outside a data section")
	}

	code, ok := n.Op().Opcode()
	if !ok {
		return diag.Panicf("asm: no encoding for %s", n.Op())
	}
	if err := a.args(n); err != nil {
		return err
	}
	a.emit(code)
	a.height -= n.NumArgs()
	if n.Valued() {
		a.height++
	}
	return nil
}

func (a *assembler) branch(n *ir.Node) error {
	if err := a.compile(n.Arg(0)); err != nil {
		return err
	}
	a.emit(opcode(ir.OpIsZero))
	base := a.height - 1

	if n.NumArgs() == 2 {
		end := a.freshLabel("endif")
		a.pushRef(end)
		a.emit(opJumpI)
		a.height = base
		if err := a.compile(n.Arg(1)); err != nil {
			return err
		}
		if n.Arg(1).Valued() {
			a.emit(opPop)
		}
		a.jumpDest(end)
		a.height = base
		return nil
	}

	els, end := a.freshLabel("else"), a.freshLabel("endif")
	a.pushRef(els)
	a.emit(opJumpI)
	a.height = base
	if err := a.compile(n.Arg(1)); err != nil {
		return err
	}
	a.pushRef(end)
	a.emit(opJump)
	a.jumpDest(els)
	a.height = base
	if err := a.compile(n.Arg(2)); err != nil {
		return err
	}
	a.jumpDest(end)
	if n.Valued() {
		a.height = base + 1
	}
	return nil
}

// clamp leaves its first argument on the stack after checking it against
// the bound.
func (a *assembler) clamp(n *ir.Node) error {
	if err := a.args(n); err != nil {
		return err
	}
	var fails ir.Op
	switch n.Op() {
	case ir.OpClampGE:
		fails = ir.OpSlt
	case ir.OpClampLE:
		fails = ir.OpSgt
	case ir.OpUClampGE:
		fails = ir.OpLt
	default:
		fails = ir.OpGt
	}
	// x, bound -> x, bound, x, bound -> x < bound, x, bound
	a.emit(opDup1+1, opDup1+1, opcode(fails))
	a.height++
	a.revertIf()
	a.emit(opSwap1, opPop)
	a.height--
	return nil
}

// label emits a jump target. Control reaches it by jumping, so no with
// binding from the enclosing code is visible inside.
func (a *assembler) label(n *ir.Node) error {
	env, height := a.env, a.height
	a.env, a.height = nil, 0
	a.jumpDest(n.Name())
	body := n.Arg(0)
	err := a.compile(body)
	if err == nil && body.Valued() {
		a.emit(opPop)
	}
	a.env, a.height = env, height
	return err
}

func (a *assembler) link() (*Assembly, error) {
	symbols := make(map[string]int)
	define := func(name string, off int) error {
		if _, dup := symbols[name]; dup {
			return diag.Panicf("asm: symbol %s defined twice", name)
		}
		symbols[name] = off
		return nil
	}

	off := 0
	for _, in := range a.code {
		name := in.label
		if in.mark != "" {
			name = in.mark
		}
		if name != "" {
			if err := define(name, off); err != nil {
				return nil, err
			}
		}
		off += in.size()
	}
	lengths := make([]int, len(a.sections))
	for i, s := range a.sections {
		if err := define(s.name, off); err != nil {
			return nil, err
		}
		lengths[i] = s.size()
		off += lengths[i]
	}
	if err := define(CodeEnd, off); err != nil {
		return nil, err
	}
	if off >= maxCodeBytes {
		return nil, diag.Structure(0, "code is %d bytes, offsets only reach %d", off, maxCodeBytes-1)
	}

	resolve := func(name string) ([]byte, error) {
		at, ok := symbols[name]
		if !ok {
			return nil, diag.Panicf("asm: undefined symbol %s", name)
		}
		return []byte{byte(at >> 8), byte(at)}, nil
	}

	code := make([]byte, 0, off)
	for _, in := range a.code {
		switch {
		case in.mark != "":
		case in.ref != "":
			ref, err := resolve(in.ref)
			if err != nil {
				return nil, err
			}
			code = append(code, in.op)
			code = append(code, ref...)
		default:
			code = append(code, in.op)
			code = append(code, in.imm...)
		}
	}
	for _, s := range a.sections {
		for _, it := range s.items {
			if !it.Is(ir.OpSymbol) {
				code = append(code, it.Raw()...)
				continue
			}
			ref, err := resolve(it.Name())
			if err != nil {
				return nil, err
			}
			code = append(code, ref...)
		}
	}
	return &Assembly{Code: code, DataSectionLengths: lengths, Symbols: symbols}, nil
}
