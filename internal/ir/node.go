package ir

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/roach88/kiln/internal/types"
)

// Kind discriminates the node union.
type Kind uint8

const (
	KindConst Kind = iota + 1
	KindOp
	KindLoc
)

// Location is the address space a location node points into.
type Location uint8

const (
	Memory Location = iota + 1
	Calldata
	Code
)

func (l Location) String() string {
	switch l {
	case Memory:
		return "memory"
	case Calldata:
		return "calldata"
	case Code:
		return "code"
	}
	return fmt.Sprintf("location(%d)", uint8(l))
}

// ScratchSpace is the memory offset used for loads out of code.
const ScratchSpace = 0

// Node is an immutable IR tree node.
type Node struct {
	kind Kind

	value *big.Int

	op   Op
	name string
	raw  []byte
	args []*Node

	loc Location

	typ        types.Descriptor
	annotation string
}

func (n *Node) Kind() Kind             { return n.kind }
func (n *Node) Op() Op                 { return n.op }
func (n *Node) Name() string           { return n.name }
func (n *Node) Location() Location     { return n.loc }
func (n *Node) Type() types.Descriptor { return n.typ }
func (n *Node) Annotation() string     { return n.annotation }
func (n *Node) Args() []*Node          { return slices.Clone(n.args) }
func (n *Node) NumArgs() int           { return len(n.args) }
func (n *Node) Arg(i int) *Node        { return n.args[i] }
func (n *Node) IsConst() bool          { return n.kind == KindConst }
func (n *Node) Is(op Op) bool          { return n.kind == KindOp && n.op == op }

// Value returns a copy of a constant's value, or nil.
func (n *Node) Value() *big.Int {
	if n.value == nil {
		return nil
	}
	return new(big.Int).Set(n.value)
}

// Raw returns a copy of a bytes node's payload.
func (n *Node) Raw() []byte { return slices.Clone(n.raw) }

// Pointer returns the address child of a location node.
func (n *Node) Pointer() *Node {
	if n.kind != KindLoc {
		panic("ir: Pointer on non-location node")
	}
	return n.args[0]
}

// Valued reports whether evaluating n leaves a word on the stack.
func (n *Node) Valued() bool {
	switch n.kind {
	case KindConst, KindLoc:
		return true
	}
	switch n.op {
	case OpSeq:
		return len(n.args) > 0 && n.args[len(n.args)-1].Valued()
	case OpIf:
		return len(n.args) == 3 && n.args[1].Valued()
	case OpWith:
		return n.args[1].Valued()
	}
	return n.op.info().valued
}

// WithType returns a copy of n carrying typ.
func (n *Node) WithType(typ types.Descriptor) *Node {
	c := *n
	c.typ = typ
	return &c
}

// WithAnnotation returns a copy of n carrying a diagnostic annotation.
func (n *Node) WithAnnotation(s string) *Node {
	c := *n
	c.annotation = s
	return &c
}

// Const returns a constant node. v is copied.
func Const(v *big.Int) *Node {
	return &Node{kind: KindConst, value: new(big.Int).Set(v)}
}

// Int64 returns a constant node.
func Int64(v int64) *Node {
	return &Node{kind: KindConst, value: big.NewInt(v)}
}

// New returns an operator node. It panics when the child count does not
// match the op; that is always a bug in the caller.
func New(op Op, args ...*Node) *Node {
	info := op.info()
	if info.named {
		panic(fmt.Sprintf("ir: %s needs a name", info.name))
	}
	if info.args != variadic && len(args) != info.args {
		panic(fmt.Sprintf("ir: %s takes %d args, got %d", info.name, info.args, len(args)))
	}
	for i, a := range args {
		if a == nil {
			panic(fmt.Sprintf("ir: %s arg %d is nil", info.name, i))
		}
	}
	return &Node{kind: KindOp, op: op, args: slices.Clone(args)}
}

func named(op Op, name string, args ...*Node) *Node {
	if name == "" {
		panic(fmt.Sprintf("ir: %s with empty name", op))
	}
	return &Node{kind: KindOp, op: op, name: name, args: slices.Clone(args)}
}

// Seq evaluates nodes in order. Its value, if any, is the last node's.
func Seq(nodes ...*Node) *Node { return New(OpSeq, nodes...) }

// If evaluates then when cond is nonzero, otherwise els (which may be nil).
func If(cond, then, els *Node) *Node {
	if els == nil {
		return New(OpIf, cond, then)
	}
	return New(OpIf, cond, then, els)
}

// With binds name to val while evaluating body.
func With(name string, val, body *Node) *Node {
	return named(OpWith, name, val, body).WithType(body.typ)
}

// Var references a with-bound name.
func Var(name string) *Node { return named(OpVar, name) }

// Assert reverts when cond is zero.
func Assert(cond *Node) *Node { return New(OpAssert, cond) }

// Label defines a jump target whose code is body.
func Label(name string, body *Node) *Node { return named(OpLabel, name, body) }

// Goto jumps to a label.
func Goto(name string) *Node { return named(OpGoto, name) }

// Symbol pushes the code offset of a label, data section or mark.
func Symbol(name string) *Node { return named(OpSymbol, name) }

// Mark records the current code offset under name without emitting bytes.
func Mark(name string) *Node { return named(OpMark, name) }

// Bytes is a raw data item.
func Bytes(raw []byte) *Node {
	return &Node{kind: KindOp, op: OpBytes, raw: slices.Clone(raw)}
}

// Data is a named data section appended after code. Items are Bytes or
// Symbol nodes; symbols encode as 2-byte offsets.
func Data(name string, items ...*Node) *Node {
	for _, it := range items {
		if !it.Is(OpBytes) && !it.Is(OpSymbol) {
			panic(fmt.Sprintf("ir: data item %s is not bytes or symbol", it.op))
		}
	}
	return named(OpData, name, items...)
}

// Loc returns a location node. Base-typed locations are read with Load.
func Loc(loc Location, ptr *Node, typ types.Descriptor) *Node {
	return &Node{kind: KindLoc, loc: loc, args: []*Node{ptr}, typ: typ}
}

// Shl, Shr and Sar take the shift amount first, like the machine ops.
func Shl(bits, x *Node) *Node { return New(OpShl, bits, x) }
func Shr(bits, x *Node) *Node { return New(OpShr, bits, x) }
func Sar(bits, x *Node) *Node { return New(OpSar, bits, x) }

// LoadWord reads one word at ptr in loc.
func LoadWord(loc Location, ptr *Node) *Node {
	switch loc {
	case Memory:
		return New(OpMLoad, ptr)
	case Calldata:
		return New(OpCalldataLoad, ptr)
	case Code:
		return Seq(New(OpCodeCopy, Int64(ScratchSpace), ptr, Int64(types.WordBytes)), New(OpMLoad, Int64(ScratchSpace)))
	}
	panic(fmt.Sprintf("ir: load from %v", loc))
}

// Load unwraps a base-typed location into a read of its word. Any other
// node is returned unchanged.
func Load(n *Node) *Node {
	if n.kind != KindLoc || !n.typ.IsBaseType() {
		return n
	}
	return LoadWord(n.loc, n.args[0]).WithType(n.typ)
}

// BytesLength reads the length word of a byte array location.
func BytesLength(n *Node) *Node {
	if n.kind != KindLoc {
		panic("ir: BytesLength on non-location node")
	}
	return LoadWord(n.loc, n.args[0]).WithType(types.Uint256)
}

// BytesDataPtr returns a location for the first data word of a byte array.
func BytesDataPtr(n *Node) *Node {
	if n.kind != KindLoc {
		panic("ir: BytesDataPtr on non-location node")
	}
	ptr := New(OpAdd, n.args[0], Int64(types.WordBytes))
	return Loc(n.loc, ptr, types.FixedBytes(types.WordBytes))
}

// IsSimple reports whether n is cheap and side-effect free to duplicate.
func IsSimple(n *Node) bool {
	switch n.kind {
	case KindConst:
		return true
	case KindLoc:
		return IsSimple(n.args[0])
	}
	return n.op == OpVar || n.op == OpSymbol
}

var (
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Word reduces v to its 256-bit two's-complement encoding in [0, 2^256).
func Word(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, two256)
}
