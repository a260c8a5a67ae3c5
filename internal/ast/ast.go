// Package ast defines the typed program tree handed to code generation.
//
// The tree arrives already type-annotated: every expression carries its
// resolved descriptor. Trees are treated as immutable; transforms such as
// UnmangleTupleDeclarations build new nodes instead of rewriting old ones.
package ast

import (
	"strings"

	"github.com/roach88/kiln/internal/types"
)

// NodeID is a stable node identifier, unique within a module.
type NodeID int

// Node is any tree node.
type Node interface {
	ID() NodeID
	children() []Node
}

// Expr is a typed expression.
type Expr interface {
	Node
	Type() types.Descriptor
	expr()
}

// Stmt is a statement.
type Stmt interface {
	Node
	stmt()
}

// LitKind is the source form of a literal.
type LitKind int

const (
	LitInt LitKind = iota + 1
	LitDecimal
	LitHex
	LitBytes
	LitBool
	LitStr
)

func (k LitKind) String() string {
	switch k {
	case LitInt:
		return "int"
	case LitDecimal:
		return "decimal"
	case LitHex:
		return "hex"
	case LitBytes:
		return "bytes"
	case LitBool:
		return "bool"
	case LitStr:
		return "str"
	}
	return "literal"
}

// Literal is a compile-time constant.
//
// Value holds the source text: digits for int and decimal, "0x..." for hex,
// the raw bytes for bytes and str, "true" or "false" for bool.
type Literal struct {
	NodeID NodeID
	Kind   LitKind
	Value  string
	Typ    types.Descriptor
}

// Name references a declared variable, argument or immutable.
type Name struct {
	NodeID NodeID
	Ident  string
	Typ    types.Descriptor
}

// TypeRef is a type used in expression position, e.g. convert's target.
type TypeRef struct {
	NodeID NodeID
	Typ    types.Descriptor
}

// Convert is a call to the convert builtin. Args are the call arguments
// as written: the value and a TypeRef.
type Convert struct {
	NodeID NodeID
	Args   []Expr
	Typ    types.Descriptor
}

// BinOp is binary arithmetic: + - * / %.
type BinOp struct {
	NodeID      NodeID
	Op          string
	Left, Right Expr
	Typ         types.Descriptor
}

// Compare is a comparison: < <= > >= == !=. Its type is bool.
type Compare struct {
	NodeID      NodeID
	Op          string
	Left, Right Expr
}

// Tuple groups expressions. In a declaration it holds targets, type
// references or values.
type Tuple struct {
	NodeID NodeID
	Elems  []Expr
}

func (n *Literal) ID() NodeID { return n.NodeID }
func (n *Name) ID() NodeID    { return n.NodeID }
func (n *TypeRef) ID() NodeID { return n.NodeID }
func (n *Convert) ID() NodeID { return n.NodeID }
func (n *BinOp) ID() NodeID   { return n.NodeID }
func (n *Compare) ID() NodeID { return n.NodeID }
func (n *Tuple) ID() NodeID   { return n.NodeID }

func (n *Literal) Type() types.Descriptor { return n.Typ }
func (n *Name) Type() types.Descriptor    { return n.Typ }
func (n *TypeRef) Type() types.Descriptor { return n.Typ }
func (n *Convert) Type() types.Descriptor { return n.Typ }
func (n *BinOp) Type() types.Descriptor   { return n.Typ }
func (n *Compare) Type() types.Descriptor { return types.Bool() }

// Type of a tuple is invalid; tuples have no single word type.
func (n *Tuple) Type() types.Descriptor { return types.Descriptor{} }

func (*Literal) expr() {}
func (*Name) expr()    {}
func (*TypeRef) expr() {}
func (*Convert) expr() {}
func (*BinOp) expr()   {}
func (*Compare) expr() {}
func (*Tuple) expr()   {}

func (*Literal) children() []Node { return nil }
func (*Name) children() []Node    { return nil }
func (*TypeRef) children() []Node { return nil }
func (n *Convert) children() []Node {
	return exprNodes(n.Args)
}
func (n *BinOp) children() []Node   { return []Node{n.Left, n.Right} }
func (n *Compare) children() []Node { return []Node{n.Left, n.Right} }
func (n *Tuple) children() []Node   { return exprNodes(n.Elems) }

// Pass does nothing.
type Pass struct {
	NodeID NodeID
}

// Return ends the function, returning Value if set.
type Return struct {
	NodeID NodeID
	Value  Expr
}

// Assert reverts when Test is false.
type Assert struct {
	NodeID NodeID
	Test   Expr
}

// AnnAssign declares and initializes a variable.
//
// Target is a *Name, or a *Tuple of names after tuple unmangling.
// Annotation is a *TypeRef, or a *Tuple of TypeRefs for tuple declarations.
type AnnAssign struct {
	NodeID     NodeID
	Target     Expr
	Annotation Expr
	Value      Expr
}

func (n *Pass) ID() NodeID      { return n.NodeID }
func (n *Return) ID() NodeID    { return n.NodeID }
func (n *Assert) ID() NodeID    { return n.NodeID }
func (n *AnnAssign) ID() NodeID { return n.NodeID }

func (*Pass) stmt()      {}
func (*Return) stmt()    {}
func (*Assert) stmt()    {}
func (*AnnAssign) stmt() {}

func (*Pass) children() []Node { return nil }
func (n *Return) children() []Node {
	if n.Value == nil {
		return nil
	}
	return []Node{n.Value}
}
func (n *Assert) children() []Node { return []Node{n.Test} }
func (n *AnnAssign) children() []Node {
	out := []Node{n.Target, n.Annotation}
	if n.Value != nil {
		out = append(out, n.Value)
	}
	return out
}

// Arg is a function parameter.
type Arg struct {
	NodeID NodeID
	Name   string
	Typ    types.Descriptor
}

// FunctionDef is an externally callable function. Returns is invalid when
// the function returns nothing.
type FunctionDef struct {
	NodeID  NodeID
	Name    string
	Args    []*Arg
	Returns types.Descriptor
	Payable bool
	Body    []Stmt
}

// Signature is the canonical selector signature, e.g. "foo(uint256,bytes)".
func (f *FunctionDef) Signature() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.Typ.ABIName()
	}
	return f.Name + "(" + strings.Join(parts, ",") + ")"
}

// Immutable is a value fixed at deployment and stored after runtime code.
type Immutable struct {
	NodeID NodeID
	Name   string
	Typ    types.Descriptor
	Value  Expr
}

// Module is one contract.
type Module struct {
	NodeID     NodeID
	Name       string
	Immutables []*Immutable
	Functions  []*FunctionDef
}

func (n *Arg) ID() NodeID         { return n.NodeID }
func (n *FunctionDef) ID() NodeID { return n.NodeID }
func (n *Immutable) ID() NodeID   { return n.NodeID }
func (n *Module) ID() NodeID      { return n.NodeID }

func (*Arg) children() []Node { return nil }
func (n *FunctionDef) children() []Node {
	out := make([]Node, 0, len(n.Args)+len(n.Body))
	for _, a := range n.Args {
		out = append(out, a)
	}
	for _, s := range n.Body {
		out = append(out, s)
	}
	return out
}
func (n *Immutable) children() []Node { return []Node{n.Value} }
func (n *Module) children() []Node {
	out := make([]Node, 0, len(n.Immutables)+len(n.Functions))
	for _, im := range n.Immutables {
		out = append(out, im)
	}
	for _, f := range n.Functions {
		out = append(out, f)
	}
	return out
}

func exprNodes(es []Expr) []Node {
	out := make([]Node, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// Inspect walks the tree depth-first in source order, calling fn for each
// node. Children are skipped when fn returns false.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.children() {
		Inspect(c, fn)
	}
}

// MaxID returns the largest node id in the tree.
func MaxID(n Node) NodeID {
	var top NodeID
	Inspect(n, func(c Node) bool {
		if c.ID() > top {
			top = c.ID()
		}
		return true
	})
	return top
}
