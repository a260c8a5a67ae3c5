package ir

import (
	"fmt"

	"github.com/roach88/kiln/internal/diag"
)

// Bindings hands out binding names for one compilation and enforces that
// scoped bindings close in reverse order of opening.
//
// A Bindings value is not safe for concurrent use. Each compilation creates
// its own.
type Bindings struct {
	next int
	open []*Binding
}

// NewBindings returns an empty binding allocator.
func NewBindings() *Bindings {
	return &Bindings{}
}

// Binding is an open scoped binding. Ref stands in for the bound value
// until Close wraps the body that uses it.
type Binding struct {
	owner *Bindings
	name  string
	value *Node
	ref   *Node
	done  bool
}

// Name is the binding's unique name.
func (b *Binding) Name() string { return b.name }

// Ref returns the reference to use in place of the bound value.
func (b *Binding) Ref() *Node { return b.ref }

// Open binds n under a fresh name derived from hint. A location node binds
// its pointer and the reference keeps the location and type.
func (bs *Bindings) Open(n *Node, hint string) *Binding {
	name := fmt.Sprintf("%s_%d", hint, bs.next)
	bs.next++

	b := &Binding{owner: bs, name: name, value: n}
	if n.kind == KindLoc {
		b.value = n.args[0]
		b.ref = Loc(n.loc, Var(name), n.typ)
	} else {
		b.ref = Var(name).WithType(n.typ)
	}
	bs.open = append(bs.open, b)
	return b
}

// Close ends the binding and returns with(name, value, body). Closing any
// binding other than the most recently opened one is a compiler panic.
func (b *Binding) Close(body *Node) (*Node, error) {
	bs := b.owner
	if b.done {
		return nil, diag.Panicf("binding %s closed twice", b.name)
	}
	if len(bs.open) == 0 || bs.open[len(bs.open)-1] != b {
		return nil, diag.Panicf("binding %s closed out of order", b.name)
	}
	bs.open = bs.open[:len(bs.open)-1]
	b.done = true
	return With(b.name, b.value, body), nil
}

// Depth is the number of currently open bindings.
func (bs *Bindings) Depth() int { return len(bs.open) }

// Cache evaluates n once and passes a reference to fn. Simple nodes are
// passed through unchanged and no binding is introduced.
func (bs *Bindings) Cache(n *Node, hint string, fn func(ref *Node) (*Node, error)) (*Node, error) {
	if IsSimple(n) {
		return fn(n)
	}
	b := bs.Open(n, hint)
	body, err := fn(b.Ref())
	if err != nil {
		// Unwind so the stack stays consistent for the caller.
		if len(bs.open) > 0 && bs.open[len(bs.open)-1] == b {
			bs.open = bs.open[:len(bs.open)-1]
			b.done = true
		}
		return nil, err
	}
	return b.Close(body)
}

// CheckScopes verifies every var is enclosed by a with of the same name.
func CheckScopes(root *Node) error {
	return checkScopes(root, nil)
}

func checkScopes(n *Node, env []string) error {
	if n.kind == KindOp {
		switch n.op {
		case OpVar:
			for i := len(env) - 1; i >= 0; i-- {
				if env[i] == n.name {
					return nil
				}
			}
			return diag.Panicf("var %s used outside its binding", n.name)
		case OpWith:
			if err := checkScopes(n.args[0], env); err != nil {
				return err
			}
			return checkScopes(n.args[1], append(env[:len(env):len(env)], n.name))
		case OpLabel:
			// Labels are jump targets; bindings never cross them.
			return checkScopes(n.args[0], nil)
		}
	}
	for _, a := range n.args {
		if err := checkScopes(a, env); err != nil {
			return err
		}
	}
	return nil
}
