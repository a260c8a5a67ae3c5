package ir

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrRevert is returned when a clamp, assert or revert fires.
	ErrRevert = errors.New("execution reverted")

	// ErrReturn is returned when a return or stop node ends evaluation.
	// The returned bytes are in Machine.ReturnData.
	ErrReturn = errors.New("execution returned")
)

// maxMemory bounds evaluator memory so a bad pointer fails instead of
// allocating.
const maxMemory = 1 << 20

// Machine evaluates straight-line IR over 256-bit words. It checks that
// inserted runtime checks behave; it does not model jumps, gas or storage.
type Machine struct {
	Calldata  []byte
	Code      []byte
	CallValue uint64

	ReturnData []byte

	memory []byte
	env    []envEntry
}

type envEntry struct {
	name string
	val  *uint256.Int
}

// Memory returns a copy of size bytes of memory at off.
func (m *Machine) Memory(off, size int) []byte {
	out := make([]byte, size)
	if off < len(m.memory) {
		copy(out, m.memory[off:])
	}
	return out
}

// Eval evaluates n. Nodes without a value return nil.
func (m *Machine) Eval(n *Node) (*uint256.Int, error) {
	switch n.kind {
	case KindConst:
		v, overflow := uint256.FromBig(Word(n.value))
		if overflow {
			return nil, fmt.Errorf("eval: constant %s overflows", n.value)
		}
		return v, nil
	case KindLoc:
		return m.Eval(n.args[0])
	}

	switch n.op {
	case OpSeq:
		var last *uint256.Int
		for _, a := range n.args {
			v, err := m.Eval(a)
			if err != nil {
				return nil, err
			}
			last = v
		}
		if !n.Valued() {
			return nil, nil
		}
		return last, nil
	case OpIf:
		c, err := m.Eval(n.args[0])
		if err != nil {
			return nil, err
		}
		if !c.IsZero() {
			return m.Eval(n.args[1])
		}
		if len(n.args) == 3 {
			return m.Eval(n.args[2])
		}
		return nil, nil
	case OpWith:
		v, err := m.Eval(n.args[0])
		if err != nil {
			return nil, err
		}
		m.env = append(m.env, envEntry{name: n.name, val: v})
		defer func() { m.env = m.env[:len(m.env)-1] }()
		return m.Eval(n.args[1])
	case OpVar:
		for i := len(m.env) - 1; i >= 0; i-- {
			if m.env[i].name == n.name {
				return new(uint256.Int).Set(m.env[i].val), nil
			}
		}
		return nil, fmt.Errorf("eval: unbound var %s", n.name)
	case OpPass:
		return nil, nil
	case OpRevert:
		return nil, ErrRevert
	case OpStop:
		m.ReturnData = nil
		return nil, ErrReturn
	}

	args := make([]*uint256.Int, len(n.args))
	for i, a := range n.args {
		v, err := m.Eval(a)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("eval: %s arg %d has no value", n.op, i)
		}
		args[i] = v
	}
	return m.apply(n.op, args)
}

func (m *Machine) apply(op Op, a []*uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int)
	switch op {
	case OpAdd:
		return z.Add(a[0], a[1]), nil
	case OpSub:
		return z.Sub(a[0], a[1]), nil
	case OpMul:
		return z.Mul(a[0], a[1]), nil
	case OpDiv:
		return z.Div(a[0], a[1]), nil
	case OpSDiv:
		return z.SDiv(a[0], a[1]), nil
	case OpMod:
		return z.Mod(a[0], a[1]), nil
	case OpSMod:
		return z.SMod(a[0], a[1]), nil
	case OpExp:
		return z.Exp(a[0], a[1]), nil
	case OpSignExtend:
		return z.ExtendSign(a[1], a[0]), nil
	case OpAnd:
		return z.And(a[0], a[1]), nil
	case OpOr:
		return z.Or(a[0], a[1]), nil
	case OpXor:
		return z.Xor(a[0], a[1]), nil
	case OpNot:
		return z.Not(a[0]), nil
	case OpShl:
		if !a[0].LtUint64(256) {
			return z, nil
		}
		return z.Lsh(a[1], uint(a[0].Uint64())), nil
	case OpShr:
		if !a[0].LtUint64(256) {
			return z, nil
		}
		return z.Rsh(a[1], uint(a[0].Uint64())), nil
	case OpSar:
		if !a[0].LtUint64(256) {
			if a[1].Sign() < 0 {
				return z.SetAllOne(), nil
			}
			return z, nil
		}
		return z.SRsh(a[1], uint(a[0].Uint64())), nil
	case OpLt:
		return word(a[0].Lt(a[1])), nil
	case OpGt:
		return word(a[0].Gt(a[1])), nil
	case OpSlt:
		return word(a[0].Slt(a[1])), nil
	case OpSgt:
		return word(a[0].Sgt(a[1])), nil
	case OpEq:
		return word(a[0].Eq(a[1])), nil
	case OpIsZero:
		return word(a[0].IsZero()), nil
	case OpClampGE:
		return check(a[0], !a[0].Slt(a[1]))
	case OpClampLE:
		return check(a[0], !a[0].Sgt(a[1]))
	case OpUClampGE:
		return check(a[0], !a[0].Lt(a[1]))
	case OpUClampLE:
		return check(a[0], !a[0].Gt(a[1]))
	case OpAssert:
		if a[0].IsZero() {
			return nil, ErrRevert
		}
		return nil, nil
	case OpMLoad:
		off, err := offset(a[0], 32)
		if err != nil {
			return nil, err
		}
		return z.SetBytes(m.Memory(off, 32)), nil
	case OpMStore:
		off, err := offset(a[0], 32)
		if err != nil {
			return nil, err
		}
		b := a[1].Bytes32()
		m.write(off, b[:])
		return nil, nil
	case OpMSize:
		return z.SetUint64(uint64(len(m.memory))), nil
	case OpCalldataLoad:
		var buf [32]byte
		if a[0].IsUint64() && a[0].Uint64() < uint64(len(m.Calldata)) {
			copy(buf[:], m.Calldata[a[0].Uint64():])
		}
		return z.SetBytes(buf[:]), nil
	case OpCalldataSize:
		return z.SetUint64(uint64(len(m.Calldata))), nil
	case OpCallValue:
		return z.SetUint64(m.CallValue), nil
	case OpCalldataCopy:
		return nil, m.copyInto(a, m.Calldata)
	case OpCodeCopy:
		return nil, m.copyInto(a, m.Code)
	case OpReturn:
		off, err := offset(a[0], 0)
		if err != nil {
			return nil, err
		}
		size, err := offset(a[1], 0)
		if err != nil {
			return nil, err
		}
		m.ReturnData = m.Memory(off, size)
		return nil, ErrReturn
	}
	return nil, fmt.Errorf("eval: unsupported op %s", op)
}

func (m *Machine) copyInto(a []*uint256.Int, src []byte) error {
	size, err := offset(a[2], 0)
	if err != nil {
		return err
	}
	dst, err := offset(a[0], size)
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	if a[1].IsUint64() && a[1].Uint64() < uint64(len(src)) {
		copy(buf, src[a[1].Uint64():])
	}
	m.write(dst, buf)
	return nil
}

func (m *Machine) write(off int, b []byte) {
	if end := off + len(b); end > len(m.memory) {
		// Memory grows in whole words.
		grown := make([]byte, (end+31)/32*32)
		copy(grown, m.memory)
		m.memory = grown
	}
	copy(m.memory[off:], b)
}

func offset(v *uint256.Int, size int) (int, error) {
	if !v.LtUint64(maxMemory) || int(v.Uint64())+size > maxMemory {
		return 0, fmt.Errorf("eval: memory offset %s out of range", v.Hex())
	}
	return int(v.Uint64()), nil
}

func word(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}

func check(v *uint256.Int, ok bool) (*uint256.Int, error) {
	if !ok {
		return nil, ErrRevert
	}
	return v, nil
}
