package testutil

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrReverted is returned by Run when the code executes REVERT.
var ErrReverted = errors.New("reverted")

// maxSteps bounds execution so a bad jump table loops into a failure
// instead of hanging the test.
const maxSteps = 1 << 20

// maxMemory bounds memory growth for the same reason.
const maxMemory = 1 << 20

// Call is one message call into Run.
type Call struct {
	Code      []byte
	Calldata  []byte
	CallValue uint64
}

// Result is the outcome of a call that did not revert.
type Result struct {
	Return []byte
	Steps  int
}

// Run interprets the subset of the machine instruction set that the
// assembler emits. It has no gas, storage or external calls; jumps are
// checked against the JUMPDEST map like the real machine does.
func Run(c Call) (*Result, error) {
	m := &machine{Call: c, dests: jumpDests(c.Code)}
	return m.run()
}

type machine struct {
	Call
	dests  []bool
	stack  []uint256.Int
	memory []byte
}

// jumpDests marks JUMPDEST bytes that are not push immediates.
func jumpDests(code []byte) []bool {
	out := make([]bool, len(code))
	for pc := 0; pc < len(code); pc++ {
		op := code[pc]
		switch {
		case op == 0x5b:
			out[pc] = true
		case op >= 0x60 && op <= 0x7f:
			pc += int(op-0x60) + 1
		}
	}
	return out
}

func (m *machine) pop() *uint256.Int {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack = m.stack[:n]
	return &v
}

func (m *machine) push(v *uint256.Int) { m.stack = append(m.stack, *v) }

func (m *machine) need(n int, op byte) error {
	if len(m.stack) < n {
		return fmt.Errorf("stack underflow at opcode 0x%02x", op)
	}
	return nil
}

// offset reads a memory or code offset, which must fit an int.
func offset(v *uint256.Int) (int, error) {
	if !v.IsUint64() || v.Uint64() > maxMemory {
		return 0, fmt.Errorf("offset %s out of range", v.Hex())
	}
	return int(v.Uint64()), nil
}

func (m *machine) grow(end int) {
	if end > len(m.memory) {
		size := (end + 31) / 32 * 32
		m.memory = append(m.memory, make([]byte, size-len(m.memory))...)
	}
}

// copyPadded copies src[from:from+n] to memory at dst, zero filling past
// the end of src.
func (m *machine) copyPadded(dst, from, n int, src []byte) {
	if n == 0 {
		return
	}
	m.grow(dst + n)
	for i := 0; i < n; i++ {
		var b byte
		if from+i < len(src) {
			b = src[from+i]
		}
		m.memory[dst+i] = b
	}
}

var binops = map[byte]func(z, x, y *uint256.Int){
	0x01: func(z, x, y *uint256.Int) { z.Add(x, y) },
	0x02: func(z, x, y *uint256.Int) { z.Mul(x, y) },
	0x03: func(z, x, y *uint256.Int) { z.Sub(x, y) },
	0x04: func(z, x, y *uint256.Int) { z.Div(x, y) },
	0x05: func(z, x, y *uint256.Int) { z.SDiv(x, y) },
	0x06: func(z, x, y *uint256.Int) { z.Mod(x, y) },
	0x07: func(z, x, y *uint256.Int) { z.SMod(x, y) },
	0x0a: func(z, x, y *uint256.Int) { z.Exp(x, y) },
	0x0b: func(z, x, y *uint256.Int) { z.ExtendSign(y, x) },
	0x10: func(z, x, y *uint256.Int) { setBool(z, x.Lt(y)) },
	0x11: func(z, x, y *uint256.Int) { setBool(z, x.Gt(y)) },
	0x12: func(z, x, y *uint256.Int) { setBool(z, x.Slt(y)) },
	0x13: func(z, x, y *uint256.Int) { setBool(z, x.Sgt(y)) },
	0x14: func(z, x, y *uint256.Int) { setBool(z, x.Eq(y)) },
	0x16: func(z, x, y *uint256.Int) { z.And(x, y) },
	0x17: func(z, x, y *uint256.Int) { z.Or(x, y) },
	0x18: func(z, x, y *uint256.Int) { z.Xor(x, y) },
	0x1b: func(z, x, y *uint256.Int) { shift(z, x, y, (*uint256.Int).Lsh, false) },
	0x1c: func(z, x, y *uint256.Int) { shift(z, x, y, (*uint256.Int).Rsh, false) },
	0x1d: func(z, x, y *uint256.Int) { shift(z, x, y, (*uint256.Int).SRsh, true) },
}

func setBool(z *uint256.Int, b bool) {
	if b {
		z.SetOne()
	} else {
		z.Clear()
	}
}

// shift applies a shift op; the shift amount x is the first operand.
func shift(z, x, y *uint256.Int, f func(z, x *uint256.Int, n uint) *uint256.Int, arithmetic bool) {
	if x.LtUint64(256) {
		f(z, y, uint(x.Uint64()))
		return
	}
	if arithmetic && y.Sign() < 0 {
		z.SetAllOne()
		return
	}
	z.Clear()
}

func (m *machine) run() (*Result, error) {
	code := m.Code
	for pc, steps := 0, 0; ; steps++ {
		if steps >= maxSteps {
			return nil, errors.New("step limit exceeded")
		}
		if pc >= len(code) {
			return &Result{Steps: steps}, nil
		}
		op := code[pc]

		if f, ok := binops[op]; ok {
			if err := m.need(2, op); err != nil {
				return nil, err
			}
			x, y := m.pop(), m.pop()
			var z uint256.Int
			f(&z, x, y)
			m.push(&z)
			pc++
			continue
		}

		switch {
		case op >= 0x60 && op <= 0x7f:
			n := int(op-0x60) + 1
			end := min(pc+1+n, len(code))
			var v uint256.Int
			imm := make([]byte, n)
			copy(imm, code[pc+1:end])
			v.SetBytes(imm)
			m.push(&v)
			pc += 1 + n
			continue
		case op >= 0x80 && op <= 0x8f:
			n := int(op-0x80) + 1
			if err := m.need(n, op); err != nil {
				return nil, err
			}
			m.push(&m.stack[len(m.stack)-n])
			pc++
			continue
		case op >= 0x90 && op <= 0x9f:
			n := int(op-0x90) + 1
			if err := m.need(n+1, op); err != nil {
				return nil, err
			}
			top := len(m.stack) - 1
			m.stack[top], m.stack[top-n] = m.stack[top-n], m.stack[top]
			pc++
			continue
		}

		switch op {
		case 0x00:
			return &Result{Steps: steps}, nil
		case 0x15, 0x19:
			if err := m.need(1, op); err != nil {
				return nil, err
			}
			x := m.pop()
			var z uint256.Int
			if op == 0x15 {
				setBool(&z, x.IsZero())
			} else {
				z.Not(x)
			}
			m.push(&z)
		case 0x34:
			m.push(uint256.NewInt(m.CallValue))
		case 0x35:
			if err := m.need(1, op); err != nil {
				return nil, err
			}
			var word [32]byte
			if off, err := offset(m.pop()); err == nil && off < len(m.Calldata) {
				copy(word[:], m.Calldata[off:])
			}
			var v uint256.Int
			v.SetBytes32(word[:])
			m.push(&v)
		case 0x36:
			m.push(uint256.NewInt(uint64(len(m.Calldata))))
		case 0x37, 0x39:
			if err := m.need(3, op); err != nil {
				return nil, err
			}
			dst, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			src := m.pop()
			n, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			from := len(m.Code) + len(m.Calldata) // past the end of either
			if src.IsUint64() && src.Uint64() <= maxMemory {
				from = int(src.Uint64())
			}
			data := m.Calldata
			if op == 0x39 {
				data = m.Code
			}
			m.copyPadded(dst, from, n, data)
		case 0x50:
			if err := m.need(1, op); err != nil {
				return nil, err
			}
			m.pop()
		case 0x51:
			if err := m.need(1, op); err != nil {
				return nil, err
			}
			off, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			m.grow(off + 32)
			var v uint256.Int
			v.SetBytes32(m.memory[off : off+32])
			m.push(&v)
		case 0x52:
			if err := m.need(2, op); err != nil {
				return nil, err
			}
			off, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			v := m.pop()
			m.grow(off + 32)
			word := v.Bytes32()
			copy(m.memory[off:], word[:])
		case 0x59:
			m.push(uint256.NewInt(uint64(len(m.memory))))
		case 0x56, 0x57:
			if err := m.need(int(op-0x55), op); err != nil {
				return nil, err
			}
			dest := m.pop()
			if op == 0x57 && m.pop().IsZero() {
				break
			}
			if !dest.IsUint64() || dest.Uint64() >= uint64(len(code)) || !m.dests[dest.Uint64()] {
				return nil, fmt.Errorf("bad jump destination %s at pc %d", dest.Hex(), pc)
			}
			pc = int(dest.Uint64())
			continue
		case 0x5b:
		case 0xf3, 0xfd:
			if err := m.need(2, op); err != nil {
				return nil, err
			}
			off, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			n, err := offset(m.pop())
			if err != nil {
				return nil, err
			}
			m.grow(off + n)
			out := append([]byte(nil), m.memory[off:off+n]...)
			if op == 0xfd {
				return &Result{Return: out, Steps: steps}, ErrReverted
			}
			return &Result{Return: out, Steps: steps}, nil
		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x at pc %d", op, pc)
		}
		pc++
	}
}

// Deploy runs initcode with no calldata and returns the code it deploys.
func Deploy(initcode []byte) ([]byte, error) {
	res, err := Run(Call{Code: initcode})
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	return res.Return, nil
}
