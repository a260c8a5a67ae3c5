package ir

import "fmt"

// Op is an IR operator.
type Op uint8

const (
	opInvalid Op = iota

	// Arithmetic.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpSDiv
	OpMod
	OpSMod
	OpExp
	OpSignExtend

	// Bitwise.
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr
	OpSar

	// Comparison.
	OpLt
	OpGt
	OpSlt
	OpSgt
	OpEq
	OpIsZero

	// Clamps return their first argument after checking it against the
	// second; a failed check reverts.
	OpClampGE
	OpClampLE
	OpUClampGE
	OpUClampLE

	// Memory and environment.
	OpMLoad
	OpMStore
	OpCalldataLoad
	OpCalldataSize
	OpCalldataCopy
	OpCallValue
	OpCodeCopy
	OpMSize

	// Control.
	OpSeq
	OpIf
	OpWith
	OpVar
	OpAssert
	OpRevert
	OpReturn
	OpStop
	OpPass
	OpGoto
	OpLabel
	OpDJump
	OpSymbol
	OpData
	OpBytes
	OpMark

	opCount
)

const variadic = -1

type opInfo struct {
	name string

	// args is the fixed child count, or variadic.
	args int

	// valued reports whether the op leaves a word on the stack. Ops whose
	// valency depends on their children (seq, if, with) are false here and
	// resolved by Node.Valued.
	valued bool

	// named ops carry a name (binding, label or section).
	named bool

	// code is the machine opcode for ops that map one-to-one.
	code   byte
	direct bool
}

var opTable = [opCount]opInfo{
	OpAdd:        {name: "add", args: 2, valued: true, code: 0x01, direct: true},
	OpSub:        {name: "sub", args: 2, valued: true, code: 0x03, direct: true},
	OpMul:        {name: "mul", args: 2, valued: true, code: 0x02, direct: true},
	OpDiv:        {name: "div", args: 2, valued: true, code: 0x04, direct: true},
	OpSDiv:       {name: "sdiv", args: 2, valued: true, code: 0x05, direct: true},
	OpMod:        {name: "mod", args: 2, valued: true, code: 0x06, direct: true},
	OpSMod:       {name: "smod", args: 2, valued: true, code: 0x07, direct: true},
	OpExp:        {name: "exp", args: 2, valued: true, code: 0x0a, direct: true},
	OpSignExtend: {name: "signextend", args: 2, valued: true, code: 0x0b, direct: true},

	OpAnd: {name: "and", args: 2, valued: true, code: 0x16, direct: true},
	OpOr:  {name: "or", args: 2, valued: true, code: 0x17, direct: true},
	OpXor: {name: "xor", args: 2, valued: true, code: 0x18, direct: true},
	OpNot: {name: "not", args: 1, valued: true, code: 0x19, direct: true},
	OpShl: {name: "shl", args: 2, valued: true, code: 0x1b, direct: true},
	OpShr: {name: "shr", args: 2, valued: true, code: 0x1c, direct: true},
	OpSar: {name: "sar", args: 2, valued: true, code: 0x1d, direct: true},

	OpLt:     {name: "lt", args: 2, valued: true, code: 0x10, direct: true},
	OpGt:     {name: "gt", args: 2, valued: true, code: 0x11, direct: true},
	OpSlt:    {name: "slt", args: 2, valued: true, code: 0x12, direct: true},
	OpSgt:    {name: "sgt", args: 2, valued: true, code: 0x13, direct: true},
	OpEq:     {name: "eq", args: 2, valued: true, code: 0x14, direct: true},
	OpIsZero: {name: "iszero", args: 1, valued: true, code: 0x15, direct: true},

	OpClampGE:  {name: "clampge", args: 2, valued: true},
	OpClampLE:  {name: "clample", args: 2, valued: true},
	OpUClampGE: {name: "uclampge", args: 2, valued: true},
	OpUClampLE: {name: "uclample", args: 2, valued: true},

	OpMLoad:        {name: "mload", args: 1, valued: true, code: 0x51, direct: true},
	OpMStore:       {name: "mstore", args: 2, code: 0x52, direct: true},
	OpCalldataLoad: {name: "calldataload", args: 1, valued: true, code: 0x35, direct: true},
	OpCalldataSize: {name: "calldatasize", args: 0, valued: true, code: 0x36, direct: true},
	OpCalldataCopy: {name: "calldatacopy", args: 3, code: 0x37, direct: true},
	OpCallValue:    {name: "callvalue", args: 0, valued: true, code: 0x34, direct: true},
	OpCodeCopy:     {name: "codecopy", args: 3, code: 0x39, direct: true},
	OpMSize:        {name: "msize", args: 0, valued: true, code: 0x59, direct: true},

	OpSeq:    {name: "seq", args: variadic},
	OpIf:     {name: "if", args: variadic},
	OpWith:   {name: "with", args: 2, named: true},
	OpVar:    {name: "var", args: 0, valued: true, named: true},
	OpAssert: {name: "assert", args: 1},
	OpRevert: {name: "revert", args: 2, code: 0xfd, direct: true},
	OpReturn: {name: "return", args: 2, code: 0xf3, direct: true},
	OpStop:   {name: "stop", args: 0, code: 0x00, direct: true},
	OpPass:   {name: "pass", args: 0},
	OpGoto:   {name: "goto", args: 0, named: true},
	OpLabel:  {name: "label", args: 1, named: true},
	OpDJump:  {name: "djump", args: 1},
	OpSymbol: {name: "symbol", args: 0, valued: true, named: true},
	OpData:   {name: "data", args: variadic, named: true},
	OpBytes:  {name: "bytes", args: 0},
	OpMark:   {name: "mark", args: 0, named: true},
}

func (o Op) info() opInfo {
	if o == opInvalid || o >= opCount {
		panic(fmt.Sprintf("ir: invalid op %d", uint8(o)))
	}
	return opTable[o]
}

// String returns the op mnemonic.
func (o Op) String() string {
	if o == opInvalid || o >= opCount {
		return fmt.Sprintf("op(%d)", uint8(o))
	}
	return opTable[o].name
}

// Opcode returns the machine opcode for ops that map one-to-one onto an
// instruction.
func (o Op) Opcode() (byte, bool) {
	i := o.info()
	return i.code, i.direct
}

// Named reports whether nodes of this op carry a name.
func (o Op) Named() bool { return o.info().named }

// LookupOp resolves a mnemonic.
func LookupOp(name string) (Op, bool) {
	for o := OpAdd; o < opCount; o++ {
		if opTable[o].name == name {
			return o, true
		}
	}
	return opInvalid, false
}
