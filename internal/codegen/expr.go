package codegen

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/convert"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/numeric"
	"github.com/roach88/kiln/internal/sema"
	"github.com/roach88/kiln/internal/types"
)

// expr lowers an expression. Variables and byte arrays come back as
// locations; callers that need the word use ir.Load.
func (f *frame) expr(e ast.Expr) (*ir.Node, error) {
	switch e := e.(type) {
	case *ast.Literal:
		return f.literal(e)
	case *ast.Name:
		return f.name(e)
	case *ast.Convert:
		return convert.ConvertCall(f.b, e, f.expr)
	case *ast.BinOp:
		return f.binOp(e)
	case *ast.Compare:
		return f.compare(e)
	case *ast.TypeRef:
		return nil, diag.Structure(int(e.ID()), "type %s used as a value", e.Typ)
	case *ast.Tuple:
		return nil, diag.Structure(int(e.ID()), "tuple used as a value")
	}
	return nil, diag.Panicf("codegen: unhandled expression %T", e)
}

func (f *frame) name(e *ast.Name) (*ir.Node, error) {
	sym, ok := f.scope.Lookup(e.Ident)
	if !ok {
		return nil, diag.Structure(int(e.ID()), "%s is not declared", e.Ident)
	}
	if sym.Kind == sema.SymImmutable {
		if f.deploying {
			return nil, diag.Structure(int(e.ID()), "immutable %s cannot be read during deployment", e.Ident)
		}
		for _, im := range f.immutables {
			if im.Name == e.Ident {
				ptr := ir.New(ir.OpAdd, ir.Symbol(CodeEnd), ir.Int64(int64(im.Offset)))
				return ir.Loc(ir.Code, ptr, im.Type), nil
			}
		}
		return nil, diag.Panicf("codegen: immutable %s has no offset", e.Ident)
	}
	slot, ok := f.slots.Get(e.Ident)
	if !ok {
		return nil, diag.Panicf("codegen: %s has no slot", e.Ident)
	}
	return ir.Loc(ir.Memory, ir.Int64(int64(slot)), sym.Type), nil
}

func (f *frame) literal(e *ast.Literal) (*ir.Node, error) {
	typ := e.Typ
	bad := func() error {
		return diag.TypeMismatch(int(e.ID()), "%s literal %q is not a valid %s", e.Kind, e.Value, typ)
	}

	var v *big.Int
	switch typ.Tag() {
	case types.TagInteger:
		switch e.Kind {
		case ast.LitInt:
			v, _ = new(big.Int).SetString(e.Value, 10)
		case ast.LitHex:
			raw, err := hexLiteral(e.Value)
			if err != nil {
				return nil, bad()
			}
			v = new(big.Int).SetBytes(raw)
		}

	case types.TagDecimal:
		if e.Kind != ast.LitDecimal && e.Kind != ast.LitInt {
			return nil, bad()
		}
		d, err := numeric.ParseDecimal(e.Value)
		if err != nil {
			return nil, bad()
		}
		if v, err = numeric.Scale(d); err != nil {
			return nil, diag.InvalidLiteral(int(e.ID()), "%v", err)
		}

	case types.TagAddress:
		raw, err := hexLiteral(e.Value)
		if e.Kind != ast.LitHex || err != nil || len(raw) != types.AddressBits/8 {
			return nil, bad()
		}
		v = new(big.Int).SetBytes(raw)

	case types.TagBool:
		if e.Kind == ast.LitBool && (e.Value == "true" || e.Value == "false") {
			v = big.NewInt(0)
			if e.Value == "true" {
				v.SetInt64(1)
			}
		}

	case types.TagFixedBytes:
		var raw []byte
		switch e.Kind {
		case ast.LitHex:
			var err error
			if raw, err = hexLiteral(e.Value); err != nil {
				return nil, bad()
			}
		case ast.LitBytes:
			raw = []byte(e.Value)
		}
		if len(raw) != typ.M() {
			return nil, bad()
		}
		return ir.Const(leftAlign(raw)).WithType(typ), nil

	case types.TagDynBytes, types.TagDynString:
		if e.Kind != ast.LitBytes && e.Kind != ast.LitStr {
			return nil, bad()
		}
		if len(e.Value) > typ.MaxLen() {
			return nil, diag.InvalidLiteral(int(e.ID()), "%d bytes do not fit %s", len(e.Value), typ)
		}
		return f.byteArrayLiteral([]byte(e.Value), typ), nil
	}

	if v == nil {
		return nil, bad()
	}
	if lo, hi, ok := typ.Bounds(); ok && (v.Cmp(lo) < 0 || v.Cmp(hi) > 0) {
		return nil, diag.InvalidLiteral(int(e.ID()), "Number out of range: %s", e.Value)
	}
	return ir.Const(v).WithType(typ), nil
}

// byteArrayLiteral writes raw into fresh memory and returns its location.
func (f *frame) byteArrayLiteral(raw []byte, typ types.Descriptor) *ir.Node {
	slot := f.alloc(typ)
	stores := []*ir.Node{ir.New(ir.OpMStore, ir.Int64(int64(slot)), ir.Int64(int64(len(raw))))}
	for i := 0; i < len(raw); i += types.WordBytes {
		chunk := raw[i:min(i+types.WordBytes, len(raw))]
		at := ir.Int64(int64(slot + types.WordBytes + i))
		stores = append(stores, ir.New(ir.OpMStore, at, ir.Const(leftAlign(chunk))))
	}
	stores = append(stores, ir.Int64(int64(slot)))
	return ir.Loc(ir.Memory, ir.Seq(stores...), typ)
}

func hexLiteral(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// leftAlign places raw in the high bytes of a word.
func leftAlign(raw []byte) *big.Int {
	var word [types.WordBytes]byte
	copy(word[:], raw)
	return new(big.Int).SetBytes(word[:])
}

func (f *frame) compare(e *ast.Compare) (*ir.Node, error) {
	l, r, typ, err := f.operands(e, e.Op, e.Left, e.Right)
	if err != nil {
		return nil, err
	}
	ordered := e.Op != "==" && e.Op != "!="
	if typ.IsByteArray() || (ordered && !typ.Numeric()) || (ordered && typ.Tag() == types.TagBool) {
		return nil, diag.TypeMismatch(int(e.ID()), "%s does not support %s", typ, e.Op)
	}

	less, greater := ir.OpLt, ir.OpGt
	if typ.Signed() {
		less, greater = ir.OpSlt, ir.OpSgt
	}
	var out *ir.Node
	switch e.Op {
	case "<":
		out = ir.New(less, l, r)
	case ">":
		out = ir.New(greater, l, r)
	case "<=":
		out = ir.New(ir.OpIsZero, ir.New(greater, l, r))
	case ">=":
		out = ir.New(ir.OpIsZero, ir.New(less, l, r))
	case "==":
		out = ir.New(ir.OpEq, l, r)
	case "!=":
		out = ir.New(ir.OpIsZero, ir.New(ir.OpEq, l, r))
	default:
		return nil, diag.Structure(int(e.ID()), "unknown comparison %q", e.Op)
	}
	return out.WithType(types.Bool()), nil
}

// operands lowers both sides of a binary expression and requires them to
// share a type.
func (f *frame) operands(e ast.Expr, op string, left, right ast.Expr) (l, r *ir.Node, typ types.Descriptor, err error) {
	if l, err = f.expr(left); err != nil {
		return nil, nil, typ, err
	}
	if r, err = f.expr(right); err != nil {
		return nil, nil, typ, err
	}
	typ = l.Type()
	if typ != r.Type() {
		return nil, nil, typ, diag.TypeMismatch(int(e.ID()), "operands of %s are %s and %s", op, typ, r.Type())
	}
	return ir.Load(l), ir.Load(r), typ, nil
}
