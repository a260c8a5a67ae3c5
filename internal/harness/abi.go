package harness

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/kiln/internal/dispatch"
	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/numeric"
	"github.com/roach88/kiln/internal/types"
)

// encodeCall returns the calldata for a call to sig with args.
func encodeCall(sig string, ts []types.Descriptor, args []any) ([]byte, error) {
	body, err := encodeValues(ts, args)
	if err != nil {
		return nil, err
	}
	out := binary.BigEndian.AppendUint32(nil, dispatch.MethodID(sig))
	return append(out, body...), nil
}

// encodeValues ABI-encodes values: one head word per value, with byte
// arrays stored in the tail behind an offset.
func encodeValues(ts []types.Descriptor, values []any) ([]byte, error) {
	if len(values) != len(ts) {
		return nil, fmt.Errorf("got %d value(s), want %d", len(values), len(ts))
	}
	headSize := types.WordBytes * len(ts)
	var head, tail []byte
	for i, t := range ts {
		if t.IsByteArray() {
			data, err := byteArray(t, values[i])
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			head = append(head, word(big.NewInt(int64(headSize+len(tail))))...)
			tail = append(tail, word(big.NewInt(int64(len(data))))...)
			tail = append(tail, padRight(data, ceil32(len(data)))...)
			continue
		}
		w, err := encodeWord(t, values[i])
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		head = append(head, w...)
	}
	return append(head, tail...), nil
}

// encodeWord encodes a single-word value. Integers are not range checked.
func encodeWord(t types.Descriptor, v any) ([]byte, error) {
	switch t.Tag() {
	case types.TagInteger:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		return word(n), nil
	case types.TagDecimal:
		d, err := numeric.ParseDecimal(decimalText(v))
		if err != nil {
			return nil, err
		}
		n, err := numeric.Scale(d)
		if err != nil {
			return nil, err
		}
		return word(n), nil
	case types.TagBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%v is not a bool", v)
		}
		if b {
			return word(big.NewInt(1)), nil
		}
		return word(new(big.Int)), nil
	case types.TagAddress:
		data, err := hexValue(v, 20)
		if err != nil {
			return nil, err
		}
		return padLeft(data, types.WordBytes), nil
	case types.TagFixedBytes:
		data, err := hexValue(v, t.M())
		if err != nil {
			return nil, err
		}
		return padRight(data, types.WordBytes), nil
	}
	return nil, fmt.Errorf("cannot encode %s", t)
}

func byteArray(t types.Descriptor, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%v is not a string", v)
	}
	if t.Tag() == types.TagDynBytes && strings.HasPrefix(s, "0x") {
		return hex.DecodeString(s[2:])
	}
	return []byte(s), nil
}

func toBig(v any) (*big.Int, error) {
	switch x := v.(type) {
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(x), 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%v is not an integer", v)
}

func decimalText(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// hexValue decodes a 0x string of at most limit bytes.
func hexValue(v any, limit int) ([]byte, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("%v is not a 0x hex string", v)
	}
	data, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%s is longer than %d bytes", s, limit)
	}
	return data, nil
}

// display renders return data for the trace.
func display(t types.Descriptor, ret []byte) string {
	if !t.Valid() || len(ret) == 0 {
		return ""
	}
	if !t.IsBaseType() || len(ret) < types.WordBytes {
		return "0x" + hex.EncodeToString(ret)
	}
	w := ret[:types.WordBytes]
	n := new(big.Int).SetBytes(w)
	switch t.Tag() {
	case types.TagInteger:
		if t.Signed() {
			n = signed(n)
		}
		return n.String()
	case types.TagDecimal:
		d, _, err := apd.NewFromString(signed(n).String())
		if err != nil {
			return n.String()
		}
		d.Exponent -= types.DecimalPlaces
		reduced, _ := new(apd.Decimal).Reduce(d)
		return reduced.Text('f')
	case types.TagBool:
		return strconv.FormatBool(n.Sign() != 0)
	case types.TagAddress:
		return "0x" + hex.EncodeToString(w[types.WordBytes-20:])
	case types.TagFixedBytes:
		return "0x" + hex.EncodeToString(w[:t.M()])
	}
	return "0x" + hex.EncodeToString(ret)
}

var two255 = new(big.Int).Lsh(big.NewInt(1), 255)

// signed reads a word as two's complement.
func signed(n *big.Int) *big.Int {
	if n.Cmp(two255) < 0 {
		return n
	}
	return new(big.Int).Sub(n, new(big.Int).Lsh(two255, 1))
}

func word(n *big.Int) []byte {
	return ir.Word(n).FillBytes(make([]byte, types.WordBytes))
}

func padLeft(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

func padRight(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func ceil32(n int) int {
	return (n + 31) / 32 * 32
}
