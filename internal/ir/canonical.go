package ir

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders n as canonical JSON (RFC 8785 rules, integers
// only). This is the ONLY serialization used for integrity hashing.
//
// Shape:
//   - constant: bare decimal integer
//   - operator: [mnemonic, name?, hex payload?, children...]
//   - location: ["loc", space, type, pointer]
//
// Annotations and non-location types are not encoded.
func MarshalCanonical(n *Node) ([]byte, error) {
	v, err := canonicalize(n)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalize(n *Node) (canonValue, error) {
	if n == nil {
		return nil, fmt.Errorf("nil node")
	}
	switch n.kind {
	case KindConst:
		return canonInt(n.value.String()), nil
	case KindLoc:
		ptr, err := canonicalize(n.args[0])
		if err != nil {
			return nil, fmt.Errorf("loc: %w", err)
		}
		return canonArray{canonString("loc"), canonString(n.loc.String()), canonString(n.typ.String()), ptr}, nil
	case KindOp:
		arr := canonArray{canonString(n.op.String())}
		if n.op.Named() {
			arr = append(arr, canonString(n.name))
		}
		if n.op == OpBytes {
			arr = append(arr, canonString(hex.EncodeToString(n.raw)))
		}
		for i, a := range n.args {
			c, err := canonicalize(a)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", n.op, i, err)
			}
			arr = append(arr, c)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unknown node kind %d", n.kind)
}

func writeCanonical(buf *bytes.Buffer, v canonValue) error {
	switch val := v.(type) {
	case canonString:
		b, err := marshalCanonicalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case canonInt:
		buf.WriteString(string(val))
	case canonArray:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case canonObject:
		buf.WriteByte('{')
		for i, k := range val.sortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported canonical value %T", v)
	}
	return nil
}

// marshalCanonicalString produces a canonical JSON string:
//   - NFC normalized at the serialization boundary
//   - no HTML escaping
//   - U+2028 and U+2029 emitted literally
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

// unescapeLineSeparators turns the encoder's \u2028 and \u2029 escapes back
// into literal characters. An escape preceded by an odd run of backslashes
// is literal text and stays.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+6 <= len(data) &&
			string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}
