package ir

import (
	"slices"
	"unicode/utf16"
)

// canonValue is a sealed interface over the values the canonical encoder
// accepts. There are no floats and no null.
type canonValue interface {
	canonValue() // Sealed
}

type canonString string

func (canonString) canonValue() {}

// canonInt is a decimal integer literal. Keeping the digits as text lets
// 256-bit constants through without a float detour.
type canonInt string

func (canonInt) canonValue() {}

type canonArray []canonValue

func (canonArray) canonValue() {}

// canonObject must be iterated through sortedKeys.
type canonObject map[string]canonValue

func (canonObject) canonValue() {}

// sortedKeys returns keys in UTF-16 code unit order (RFC 8785).
// Go's string comparison is UTF-8 byte order, which differs.
func (obj canonObject) sortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
