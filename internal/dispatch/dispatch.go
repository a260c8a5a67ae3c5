// Package dispatch chooses how the runtime selector maps an incoming
// method id to a function body.
//
// Three layouts exist. Linear compares the id against every function in
// turn. Sparse hashes the id into buckets through a jump table and then
// compares linearly within a bucket. Dense uses a two-level perfect hash
// so that each lookup reads exactly one table entry. Layout choice depends
// only on the selector set and the policy, so it is reproducible.
package dispatch

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/roach88/kiln/internal/diag"
)

// DefaultDenseThreshold is the selector count above which the size
// objective switches to the dense layout.
const DefaultDenseThreshold = 4

// Objective is the optimization goal.
type Objective int

const (
	ObjectiveGas Objective = iota
	ObjectiveSize
	ObjectiveNone
)

func (o Objective) String() string {
	switch o {
	case ObjectiveGas:
		return "gas"
	case ObjectiveSize:
		return "size"
	case ObjectiveNone:
		return "none"
	}
	return fmt.Sprintf("objective(%d)", int(o))
}

// ParseObjective parses "gas", "size" or "none". Empty means gas.
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(s) {
	case "", "gas":
		return ObjectiveGas, nil
	case "size", "codesize":
		return ObjectiveSize, nil
	case "none":
		return ObjectiveNone, nil
	}
	return 0, fmt.Errorf("unknown optimization objective %q", s)
}

// Policy controls layout selection.
type Policy struct {
	Objective Objective

	// Debug forces the dense layout under the size objective, whatever
	// the selector count.
	Debug bool

	// DenseThreshold overrides DefaultDenseThreshold when positive.
	DenseThreshold int
}

// Entry is one externally callable function.
type Entry struct {
	Signature       string
	Label           string
	MinCalldataSize int
	Payable         bool
}

// MethodID returns the 4-byte selector of a function signature.
func MethodID(signature string) uint32 {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}

// Kind names a layout.
type Kind int

const (
	KindLinear Kind = iota
	KindSparse
	KindDense
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindSparse:
		return "sparse"
	case KindDense:
		return "dense"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type entry struct {
	Entry
	id uint32
}

// meta packs the checks done before entering a function:
// min calldata size << 1 | nonpayable.
func (e entry) meta() uint64 {
	m := uint64(e.MinCalldataSize) << 1
	if !e.Payable {
		m |= 1
	}
	return m
}

type bucket struct {
	index int
	magic uint16

	// entries are in slot order for dense layouts and declaration order
	// for sparse ones.
	entries []entry
}

// Layout is a chosen selector layout.
type Layout struct {
	kind      Kind
	entries   []entry
	buckets   []*bucket
	metaBytes int
}

// Kind reports the layout kind.
func (l *Layout) Kind() Kind { return l.kind }

// Buckets is the number of hash buckets; zero for linear layouts.
func (l *Layout) Buckets() int { return len(l.buckets) }

// Select picks the layout for entries under p. Entries whose method ids
// collide are rejected.
func Select(entries []Entry, p Policy) (*Layout, error) {
	es := make([]entry, len(entries))
	seen := make(map[uint32]string, len(entries))
	for i, e := range entries {
		id := MethodID(e.Signature)
		if prev, ok := seen[id]; ok {
			return nil, diag.Structure(0, "method id collision between %s and %s", prev, e.Signature)
		}
		seen[id] = e.Signature
		es[i] = entry{Entry: e, id: id}
	}

	threshold := p.DenseThreshold
	if threshold <= 0 {
		threshold = DefaultDenseThreshold
	}

	switch {
	case len(es) == 0 || p.Objective == ObjectiveNone:
		return &Layout{kind: KindLinear, entries: es}, nil
	case p.Objective == ObjectiveSize && (len(es) > threshold || p.Debug):
		return dense(es)
	}
	return sparse(es), nil
}

// SectionLengths returns the byte length of each data section the layout
// emits, in emission order.
func (l *Layout) SectionLengths() []int {
	switch l.kind {
	case KindSparse:
		if len(l.buckets) > 1 {
			return []int{sparseHeaderBytes * len(l.buckets)}
		}
	case KindDense:
		out := []int{denseHeaderBytes * len(l.buckets)}
		for _, b := range l.buckets {
			if len(b.entries) > 0 {
				out = append(out, len(b.entries)*l.entryBytes())
			}
		}
		return out
	}
	return []int{}
}

// Summary describes a layout for reports.
type Summary struct {
	Kind     string         `json:"kind"`
	Buckets  int            `json:"buckets"`
	Sections []int          `json:"data_section_lengths"`
	Entries  []EntrySummary `json:"entries"`
}

// EntrySummary is one function in a Summary.
type EntrySummary struct {
	Signature string `json:"signature"`
	MethodID  string `json:"method_id"`
	Bucket    int    `json:"bucket"`
}

// Summary returns a description of l with entries in declaration order.
func (l *Layout) Summary() Summary {
	s := Summary{Kind: l.kind.String(), Buckets: len(l.buckets), Sections: l.SectionLengths()}
	for _, e := range l.entries {
		b := -1
		if n := len(l.buckets); n > 0 {
			b = int(e.id % uint32(n))
		}
		s.Entries = append(s.Entries, EntrySummary{
			Signature: e.Signature,
			MethodID:  fmt.Sprintf("0x%08x", e.id),
			Bucket:    b,
		})
	}
	return s
}
