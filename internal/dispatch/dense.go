package dispatch

import (
	"encoding/binary"
	"slices"

	"github.com/roach88/kiln/internal/diag"
)

const (
	// denseHeaderBytes is magic(2) + bucket location(2) + bucket size(1).
	denseHeaderBytes = 5

	// denseMagicShift is how far the id*magic product is shifted before
	// the slot is taken modulo the bucket size.
	denseMagicShift = 24

	maxMagic = 1 << 16

	// denseStartSize is the expected bucket size the search starts from.
	denseStartSize = 5

	idBytes    = 4
	labelBytes = 2
)

// slot is the position of id within a bucket of size n under magic.
func slot(id uint32, magic uint16, n int) int {
	return int(((uint64(id) * uint64(magic)) >> denseMagicShift) % uint64(n))
}

// findMagic returns the smallest magic that sends every id to a distinct
// slot, or false.
func findMagic(ids []uint32) (uint16, bool) {
	n := len(ids)
	used := make([]bool, n)
search:
	for m := 0; m < maxMagic; m++ {
		clear(used)
		for _, id := range ids {
			s := slot(id, uint16(m), n)
			if used[s] {
				continue search
			}
			used[s] = true
		}
		return uint16(m), true
	}
	return 0, false
}

// tryDense splits es into n buckets by id mod n and finds a magic for
// each. It fails if any bucket has no magic.
func tryDense(es []entry, n int) ([]*bucket, bool) {
	buckets := make([]*bucket, n)
	for i := range buckets {
		buckets[i] = &bucket{index: i}
	}
	for _, e := range es {
		b := buckets[e.id%uint32(n)]
		b.entries = append(b.entries, e)
	}
	for _, b := range buckets {
		if len(b.entries) == 0 {
			continue
		}
		ids := make([]uint32, len(b.entries))
		for i, e := range b.entries {
			ids[i] = e.id
		}
		magic, ok := findMagic(ids)
		if !ok {
			return nil, false
		}
		b.magic = magic
		size := len(b.entries)
		slices.SortFunc(b.entries, func(x, y entry) int {
			return slot(x.id, magic, size) - slot(y.id, magic, size)
		})
	}
	return buckets, true
}

// dense finds the fewest buckets for which every bucket has a magic. The
// search starts from an estimate, shrinks while it still succeeds, and
// retries from one bucket per selector if the estimate fails.
func dense(es []entry) (*Layout, error) {
	n := len(es)
	var best []*bucket
	exhaustive := false
	for nb := n/denseStartSize + 1; nb > 0; {
		buckets, ok := tryDense(es, nb)
		if ok {
			best = buckets
			nb--
			continue
		}
		if best != nil {
			break
		}
		if exhaustive {
			return nil, diag.Panicf("dispatch: no dense layout for %d selectors", n)
		}
		nb, exhaustive = n, true
	}
	if best == nil {
		return nil, diag.Panicf("dispatch: no dense layout for %d selectors", n)
	}

	var maxMeta uint64
	for _, e := range es {
		maxMeta = max(maxMeta, e.meta())
	}
	return &Layout{kind: KindDense, entries: es, buckets: best, metaBytes: byteLen(maxMeta)}, nil
}

// byteLen is the number of bytes needed for v, at least one.
func byteLen(v uint64) int {
	n := 1
	for v >>= 8; v > 0; v >>= 8 {
		n++
	}
	return n
}

func (l *Layout) entryBytes() int { return idBytes + labelBytes + l.metaBytes }

// bigEndian returns the low n bytes of v, most significant first.
func bigEndian(v uint64, n int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[8-n:]
}
