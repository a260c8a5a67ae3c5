package dispatch

import (
	"fmt"

	"github.com/roach88/kiln/internal/ir"
	"github.com/roach88/kiln/internal/types"
)

const (
	// MethodIDVar holds the incoming method id inside selector code.
	MethodIDVar = "calldata_method_id"

	// FallbackLabel is jumped to when no function matches. The caller
	// defines it.
	FallbackLabel = "fallback"

	// HeadersSection is the data section holding the bucket table.
	HeadersSection = "BUCKET_HEADERS"

	headerVar = "bucket_header"
	entryVar  = "bucket_entry"
	metaVar   = "entry_meta"
)

func bucketLabel(i int) string { return fmt.Sprintf("bucket_%d", i) }

// SelectorIR returns the runtime code that reads the method id and jumps
// to the matching function label, or to FallbackLabel.
func (l *Layout) SelectorIR() *ir.Node {
	switch {
	case l.kind == KindDense:
		return l.denseIR()
	case l.kind == KindSparse && len(l.buckets) > 1:
		return l.sparseIR()
	}
	return withMethodID(ir.Seq(append(matches(l.entries), ir.Goto(FallbackLabel))...))
}

func withMethodID(body *ir.Node) *ir.Node {
	id := ir.Shr(ir.Int64(256-8*idBytes), ir.New(ir.OpCalldataLoad, ir.Int64(0)))
	return ir.With(MethodIDVar, id, body)
}

// shortCalldata sends calls too short to carry a method id to the
// fallback.
func shortCalldata() *ir.Node {
	short := ir.New(ir.OpLt, ir.New(ir.OpCalldataSize), ir.Int64(idBytes))
	return ir.If(short, ir.Goto(FallbackLabel), nil)
}

// entryChecks rejects value sent to a nonpayable function and calldata
// shorter than the function's arguments.
func entryChecks(e entry) []*ir.Node {
	var out []*ir.Node
	if !e.Payable {
		out = append(out, ir.Assert(ir.New(ir.OpIsZero, ir.New(ir.OpCallValue))))
	}
	short := ir.New(ir.OpLt, ir.New(ir.OpCalldataSize), ir.Int64(int64(e.MinCalldataSize)))
	return append(out, ir.Assert(ir.New(ir.OpIsZero, short)))
}

func matches(es []entry) []*ir.Node {
	out := make([]*ir.Node, 0, len(es)+1)
	out = append(out, shortCalldata())
	for _, e := range es {
		hit := ir.New(ir.OpEq, ir.Var(MethodIDVar), ir.Int64(int64(e.id)))
		out = append(out, ir.If(hit, ir.Seq(append(entryChecks(e), ir.Goto(e.Label))...), nil))
	}
	return out
}

// readCode reads n bytes of code at ptr into the low bytes of a word.
func readCode(ptr *ir.Node, n int) *ir.Node {
	word := ir.LoadWord(ir.Code, ptr)
	return ir.Shr(ir.Int64(int64(types.WordBytes-n)*8), word)
}

func (l *Layout) bucketIndex() *ir.Node {
	return ir.New(ir.OpMod, ir.Var(MethodIDVar), ir.Int64(int64(len(l.buckets))))
}

func (l *Layout) sparseIR() *ir.Node {
	at := ir.New(ir.OpAdd, ir.Symbol(HeadersSection), ir.New(ir.OpMul, l.bucketIndex(), ir.Int64(sparseHeaderBytes)))
	nodes := []*ir.Node{
		withMethodID(ir.Seq(shortCalldata(), ir.New(ir.OpDJump, readCode(at, sparseHeaderBytes)))),
	}

	table := make([]*ir.Node, len(l.buckets))
	for i, b := range l.buckets {
		if len(b.entries) == 0 {
			table[i] = ir.Symbol(FallbackLabel)
			continue
		}
		table[i] = ir.Symbol(bucketLabel(i))
		// Labels start with an empty environment, so each bucket reads
		// the id again.
		body := append(matches(b.entries)[1:], ir.Goto(FallbackLabel))
		nodes = append(nodes, ir.Label(bucketLabel(i), withMethodID(ir.Seq(body...))))
	}
	nodes = append(nodes, ir.Data(HeadersSection, table...))
	return ir.Seq(nodes...)
}

func (l *Layout) denseIR() *ir.Node {
	hdr := ir.Var(headerVar)
	size := ir.New(ir.OpAnd, hdr, ir.Int64(0xff))
	magic := ir.Shr(ir.Int64(24), hdr)
	location := ir.New(ir.OpAnd, ir.Shr(ir.Int64(8), hdr), ir.Int64(0xffff))

	k := l.entryBytes()
	idx := ir.New(ir.OpMod, ir.Shr(ir.Int64(denseMagicShift), ir.New(ir.OpMul, ir.Var(MethodIDVar), magic)), size)
	entryAt := ir.New(ir.OpAdd, location, ir.New(ir.OpMul, idx, ir.Int64(int64(k))))

	ent := ir.Var(entryVar)
	metaBits := int64(8 * l.metaBytes)
	storedID := ir.Shr(ir.Int64(metaBits+8*labelBytes), ent)
	target := ir.New(ir.OpAnd, ir.Shr(ir.Int64(metaBits), ent), ir.Int64(0xffff))
	meta := ir.Var(metaVar)
	checks := ir.Seq(
		ir.If(ir.New(ir.OpAnd, meta, ir.Int64(1)), ir.Assert(ir.New(ir.OpIsZero, ir.New(ir.OpCallValue))), nil),
		ir.Assert(ir.New(ir.OpIsZero, ir.New(ir.OpLt, ir.New(ir.OpCalldataSize), ir.Shr(ir.Int64(1), meta)))),
	)

	lookup := ir.Seq(
		ir.If(ir.New(ir.OpIsZero, ir.New(ir.OpEq, storedID, ir.Var(MethodIDVar))), ir.Goto(FallbackLabel), nil),
		ir.With(metaVar, ir.New(ir.OpAnd, ent, ir.Int64(int64(1)<<metaBits-1)), checks),
		ir.New(ir.OpDJump, target),
	)
	headerAt := ir.New(ir.OpAdd, ir.Symbol(HeadersSection), ir.New(ir.OpMul, l.bucketIndex(), ir.Int64(denseHeaderBytes)))
	body := ir.Seq(
		shortCalldata(),
		ir.With(headerVar, readCode(headerAt, denseHeaderBytes), ir.Seq(
			ir.If(ir.New(ir.OpIsZero, size), ir.Goto(FallbackLabel), nil),
			ir.With(entryVar, readCode(entryAt, k), lookup),
		)),
	)

	var sections []*ir.Node
	headers := make([]*ir.Node, 0, 3*len(l.buckets))
	for i, b := range l.buckets {
		if len(b.entries) == 0 {
			headers = append(headers, ir.Bytes(make([]byte, denseHeaderBytes)))
			continue
		}
		headers = append(headers,
			ir.Bytes(bigEndian(uint64(b.magic), 2)),
			ir.Symbol(bucketLabel(i)),
			ir.Bytes([]byte{byte(len(b.entries))}),
		)
		items := make([]*ir.Node, 0, 3*len(b.entries))
		for _, e := range b.entries {
			items = append(items,
				ir.Bytes(bigEndian(uint64(e.id), idBytes)),
				ir.Symbol(e.Label),
				ir.Bytes(bigEndian(e.meta(), l.metaBytes)),
			)
		}
		sections = append(sections, ir.Data(bucketLabel(i), items...))
	}
	nodes := []*ir.Node{withMethodID(body), ir.Data(HeadersSection, headers...)}
	return ir.Seq(append(nodes, sections...)...)
}
