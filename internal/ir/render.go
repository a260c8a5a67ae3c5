package ir

import (
	"encoding/hex"
	"strings"
)

// String renders n on one line, e.g. [clampge, [var arg_0], -128].
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) head() string {
	switch n.kind {
	case KindLoc:
		return "loc " + n.loc.String() + " " + n.typ.String()
	case KindOp:
		switch {
		case n.op == OpBytes:
			return "bytes 0x" + hex.EncodeToString(n.raw)
		case n.op.Named():
			return n.op.String() + " " + n.name
		}
		return n.op.String()
	}
	return ""
}

func (n *Node) write(sb *strings.Builder) {
	if n.kind == KindConst {
		sb.WriteString(n.value.String())
		return
	}
	if n.kind == KindOp && len(n.args) == 0 && !n.op.Named() && n.op != OpBytes {
		sb.WriteString(n.op.String())
		return
	}
	sb.WriteByte('[')
	sb.WriteString(n.head())
	for _, a := range n.args {
		sb.WriteString(", ")
		a.write(sb)
	}
	sb.WriteByte(']')
}

// prettyWidth is the longest subtree printed on a single line.
const prettyWidth = 72

// Pretty renders n indented, one child per line once a subtree no longer
// fits on a line. Annotations are shown as trailing comments.
func Pretty(n *Node) string {
	var sb strings.Builder
	pretty(&sb, n, 0)
	return sb.String()
}

func pretty(sb *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	line := n.String()
	if len(indent)+len(line) <= prettyWidth || len(n.args) == 0 {
		sb.WriteString(indent)
		sb.WriteString(line)
		if n.annotation != "" {
			sb.WriteString("  # ")
			sb.WriteString(n.annotation)
		}
		return
	}
	sb.WriteString(indent)
	sb.WriteByte('[')
	sb.WriteString(n.head())
	if n.annotation != "" {
		sb.WriteString("  # ")
		sb.WriteString(n.annotation)
	}
	for _, a := range n.args {
		sb.WriteString(",\n")
		pretty(sb, a, depth+1)
	}
	sb.WriteByte(']')
}
