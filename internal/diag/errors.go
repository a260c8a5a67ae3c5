// Package diag defines the compile-time error taxonomy shared by every
// lowering stage.
//
// Errors are never recovered inside the compiler. They propagate (wrapped
// with %w) to the caller of the compilation entry point, which aborts and
// produces no artifacts.
package diag

import (
	"errors"
	"fmt"
)

// Kind categorizes a compile error.
type Kind string

const (
	// KindTypeMismatch indicates the source type class is not accepted by
	// the destination, or operand types disagree in generic arithmetic.
	KindTypeMismatch Kind = "TYPE_MISMATCH"

	// KindInvalidType indicates a conversion between identical types.
	KindInvalidType Kind = "INVALID_TYPE"

	// KindInvalidLiteral indicates a constant that folds outside the
	// destination's bounds.
	KindInvalidLiteral Kind = "INVALID_LITERAL"

	// KindStructure indicates malformed use of a builtin or statement.
	KindStructure Kind = "STRUCTURE_EXCEPTION"

	// KindCompilerPanic indicates a violated internal invariant. It is
	// always a compiler bug, never a problem with the input program.
	KindCompilerPanic Kind = "COMPILER_PANIC"

	// KindDecimalOverride indicates an attempt to alter the decimal context.
	KindDecimalOverride Kind = "DECIMAL_OVERRIDE"
)

// Error is a compile error with the offending node, if known.
type Error struct {
	Kind    Kind
	Message string

	// Node is the id of the typed tree node that caused the error.
	// Zero when the error is not tied to a node.
	Node int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Node != 0 {
		return fmt.Sprintf("%s: %s (node=%d)", e.Kind, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether err (or anything it wraps) is a diag error of kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first diag error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// TypeMismatch reports a conversion or operation between incompatible types.
func TypeMismatch(node int, format string, args ...any) *Error {
	return &Error{Kind: KindTypeMismatch, Message: fmt.Sprintf(format, args...), Node: node}
}

// CantConvert is the canonical TypeMismatch for a rejected conversion.
func CantConvert(node int, from, to fmt.Stringer) *Error {
	return TypeMismatch(node, "can't convert %s to %s", from, to)
}

// InvalidType reports a conversion between identical types.
func InvalidType(node int, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidType, Message: fmt.Sprintf(format, args...), Node: node}
}

// InvalidLiteral reports a constant outside the destination's bounds.
func InvalidLiteral(node int, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidLiteral, Message: fmt.Sprintf(format, args...), Node: node}
}

// Structure reports malformed use of a builtin or statement.
func Structure(node int, format string, args ...any) *Error {
	return &Error{Kind: KindStructure, Message: fmt.Sprintf(format, args...), Node: node}
}

// Panicf reports a violated compiler invariant.
func Panicf(format string, args ...any) *Error {
	return &Error{Kind: KindCompilerPanic, Message: fmt.Sprintf(format, args...)}
}
