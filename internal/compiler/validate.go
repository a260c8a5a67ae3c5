package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/dispatch"
)

// Validation error codes (E100-E199)
const (
	ErrContractNameEmpty  = "E101" // contract name is required
	ErrNoFunctions        = "E102" // at least one function required
	ErrDuplicateFunction  = "E103" // two functions share a name
	ErrDuplicateName      = "E104" // argument or immutable declared twice
	ErrInvalidIdentifier  = "E105" // name is not a valid identifier
	ErrEmptyBody          = "E106" // function has no statements
	ErrImmutableType      = "E107" // immutable is not a word type
	ErrMethodIDCollision  = "E108" // two signatures share a method id
	ErrDynamicReturnValue = "E109" // function returns a type wider than the frame allows
)

// identPattern matches names that can be used as labels and selector
// signatures. Double underscores are reserved for tuple declarations.
var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// maxReturnBytes bounds a returned byte array.
const maxReturnBytes = 1 << 12

// ValidationError represents a module validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Node    int    `json:"node,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Node > 0 {
		return fmt.Sprintf("[%s] node %d: %s: %s", e.Code, e.Node, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the module-level rules that code generation assumes.
// Returns all errors found (does not fail-fast).
func Validate(m *ast.Module) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "contract name is required and must be non-empty",
			Code:    ErrContractNameEmpty,
		})
	}

	// E102: at least one function required
	if len(m.Functions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "functions",
			Message: "at least one function is required",
			Code:    ErrNoFunctions,
		})
	}

	moduleNames := make(map[string]bool)
	for i, im := range m.Immutables {
		field := fmt.Sprintf("immutables[%d]", i)
		errs = append(errs, validateIdentifier(im.Name, field+".name", int(im.ID()))...)

		// E104: duplicate immutable
		if moduleNames[im.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate immutable name: %q", im.Name),
				Code:    ErrDuplicateName,
				Node:    int(im.ID()),
			})
		}
		moduleNames[im.Name] = true

		// E107: immutables live in one word
		if !im.Typ.IsBaseType() {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("immutable %q must be a word type, not %s", im.Name, im.Typ),
				Code:    ErrImmutableType,
				Node:    int(im.ID()),
			})
		}
	}

	fnNames := make(map[string]bool)
	for i, fn := range m.Functions {
		errs = append(errs, validateFunction(fn, i, moduleNames)...)

		// E103: duplicate function name
		if fnNames[fn.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("functions[%d].name", i),
				Message: fmt.Sprintf("duplicate function name: %q", fn.Name),
				Code:    ErrDuplicateFunction,
				Node:    int(fn.ID()),
			})
		}
		fnNames[fn.Name] = true
	}

	errs = append(errs, validateMethodIDs(m.Functions)...)
	return errs
}

func validateFunction(fn *ast.FunctionDef, i int, moduleNames map[string]bool) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("functions[%d]", i)

	errs = append(errs, validateIdentifier(fn.Name, field+".name", int(fn.ID()))...)

	// E106: empty body
	if len(fn.Body) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".body",
			Message: fmt.Sprintf("function %q must have at least one statement", fn.Name),
			Code:    ErrEmptyBody,
			Node:    int(fn.ID()),
		})
	}

	// E109: oversized return
	if fn.Returns.Valid() && fn.Returns.MemoryBytes() > maxReturnBytes {
		errs = append(errs, ValidationError{
			Field:   field + ".returns",
			Message: fmt.Sprintf("return type %s exceeds %d bytes", fn.Returns, maxReturnBytes),
			Code:    ErrDynamicReturnValue,
			Node:    int(fn.ID()),
		})
	}

	argNames := make(map[string]bool)
	for j, arg := range fn.Args {
		argField := fmt.Sprintf("%s.args[%d].name", field, j)
		errs = append(errs, validateIdentifier(arg.Name, argField, int(arg.ID()))...)

		// E104: duplicate argument, or one hiding an immutable
		if argNames[arg.Name] || moduleNames[arg.Name] {
			errs = append(errs, ValidationError{
				Field:   argField,
				Message: fmt.Sprintf("%q is already declared", arg.Name),
				Code:    ErrDuplicateName,
				Node:    int(arg.ID()),
			})
		}
		argNames[arg.Name] = true
	}
	return errs
}

// validateIdentifier checks a declared name (E105).
func validateIdentifier(name, field string, node int) []ValidationError {
	if identPattern.MatchString(name) && !strings.Contains(name, ast.TupleSeparator) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("invalid identifier %q", name),
		Code:    ErrInvalidIdentifier,
		Node:    node,
	}}
}

// validateMethodIDs reports signatures whose 4-byte ids collide (E108).
func validateMethodIDs(fns []*ast.FunctionDef) []ValidationError {
	var errs []ValidationError
	seen := make(map[uint32]string, len(fns))
	for i, fn := range fns {
		sig := fn.Signature()
		id := dispatch.MethodID(sig)
		if prev, ok := seen[id]; ok && prev != sig {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("functions[%d]", i),
				Message: fmt.Sprintf("method id 0x%08x of %s collides with %s", id, sig, prev),
				Code:    ErrMethodIDCollision,
				Node:    int(fn.ID()),
			})
			continue
		}
		seen[id] = sig
	}
	return errs
}
