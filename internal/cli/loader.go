package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/diag"
	"github.com/roach88/kiln/internal/loader"
)

// LoadError represents an error that occurred while loading or compiling
// a program file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadProgram reads the contract in the CUE file at path.
func LoadProgram(path string) (*ast.Module, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing program: %v", err)}
	}
	if info.IsDir() || filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeNotCUE, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}

	m, err := loader.LoadFile(path)
	if err != nil {
		return nil, convertError(err)
	}
	return m, nil
}

// convertError maps a loader or compiler error to a LoadError with a code.
func convertError(err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	var compileErr *loader.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	if kind := diag.KindOf(err); kind != "" {
		return &LoadError{Code: MapDiagKindToErrorCode(kind), Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands. Validation
// codes E101-E109 come from the compiler package.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeInvalidFlag   = "E002" // Bad flag or argument value
	ErrCodeNotCUE        = "E003" // Not a CUE file
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeCompileFailed = "E006" // Compilation failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeRegistry      = "E008" // Build registry error
	ErrCodeVerifyFailed  = "E009" // Metadata or runtime check failed
	ErrCodeInvalidHex    = "E010" // Bytecode argument is not hex
	ErrCodeTestFailed    = "E011" // One or more scenarios failed

	// Program shape errors
	ErrCodeMissingContract = "E120" // No contract field
	ErrCodeInvalidType     = "E121" // Unknown or malformed type
	ErrCodeDeclaration     = "E122" // Bad name, argument or local declaration
	ErrCodeExpression      = "E123" // Malformed expression
	ErrCodeLiteral         = "E124" // Malformed literal
	ErrCodeStatement       = "E125" // Malformed statement

	// Semantic errors raised while lowering
	ErrCodeTypeMismatch    = "E201"
	ErrCodeInvalidConvert  = "E202"
	ErrCodeInvalidLiteral  = "E203"
	ErrCodeStructure       = "E204"
	ErrCodeDecimalOverride = "E205"
	ErrCodeCompilerPanic   = "E299"
)

// MapFieldToErrorCode maps a loader error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeLoadFailed
	case "contract":
		return ErrCodeMissingContract
	case "type":
		return ErrCodeInvalidType
	case "name", "declare", "immutable", "payable", "immutables", "functions", "args":
		return ErrCodeDeclaration
	case "expr", "op", "left", "right", "to", "value":
		return ErrCodeExpression
	case "literal", "int", "decimal", "hex", "bytes", "str", "bool":
		return ErrCodeLiteral
	case "stmt", "body":
		return ErrCodeStatement
	default:
		return ErrCodeGeneric
	}
}

// MapDiagKindToErrorCode maps a compile error kind to an error code.
func MapDiagKindToErrorCode(kind diag.Kind) string {
	switch kind {
	case diag.KindTypeMismatch:
		return ErrCodeTypeMismatch
	case diag.KindInvalidType:
		return ErrCodeInvalidConvert
	case diag.KindInvalidLiteral:
		return ErrCodeInvalidLiteral
	case diag.KindStructure:
		return ErrCodeStructure
	case diag.KindDecimalOverride:
		return ErrCodeDecimalOverride
	case diag.KindCompilerPanic:
		return ErrCodeCompilerPanic
	default:
		return ErrCodeCompileFailed
	}
}
