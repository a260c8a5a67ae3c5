package harness

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/kiln/internal/ast"
	"github.com/roach88/kiln/internal/compiler"
	"github.com/roach88/kiln/internal/loader"
	"github.com/roach88/kiln/internal/testutil"
	"github.com/roach88/kiln/internal/types"
)

// Harness holds one deployment and the functions it can call.
type Harness struct {
	artifacts *compiler.Artifacts
	code      []byte
	functions map[string]*ast.FunctionDef
	seq       int64
}

// Run compiles and deploys the scenario's program, then executes every
// call in order.
//
// An error means the scenario could not run at all: the program did not
// compile, a call could not be encoded, or the interpreter hit an
// instruction it does not support. Failed expectations are reported in
// the Result instead.
func Run(s *Scenario) (*Result, error) {
	h, err := New(s.Program, s.Settings)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Contract = h.artifacts.Name
	result.Layout = h.artifacts.Layout.Kind().String()
	result.RuntimeBytes = len(h.artifacts.Build.Runtime)

	for i, step := range s.Calls {
		event, err := h.Call(step)
		if err != nil {
			return nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, event)
		if msg := h.checkExpect(step, event); msg != "" {
			result.AddError(fmt.Sprintf("calls[%d] %s: %s", i, event.Call, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	slog.Debug("scenario finished",
		"scenario", s.Name,
		"calls", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

// New compiles the program at path and deploys it. Nil settings mean the
// defaults.
func New(path string, settings *compiler.Settings) (*Harness, error) {
	m, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	s := compiler.DefaultSettings()
	if settings != nil {
		s = *settings
	}
	a, err := compiler.Compile(m, s)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	code, err := testutil.Deploy(a.Build.Initcode)
	if err != nil {
		return nil, err
	}

	h := &Harness{artifacts: a, code: code, functions: make(map[string]*ast.FunctionDef, len(m.Functions))}
	for _, fn := range m.Functions {
		h.functions[fn.Name] = fn
	}
	return h, nil
}

// Artifacts returns the compilation the harness deployed.
func (h *Harness) Artifacts() *compiler.Artifacts { return h.artifacts }

// Call executes one step and records its outcome.
func (h *Harness) Call(step Step) (TraceEvent, error) {
	var (
		data    []byte
		returns types.Descriptor
		event   = TraceEvent{Call: RawCall, Value: step.Value}
	)
	if step.Call != "" {
		fn, ok := h.functions[step.Call]
		if !ok {
			return event, fmt.Errorf("unknown function %q", step.Call)
		}
		argTypes := make([]types.Descriptor, len(fn.Args))
		for i, a := range fn.Args {
			argTypes[i] = a.Typ
		}
		var err error
		if data, err = encodeCall(fn.Signature(), argTypes, step.Args); err != nil {
			return event, fmt.Errorf("encode %s: %w", fn.Signature(), err)
		}
		event.Call = fn.Signature()
		returns = fn.Returns
	} else {
		var err error
		if data, err = hex.DecodeString(strings.TrimPrefix(step.Calldata, "0x")); err != nil {
			return event, fmt.Errorf("calldata: %w", err)
		}
	}

	h.seq++
	event.Seq = h.seq
	event.Calldata = "0x" + hex.EncodeToString(data)

	res, err := testutil.Run(testutil.Call{Code: h.code, Calldata: data, CallValue: step.Value})
	switch {
	case errors.Is(err, testutil.ErrReverted):
		event.Outcome = OutcomeRevert
	case err != nil:
		return event, err
	default:
		event.Outcome = OutcomeReturn
		if len(res.Return) > 0 {
			event.Return = "0x" + hex.EncodeToString(res.Return)
		}
		event.Decoded = display(returns, res.Return)
	}
	return event, nil
}

// checkExpect returns a failure message, or "" when the step's expect
// clause holds.
func (h *Harness) checkExpect(step Step, event TraceEvent) string {
	want := step.Expect
	if want == nil {
		return ""
	}
	if want.Revert {
		if event.Outcome != OutcomeRevert {
			return fmt.Sprintf("expected revert, got return %s", event.Return)
		}
		return ""
	}
	if event.Outcome != OutcomeReturn {
		return "unexpected revert"
	}
	if want.Returns == nil {
		return ""
	}

	fn := h.functions[step.Call]
	if fn == nil || !fn.Returns.Valid() {
		return "returns given for a call without a return type"
	}
	expected, err := encodeValues([]types.Descriptor{fn.Returns}, []any{want.Returns})
	if err != nil {
		return fmt.Sprintf("encode expected return: %v", err)
	}
	got, _ := hex.DecodeString(strings.TrimPrefix(event.Return, "0x"))
	if !bytes.Equal(expected, got) {
		return fmt.Sprintf("expected %v, got %s", want.Returns, event.Decoded)
	}
	return ""
}
