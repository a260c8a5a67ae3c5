package harness

import (
	"fmt"
	"strings"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index     int
	Assertion Assertion
	Message   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s: %s", e.Index, e.Assertion.Type, e.Message)
}

// EvaluateAssertions checks every assertion against result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var msg string
		switch a.Type {
		case AssertLayout:
			msg = assertLayout(result, a)
		case AssertRuntimeSize:
			msg = assertRuntimeSize(result, a)
		case AssertTraceCount:
			msg = assertTraceCount(result.Trace, a)
		default:
			msg = fmt.Sprintf("unknown assertion type %q", a.Type)
		}
		if msg != "" {
			errs = append(errs, (&AssertionError{Index: i, Assertion: a, Message: msg}).Error())
		}
	}
	return errs
}

func assertLayout(result *Result, a Assertion) string {
	if result.Layout != a.Kind {
		return fmt.Sprintf("expected %s layout, got %s", a.Kind, result.Layout)
	}
	return ""
}

func assertRuntimeSize(result *Result, a Assertion) string {
	if result.RuntimeBytes > a.MaxBytes {
		return fmt.Sprintf("runtime is %d bytes, limit %d", result.RuntimeBytes, a.MaxBytes)
	}
	return ""
}

// assertTraceCount counts events whose call matches by function name.
// Trace events hold signatures, so "inc" matches "inc(uint64)".
func assertTraceCount(trace []TraceEvent, a Assertion) string {
	n := 0
	for _, e := range trace {
		if e.Outcome == a.Outcome && callName(e.Call) == a.Call {
			n++
		}
	}
	if n != a.Count {
		return fmt.Sprintf("expected %d %s %s, got %d", a.Count, a.Call, a.Outcome, n)
	}
	return ""
}

func callName(call string) string {
	if i := strings.IndexByte(call, '('); i >= 0 {
		return call[:i]
	}
	return call
}
