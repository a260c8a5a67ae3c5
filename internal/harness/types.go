package harness

// TraceEvent is one call and its outcome.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Call     string `json:"call"` // signature, or "raw"
	Calldata string `json:"calldata"`
	Value    uint64 `json:"value,omitempty"`
	Outcome  string `json:"outcome"`
	Return   string `json:"return,omitempty"`  // hex
	Decoded  string `json:"decoded,omitempty"` // return value in the function's type
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Contract is the compiled contract's name.
	Contract string `json:"contract"`

	// Layout is the selector layout kind.
	Layout string `json:"layout"`

	// RuntimeBytes is the length of the runtime code.
	RuntimeBytes int `json:"runtime_bytes"`

	// Trace lists every call in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
