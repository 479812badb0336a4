package harness

// TraceEvent records one flow step and its outcome.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Route string `json:"route"`
	Op    string `json:"op"`

	// Args holds the descriptor and payload the step sent.
	Args map[string]any `json:"args,omitempty"`

	// Error is the crud error code of a rejected step.
	Error string `json:"error,omitempty"`

	// Result is the returned value in its JSON shape.
	Result any `json:"result,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every flow step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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

// AddEvent appends a step to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
