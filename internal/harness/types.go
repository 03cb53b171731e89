package harness

import "github.com/roach88/relpop/internal/ir"

// Outcomes of a recorded MakeTuples call.
const (
	OutcomeMade     = "made"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// TraceEvent is one MakeTuples call observed during a scenario.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Step    int    `json:"step"`
	Table   string `json:"table"`
	Key     string `json:"key"`
	Attempt int    `json:"attempt"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`

	key ir.Key
}

// StepResult is the outcome of one populate step.
type StepResult struct {
	Table string `json:"table"`
	Made  int    `json:"made"`

	// Failed lists the keys whose failures were suppressed.
	Failed []string `json:"failed,omitempty"`

	// Error is the fatal error that stopped the step, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Steps  []StepResult `json:"steps"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}
