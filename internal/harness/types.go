package harness

import "github.com/roach88/navguard/internal/guard"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace is the journal in seq order.
	Trace []guard.Event `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Route is the route after the last step.
	Route string `json:"route"`

	// Actions counts navigation actions that ran.
	Actions int `json:"actions"`

	// Guards is the final registry content in evaluation order.
	Guards []string `json:"guards"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []guard.Event{},
		Errors: []string{},
		Guards: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}
