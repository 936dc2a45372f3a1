package harness

import "github.com/roach88/flowrl/internal/model"

// Trace event types.
const (
	TraceStep   = "step"
	TraceFetch  = "fetch"
	TraceSubmit = "submit"
)

// TraceEvent is one entry of a scenario trace: either a flow step or a call
// the client made to the service.
type TraceEvent struct {
	Seq     int64                     `json:"seq"`
	Type    string                    `json:"type"`
	Step    string                    `json:"step,omitempty"`
	UserID  string                    `json:"user_id,omitempty"`
	Action  string                    `json:"action,omitempty"`
	Context []model.ExperimentContext `json:"context,omitempty"`
	Outcome string                    `json:"outcome,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps and service calls in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Pending is the backlog size at the end of the flow.
	Pending int `json:"pending"`
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
