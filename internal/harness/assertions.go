package harness

import (
	"fmt"
	"strings"
)

// ClientState is the part of the client assertions inspect.
// Implemented by *engine.Engine.
type ClientState interface {
	Pending() int
	Variant(test, def string) string
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describe(event))
	}

	return buf.String()
}

func describe(e TraceEvent) string {
	switch e.Type {
	case TraceStep:
		return e.Step
	case TraceFetch:
		return fmt.Sprintf("fetch user=%q -> %s", e.UserID, e.Outcome)
	default:
		return fmt.Sprintf("submit %s user=%q context=%v -> %s", e.Action, e.UserID, e.Context, e.Outcome)
	}
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, state ClientState) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result.Trace, a, state); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion, state ClientState) error {
	switch a.Type {
	case AssertFetchCount:
		return assertCount(trace, a, countType(trace, TraceFetch, false))
	case AssertDeliveredCount:
		return assertCount(trace, a, countType(trace, TraceSubmit, true))
	case AssertPending:
		return assertCount(trace, a, state.Pending())
	case AssertDelivered:
		return assertDelivered(trace, a)
	case AssertVariant:
		return assertVariant(trace, a, state)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func countType(trace []TraceEvent, typ string, okOnly bool) int {
	n := 0
	for _, e := range trace {
		if e.Type != typ {
			continue
		}
		if okOnly && e.Outcome != "ok" {
			continue
		}
		n++
	}
	return n
}

func assertCount(trace []TraceEvent, a Assertion, actual int) error {
	if actual == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", a.Count),
		Actual:   fmt.Sprintf("%d", actual),
		Trace:    trace,
	}
}

// assertDelivered looks for an acknowledged submission of the action whose
// user matches (when given) and whose context contains every given pair.
func assertDelivered(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if e.Type != TraceSubmit || e.Outcome != "ok" || e.Action != a.Action {
			continue
		}
		if a.UserID != "" && e.UserID != a.UserID {
			continue
		}
		if matchContext(e, a.Context) {
			return nil
		}
	}

	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("delivered %s user=%q context=%v", a.Action, a.UserID, a.Context),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func matchContext(e TraceEvent, want map[string]string) bool {
	got := make(map[string]string, len(e.Context))
	for _, c := range e.Context {
		got[c.Name] = c.Value
	}
	for name, value := range want {
		if v, ok := got[name]; !ok || v != value {
			return false
		}
	}
	return true
}

func assertVariant(trace []TraceEvent, a Assertion, state ClientState) error {
	actual := state.Variant(a.Test, a.Default)
	if actual == a.Expect {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s = %s", a.Test, a.Expect),
		Actual:   fmt.Sprintf("%s = %s", a.Test, actual),
		Trace:    trace,
	}
}
