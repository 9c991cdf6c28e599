package harness

import (
	"fmt"
	"slices"
	"strings"
)

// CheckOutcome compares a step outcome with the step's expectation and
// returns a description of every mismatch.
//
// A step expecting an error passes only if that code was returned. A step
// expecting a result passes only if no error occurred and the result is
// identical, order included. A step with no expectation fails only on an
// unexpected error.
func CheckOutcome(step *Step, o Outcome) []string {
	prefix := fmt.Sprintf("steps[%d] %s %s", o.Step, o.Kind, o.Input)

	switch {
	case step.Error != "":
		if o.Error == "" {
			return []string{fmt.Sprintf("%s: expected error %s, got result %s", prefix, step.Error, formatList(o.Result))}
		}
		if o.Error != step.Error {
			return []string{fmt.Sprintf("%s: expected error %s, got %s", prefix, step.Error, o.Error)}
		}
		return nil

	case o.Error != "":
		return []string{fmt.Sprintf("%s: unexpected error %s", prefix, o.Error)}

	case step.Expect != nil:
		if !slices.Equal(step.Expect, o.Result) {
			return []string{fmt.Sprintf("%s: expected %s, got %s", prefix, formatList(step.Expect), formatList(o.Result))}
		}
	}
	return nil
}

// EvaluateOutcomes checks every outcome against its step and records
// failures in result.
func EvaluateOutcomes(result *Result, steps []Step) {
	for i := range result.Outcomes {
		o := result.Outcomes[i]
		for _, msg := range CheckOutcome(&steps[o.Step], o) {
			result.AddError(msg)
		}
	}
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
