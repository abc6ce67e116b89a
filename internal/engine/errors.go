package engine

import (
	"errors"
	"fmt"
)

// BudgetError reports that a traversal or normalization hit its caller
// supplied budget before completing. It is distinct from "no result found":
// an exhausted search returns empty results with a nil error.
type BudgetError struct {
	// Kind is the exhausted budget: "depth", "steps", or "results".
	Kind  string
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("traversal budget exceeded: %s limit %d", e.Kind, e.Limit)
}

// IsBudgetError reports whether err is (or wraps) a BudgetError.
func IsBudgetError(err error) bool {
	var be *BudgetError
	return errors.As(err, &be)
}

// ReplayError reports a stored derivation that does not replay: a step's
// rule no longer matches at its position, or the bindings disagree.
type ReplayError struct {
	Step    int
	Rule    string
	Message string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("derivation step %d (rule %s) does not replay: %s", e.Step, e.Rule, e.Message)
}

// IsReplayError reports whether err is (or wraps) a ReplayError.
func IsReplayError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}
