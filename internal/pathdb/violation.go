package pathdb

import (
	"errors"
	"fmt"
	"strings"
)

// ViolationCode categorizes constraint violations.
type ViolationCode string

const (
	CodeKey          ViolationCode = "KEY_VIOLATION"
	CodeFunctional   ViolationCode = "FUNCTIONAL_VIOLATION"
	CodeSymmetric    ViolationCode = "SYMMETRIC_INCOMPATIBLE"
	CodeTransitive   ViolationCode = "TRANSITIVE_INCOMPATIBLE"
	CodeTyping       ViolationCode = "TYPING_VIOLATION"
	CodeDuplicate    ViolationCode = "DUPLICATE_FACT"
	CodeNodeConflict ViolationCode = "NODE_CONFLICT"
)

// Violation is one constraint failure: the constraint, the offending facts,
// and the fiber (fixed param assignment) it occurred in, if any. Violations
// are collected, never thrown mid-import; the import mode decides what
// happens to the offending facts.
type Violation struct {
	Code       ViolationCode
	Constraint string
	Relation   string
	Fiber      string
	FactIDs    []string
	Message    string
}

func (v Violation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", v.Code, v.Message)
	if v.Constraint != "" {
		fmt.Fprintf(&b, " (constraint %s)", v.Constraint)
	}
	if v.Fiber != "" {
		fmt.Fprintf(&b, " [fiber %s]", v.Fiber)
	}
	if len(v.FactIDs) > 0 {
		fmt.Fprintf(&b, " facts: %s", strings.Join(v.FactIDs, ", "))
	}
	return b.String()
}

// Mentions reports whether the violation names the given fact.
func (v Violation) Mentions(factID string) bool {
	for _, id := range v.FactIDs {
		if id == factID {
			return true
		}
	}
	return false
}

// ValidateFunc checks a candidate snapshot and returns all violations. The
// checker package provides implementations; pathdb only orchestrates.
type ValidateFunc func(snap *Snapshot) []Violation

// ImportError reports a strict-mode import rejected by violations. The
// store state is unchanged when this is returned.
type ImportError struct {
	Violations []Violation
}

func (e *ImportError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("import rejected: %s", e.Violations[0])
	}
	return fmt.Sprintf("import rejected: %d constraint violations (first: %s)", len(e.Violations), e.Violations[0])
}

// IsImportError reports whether err is (or wraps) a strict-mode rejection.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}
