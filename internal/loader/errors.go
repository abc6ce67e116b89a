package loader

import (
	"errors"
	"fmt"
)

// ParseError reports malformed module text with a source location.
// Parse errors are fatal to the load and never touch store state.
type ParseError struct {
	Line    int
	Col     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Message)
}

// TypeError reports a reference to an undeclared type, relation, field, or
// node, or a value bound outside its type partition. Fatal to the load.
type TypeError struct {
	Line    int
	Col     int
	Ref     string
	Message string
}

func (e *TypeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("type error at %d:%d: %s: %s", e.Line, e.Col, e.Ref, e.Message)
	}
	return fmt.Sprintf("type error: %s: %s", e.Ref, e.Message)
}

// NonCertifiableError rejects a closure constraint declaration that cannot
// be certified: overlapping carrier/param fields, or a co-declared
// key/functional mentioning fields outside the carrier+param set (an
// inferred closure tuple would have no defined value for those fields).
// Rejected at load time, never silently downgraded.
type NonCertifiableError struct {
	Constraint string
	Conflict   string
	Message    string
}

func (e *NonCertifiableError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("non-certifiable declaration %s (conflicts with %s): %s", e.Constraint, e.Conflict, e.Message)
	}
	return fmt.Sprintf("non-certifiable declaration %s: %s", e.Constraint, e.Message)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsTypeError reports whether err is (or wraps) a TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// IsNonCertifiable reports whether err is (or wraps) a NonCertifiableError.
func IsNonCertifiable(err error) bool {
	var ne *NonCertifiableError
	return errors.As(err, &ne)
}
