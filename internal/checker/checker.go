// Package checker validates key, functional, symmetric, transitive, and
// typing constraints against a store snapshot.
//
// Symmetric and transitive constraints are closure-compatibility
// annotations: the checker verifies that the implied tuples, IF they were
// asserted, would not contradict any key or functional constraint. Implied
// tuples are never written to the store. When a constraint carries param
// fibering, every check runs independently within each fixed assignment of
// the param fields.
package checker

import (
	"fmt"
	"strings"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// Check runs every constraint of the schema against the snapshot and
// collects violations. Checking never mutates the store; callers decide
// whether violations reject an import.
func Check(snap *pathdb.Snapshot, schema *ir.Schema) []pathdb.Violation {
	var out []pathdb.Violation
	for _, c := range schema.Constraints {
		switch c.Kind {
		case ir.ConstraintKey:
			out = append(out, checkKey(snap, schema, c)...)
		case ir.ConstraintFunctional:
			out = append(out, checkFunctional(snap, schema, c)...)
		case ir.ConstraintSymmetric:
			out = append(out, checkSymmetric(snap, schema, c)...)
		case ir.ConstraintTransitive:
			out = append(out, checkTransitive(snap, schema, c)...)
		case ir.ConstraintTyping:
			out = append(out, checkTyping(snap, c)...)
		}
	}
	return out
}

// Validator adapts Check to the store's import hook.
func Validator(schema *ir.Schema) pathdb.ValidateFunc {
	return func(snap *pathdb.Snapshot) []pathdb.Violation {
		return Check(snap, schema)
	}
}

// fiberParams returns the union of param fields declared by closure
// constraints co-declared on the relation, in declaration order. Key and
// functional checks restrict comparison within each fixed assignment of
// these fields.
func fiberParams(schema *ir.Schema, relation string) []string {
	var params []string
	seen := make(map[string]bool)
	for _, c := range schema.ConstraintsFor(relation) {
		if !c.Kind.IsClosure() {
			continue
		}
		for _, p := range c.Param {
			if !seen[p] {
				seen[p] = true
				params = append(params, p)
			}
		}
	}
	return params
}

// fiberKey renders a fact's param assignment as one canonical string.
func fiberKey(snap *pathdb.Snapshot, f *pathdb.Fact, params []string) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, len(params))
	for i, p := range params {
		v, _ := snap.FieldValue(f, p)
		parts[i] = p + "=" + v
	}
	return strings.Join(parts, ";")
}

// fieldVector projects the named fields of a fact into one joined string.
func fieldVector(snap *pathdb.Snapshot, f *pathdb.Fact, fields []string) string {
	parts := make([]string, len(fields))
	for i, name := range fields {
		v, _ := snap.FieldValue(f, name)
		parts[i] = v
	}
	return strings.Join(parts, "\x1f")
}

// matchesWhere applies the constraint's optional where clause.
func matchesWhere(snap *pathdb.Snapshot, f *pathdb.Fact, c *ir.Constraint) bool {
	if c.WhereField == "" {
		return true
	}
	v, ok := snap.FieldValue(f, c.WhereField)
	if !ok {
		return false
	}
	for _, allowed := range c.WhereValues {
		if v == allowed {
			return true
		}
	}
	return false
}

// checkKey rejects two distinct facts agreeing on all key fields (within
// one fiber) with different values elsewhere. Facts have content-addressed
// identity, so two facts in the same (fiber, key-values) group necessarily
// differ somewhere.
func checkKey(snap *pathdb.Snapshot, schema *ir.Schema, c *ir.Constraint) []pathdb.Violation {
	params := fiberParams(schema, c.Relation)
	type group struct{ fiber, keys string }
	seen := make(map[group]*pathdb.Fact)
	var out []pathdb.Violation
	for _, f := range snap.FactsOf(c.Relation) {
		if !matchesWhere(snap, f, c) {
			continue
		}
		g := group{fiber: fiberKey(snap, f, params), keys: fieldVector(snap, f, c.Fields)}
		if prev, dup := seen[g]; dup {
			out = append(out, pathdb.Violation{
				Code:       pathdb.CodeKey,
				Constraint: c.Name(),
				Relation:   c.Relation,
				Fiber:      g.fiber,
				FactIDs:    []string{prev.ID, f.ID},
				Message:    fmt.Sprintf("two facts agree on key (%s) but differ elsewhere", strings.Join(c.Fields, ", ")),
			})
			continue
		}
		seen[g] = f
	}
	return out
}

// checkFunctional rejects two facts sharing determinant values (within one
// fiber) with different determined values.
func checkFunctional(snap *pathdb.Snapshot, schema *ir.Schema, c *ir.Constraint) []pathdb.Violation {
	params := fiberParams(schema, c.Relation)
	type group struct{ fiber, determinant string }
	seen := make(map[group]*pathdb.Fact)
	var out []pathdb.Violation
	for _, f := range snap.FactsOf(c.Relation) {
		if !matchesWhere(snap, f, c) {
			continue
		}
		g := group{fiber: fiberKey(snap, f, params), determinant: fieldVector(snap, f, c.Fields)}
		prev, dup := seen[g]
		if !dup {
			seen[g] = f
			continue
		}
		if fieldVector(snap, prev, c.Determined) != fieldVector(snap, f, c.Determined) {
			out = append(out, pathdb.Violation{
				Code:       pathdb.CodeFunctional,
				Constraint: c.Name(),
				Relation:   c.Relation,
				Fiber:      g.fiber,
				FactIDs:    []string{prev.ID, f.ID},
				Message:    fmt.Sprintf("(%s) determines (%s), but two facts disagree", strings.Join(c.Fields, ", "), strings.Join(c.Determined, ", ")),
			})
		}
	}
	return out
}
