package checker

import (
	"fmt"
	"strconv"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// checkTyping runs one built-in executable typing rule against the explicit
// facts of the constraint's relation. The rule reads the relation's first
// field as input and its last field as output; node names must be integer
// literals to be in the rule's domain. The rule does not require any facts
// to exist - it only checks consistency of the ones that do.
func checkTyping(snap *pathdb.Snapshot, c *ir.Constraint) []pathdb.Violation {
	var out []pathdb.Violation
	for _, f := range snap.FactsOf(c.Relation) {
		if !matchesWhere(snap, f, c) {
			continue
		}
		in := f.Fields[0]
		outVal := f.Fields[len(f.Fields)-1]
		inN, inErr := strconv.ParseInt(in, 10, 64)
		outN, outErr := strconv.ParseInt(outVal, 10, 64)
		if inErr != nil || outErr != nil {
			out = append(out, pathdb.Violation{
				Code:       pathdb.CodeTyping,
				Constraint: c.Name(),
				Relation:   c.Relation,
				FactIDs:    []string{f.ID},
				Message:    fmt.Sprintf("rule %s needs integer-valued attributes, got (%s, %s)", c.Rule, in, outVal),
			})
			continue
		}
		want, ok := applyTypingRule(c.Rule, inN)
		if !ok {
			out = append(out, pathdb.Violation{
				Code:       pathdb.CodeTyping,
				Constraint: c.Name(),
				Relation:   c.Relation,
				FactIDs:    []string{f.ID},
				Message:    fmt.Sprintf("unknown typing rule %s", c.Rule),
			})
			continue
		}
		if outN != want {
			out = append(out, pathdb.Violation{
				Code:       pathdb.CodeTyping,
				Constraint: c.Name(),
				Relation:   c.Relation,
				FactIDs:    []string{f.ID},
				Message:    fmt.Sprintf("rule %s maps %d to %d, fact asserts %d", c.Rule, inN, want, outN),
			})
		}
	}
	return out
}

// applyTypingRule evaluates one built-in rule.
func applyTypingRule(rule string, in int64) (int64, bool) {
	switch rule {
	case ir.TypingSucc:
		return in + 1, true
	case ir.TypingDouble:
		return in * 2, true
	}
	return 0, false
}
