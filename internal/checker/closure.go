package checker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// tupleView is a tuple restricted to the fields a closure check may
// compare: the closure constraint's carrier and param fields. Implied
// tuples exist only as views; nothing is ever materialized into the store.
type tupleView struct {
	factID string // empty for implied tuples
	vals   map[string]string
}

func viewOfFact(snap *pathdb.Snapshot, f *pathdb.Fact, fields []string) tupleView {
	vals := make(map[string]string, len(fields))
	for _, name := range fields {
		v, _ := snap.FieldValue(f, name)
		vals[name] = v
	}
	return tupleView{factID: f.ID, vals: vals}
}

// agreesOn reports whether both views hold identical values for every
// listed field.
func (t tupleView) agreesOn(other tupleView, fields []string) bool {
	for _, name := range fields {
		if t.vals[name] != other.vals[name] {
			return false
		}
	}
	return true
}

// sameTuple reports whether the views are identical on their shared fields.
func (t tupleView) sameTuple(other tupleView) bool {
	for name, v := range t.vals {
		if ov, ok := other.vals[name]; ok && ov != v {
			return false
		}
	}
	return true
}

func (t tupleView) describe() string {
	keys := make([]string, 0, len(t.vals))
	for k := range t.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + t.vals[k]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// checkSymmetric verifies closure compatibility of a symmetric annotation:
// for every matching fact, the tuple with carrier fields swapped must not
// collide with any key or functional constraint on the relation, restricted
// to the fact's fiber. The reverse tuple is never asserted.
func checkSymmetric(snap *pathdb.Snapshot, schema *ir.Schema, c *ir.Constraint) []pathdb.Violation {
	relevant := append(append([]string{}, c.On...), c.Param...)
	guards := keyFunctionalConstraints(schema, c.Relation)
	var out []pathdb.Violation
	for _, f := range snap.FactsOf(c.Relation) {
		if !matchesWhere(snap, f, c) {
			continue
		}
		base := viewOfFact(snap, f, relevant)
		implied := tupleView{vals: make(map[string]string, len(relevant))}
		for k, v := range base.vals {
			implied.vals[k] = v
		}
		implied.vals[c.On[0]], implied.vals[c.On[1]] = base.vals[c.On[1]], base.vals[c.On[0]]

		fiber := fiberKey(snap, f, c.Param)
		for _, guard := range guards {
			if v := conflictWithExisting(snap, schema, c, guard, implied, fiber, relevant); v != nil {
				v.Code = pathdb.CodeSymmetric
				v.Constraint = c.Name()
				v.FactIDs = append([]string{f.ID}, v.FactIDs...)
				v.Message = fmt.Sprintf("implied reverse of fact %s %s: %s", f.ID, implied.describe(), v.Message)
				out = append(out, *v)
			}
		}
	}
	return out
}

// checkTransitive verifies closure compatibility of a transitive
// annotation: within each fiber, the reachability closure over the carrier
// fields must not collide with any key or functional constraint. Closure
// tuples are computed by fixpoint and discarded, never stored.
func checkTransitive(snap *pathdb.Snapshot, schema *ir.Schema, c *ir.Constraint) []pathdb.Violation {
	relevant := append(append([]string{}, c.On...), c.Param...)
	guards := keyFunctionalConstraints(schema, c.Relation)
	from, to := c.On[0], c.On[1]

	// Bucket matching facts per fiber.
	fiberEdges := make(map[string]map[nodePair]bool)
	fiberOrder := []string{}
	fiberVals := make(map[string]map[string]string)
	for _, f := range snap.FactsOf(c.Relation) {
		if !matchesWhere(snap, f, c) {
			continue
		}
		fiber := fiberKey(snap, f, c.Param)
		if fiberEdges[fiber] == nil {
			fiberEdges[fiber] = make(map[nodePair]bool)
			fiberOrder = append(fiberOrder, fiber)
			vals := make(map[string]string, len(c.Param))
			for _, p := range c.Param {
				v, _ := snap.FieldValue(f, p)
				vals[p] = v
			}
			fiberVals[fiber] = vals
		}
		u, _ := snap.FieldValue(f, from)
		v, _ := snap.FieldValue(f, to)
		fiberEdges[fiber][nodePair{u, v}] = true
	}

	var out []pathdb.Violation
	for _, fiber := range fiberOrder {
		edges := fiberEdges[fiber]
		implied := impliedClosure(edges)
		views := make([]tupleView, 0, len(implied))
		for _, e := range implied {
			vals := make(map[string]string, len(relevant))
			for p, v := range fiberVals[fiber] {
				vals[p] = v
			}
			vals[from], vals[to] = e.U, e.V
			views = append(views, tupleView{vals: vals})
		}
		for _, guard := range guards {
			for i, view := range views {
				if v := conflictWithExisting(snap, schema, c, guard, view, fiber, relevant); v != nil {
					v.Code = pathdb.CodeTransitive
					v.Constraint = c.Name()
					v.Message = fmt.Sprintf("closure tuple %s: %s", view.describe(), v.Message)
					out = append(out, *v)
				}
				// Implied tuples can also collide with each other.
				for _, other := range views[i+1:] {
					if violatesGuard(guard, view, other) {
						out = append(out, pathdb.Violation{
							Code:       pathdb.CodeTransitive,
							Constraint: c.Name(),
							Relation:   c.Relation,
							Fiber:      fiber,
							Message:    fmt.Sprintf("closure tuples %s and %s collide on %s", view.describe(), other.describe(), guard.Name()),
						})
					}
				}
			}
		}
	}
	return out
}

// nodePair is one directed carrier edge (or implied closure pair).
type nodePair struct{ U, V string }

// impliedClosure computes reachability pairs not already present as edges.
// Standard fixpoint over a finite edge set: BFS from every source with a
// visited set (the graph may contain cycles).
func impliedClosure(edges map[nodePair]bool) []nodePair {
	adj := make(map[string][]string)
	sources := []string{}
	for e := range edges {
		if adj[e.U] == nil {
			sources = append(sources, e.U)
		}
		adj[e.U] = append(adj[e.U], e.V)
	}
	sort.Strings(sources)
	for _, vs := range adj {
		sort.Strings(vs)
	}
	var implied []nodePair
	for _, src := range sources {
		visited := map[string]bool{}
		queue := append([]string{}, adj[src]...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			if cur != src && !edges[nodePair{src, cur}] {
				implied = append(implied, nodePair{src, cur})
			}
			queue = append(queue, adj[cur]...)
		}
	}
	sort.Slice(implied, func(i, j int) bool {
		if implied[i].U != implied[j].U {
			return implied[i].U < implied[j].U
		}
		return implied[i].V < implied[j].V
	})
	return implied
}

// keyFunctionalConstraints lists the key and functional constraints on the
// relation, in declaration order.
func keyFunctionalConstraints(schema *ir.Schema, relation string) []*ir.Constraint {
	var out []*ir.Constraint
	for _, c := range schema.ConstraintsFor(relation) {
		if c.Kind == ir.ConstraintKey || c.Kind == ir.ConstraintFunctional {
			out = append(out, c)
		}
	}
	return out
}

// conflictWithExisting checks one implied tuple against the stored facts of
// the relation within the same fiber, under one key/functional guard.
func conflictWithExisting(snap *pathdb.Snapshot, schema *ir.Schema, closure *ir.Constraint, guard *ir.Constraint, implied tupleView, fiber string, relevant []string) *pathdb.Violation {
	for _, g := range snap.FactsOf(closure.Relation) {
		if !matchesWhere(snap, g, guard) {
			continue
		}
		if fiberKey(snap, g, closure.Param) != fiber {
			continue
		}
		view := viewOfFact(snap, g, relevant)
		if violatesGuard(guard, implied, view) {
			return &pathdb.Violation{
				Relation: closure.Relation,
				Fiber:    fiber,
				FactIDs:  []string{g.ID},
				Message:  fmt.Sprintf("collides with fact %s under %s", g.ID, guard.Name()),
			}
		}
	}
	return nil
}

// violatesGuard applies one key/functional constraint to a pair of tuple
// views. For a key: agreement on the key fields with any other difference
// is a conflict. For a functional: agreement on determinants with differing
// dependents is a conflict.
func violatesGuard(guard *ir.Constraint, a, b tupleView) bool {
	switch guard.Kind {
	case ir.ConstraintKey:
		return a.agreesOn(b, guard.Fields) && !a.sameTuple(b)
	case ir.ConstraintFunctional:
		return a.agreesOn(b, guard.Fields) && !a.agreesOn(b, guard.Determined)
	}
	return false
}
