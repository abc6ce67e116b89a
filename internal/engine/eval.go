// Package engine evaluates path-algebra terms over a store snapshot and
// applies declared rewrite rules: bounded graph search for queries, fixpoint
// normalization with a fixed tie-break, and derivation replay.
//
// All traversal is synchronous and single-threaded per query; cycles are
// guarded by explicit visited sets, and non-terminating inputs surface as
// BudgetError rather than hanging.
package engine

import (
	"fmt"
	"sort"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// Budget bounds one traversal. Zero fields mean the default, not unlimited.
type Budget struct {
	MaxDepth   int // longest walk considered by Reachable
	MaxSteps   int // fact enumerations (Eval) or rewrite applications (Normalize)
	MaxResults int // satisfying assignments returned by Eval
}

// DefaultBudget caps runaway traversals when the caller does not care.
var DefaultBudget = Budget{MaxDepth: 64, MaxSteps: 100000, MaxResults: 10000}

func (b Budget) withDefaults() Budget {
	if b.MaxDepth <= 0 {
		b.MaxDepth = DefaultBudget.MaxDepth
	}
	if b.MaxSteps <= 0 {
		b.MaxSteps = DefaultBudget.MaxSteps
	}
	if b.MaxResults <= 0 {
		b.MaxResults = DefaultBudget.MaxResults
	}
	return b
}

// Binding maps path-term endpoint names to node names.
type Binding map[string]string

func (b Binding) clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Eval finds all assignments of the term's endpoint names to nodes such
// that the path exists in the snapshot. A name already present as a node is
// a constant; any other name is a variable. Results are returned in a
// deterministic order (sorted by rendered binding).
func Eval(snap *pathdb.Snapshot, term ir.PathTerm, budget Budget) ([]Binding, error) {
	if err := checkComposition(term); err != nil {
		return nil, err
	}
	budget = budget.withDefaults()
	steps := 0
	results, err := evalTerm(snap, term, &steps, budget)
	if err != nil {
		return nil, err
	}
	if len(results) > budget.MaxResults {
		return nil, &BudgetError{Kind: "results", Limit: budget.MaxResults}
	}
	sort.Slice(results, func(i, j int) bool {
		return renderBinding(results[i]) < renderBinding(results[j])
	})
	return results, nil
}

// checkComposition rejects trans terms whose subpaths do not meet. Rule
// terms get this check at load time; query terms arrive unchecked, and
// evaluating a non-meeting composition would compute a cross join instead
// of a path.
func checkComposition(term ir.PathTerm) error {
	switch node := term.(type) {
	case ir.Trans:
		if node.P1.End() != node.P2.Start() {
			return fmt.Errorf("trans composes paths that do not meet (%s vs %s)", node.P1.End(), node.P2.Start())
		}
		if err := checkComposition(node.P1); err != nil {
			return err
		}
		return checkComposition(node.P2)
	case ir.Inv:
		return checkComposition(node.P)
	}
	return nil
}

func evalTerm(snap *pathdb.Snapshot, term ir.PathTerm, steps *int, budget Budget) ([]Binding, error) {
	switch node := term.(type) {
	case ir.Step:
		return evalStep(snap, node, steps, budget)
	case ir.Inv:
		// The edge set is the same either way round; direction only
		// matters for composition endpoints, which are resolved by name.
		return evalTerm(snap, node.P, steps, budget)
	case ir.Trans:
		left, err := evalTerm(snap, node.P1, steps, budget)
		if err != nil {
			return nil, err
		}
		right, err := evalTerm(snap, node.P2, steps, budget)
		if err != nil {
			return nil, err
		}
		return joinBindings(left, right, steps, budget)
	default:
		return nil, nil
	}
}

func evalStep(snap *pathdb.Snapshot, step ir.Step, steps *int, budget Budget) ([]Binding, error) {
	var out []Binding
	for _, f := range snap.FactsOf(step.Rel) {
		*steps++
		if *steps > budget.MaxSteps {
			return nil, &BudgetError{Kind: "steps", Limit: budget.MaxSteps}
		}
		from := f.Fields[0]
		to := f.Fields[len(f.Fields)-1]
		b := Binding{}
		if !bindEndpoint(snap, b, step.From, from) {
			continue
		}
		if !bindEndpoint(snap, b, step.To, to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// bindEndpoint binds name to value, treating names that are themselves
// known nodes as constants.
func bindEndpoint(snap *pathdb.Snapshot, b Binding, name, value string) bool {
	if snap.Node(name) != nil {
		return name == value
	}
	if prev, ok := b[name]; ok {
		return prev == value
	}
	b[name] = value
	return true
}

func joinBindings(left, right []Binding, steps *int, budget Budget) ([]Binding, error) {
	var out []Binding
	for _, l := range left {
		for _, r := range right {
			*steps++
			if *steps > budget.MaxSteps {
				return nil, &BudgetError{Kind: "steps", Limit: budget.MaxSteps}
			}
			merged := l.clone()
			ok := true
			for k, v := range r {
				if prev, bound := merged[k]; bound && prev != v {
					ok = false
					break
				}
				merged[k] = v
			}
			if ok {
				out = append(out, merged)
			}
		}
	}
	return out, nil
}

func renderBinding(b Binding) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + b[k] + ";"
	}
	return out
}

// Walk is one concrete path through the graph: the node sequence, the
// relation walked at each hop, and the fact providing each hop. The
// relation sequence is what a reachability certificate records.
type Walk struct {
	Nodes []string
	Rels  []string
	Facts []string
}

// Reachable searches for a walk from one node to another along the listed
// relations (each hop goes first field to last field). BFS with a visited
// set per root, so cycles terminate; the walk found is a shortest one and
// deterministic for a given snapshot. Returns (nil, nil) when no walk
// exists within the depth budget and the search exhausted the graph;
// returns BudgetError only when the depth cap cut the search short.
func Reachable(snap *pathdb.Snapshot, from, to string, relations []string, budget Budget) (*Walk, error) {
	budget = budget.withDefaults()
	if snap.Node(from) == nil || snap.Node(to) == nil {
		return nil, nil
	}
	parents := map[string]hop{}
	visited := map[string]bool{from: true}
	frontier := []string{from}
	truncated := false

	for depth := 0; depth < budget.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, rel := range relations {
				for _, f := range factsFrom(snap, rel, cur) {
					dst := f.Fields[len(f.Fields)-1]
					if visited[dst] {
						continue
					}
					visited[dst] = true
					parents[dst] = hop{parent: cur, rel: rel, factID: f.ID}
					if dst == to {
						return buildWalk(from, to, parents), nil
					}
					next = append(next, dst)
				}
			}
		}
		frontier = next
		if len(frontier) > 0 && depth == budget.MaxDepth-1 {
			truncated = true
		}
	}
	if truncated {
		return nil, &BudgetError{Kind: "depth", Limit: budget.MaxDepth}
	}
	return nil, nil
}

// factsFrom lists the facts of rel whose first field is node, via the
// adjacency index: O(out-degree).
func factsFrom(snap *pathdb.Snapshot, rel, node string) []*pathdb.Fact {
	schema := relationSchema(snap, rel)
	if schema == nil {
		return nil
	}
	r := schema.RelationByName(rel)
	return snap.Lookup(rel, r.Fields[0].Name, node)
}

// relationSchema finds the registered schema declaring rel.
func relationSchema(snap *pathdb.Snapshot, rel string) *ir.Schema {
	for _, f := range snap.FactsOf(rel) {
		return snap.Schema(f.Schema)
	}
	return nil
}

// hop records how BFS first reached a node.
type hop struct {
	parent string
	rel    string
	factID string
}

func buildWalk(from, to string, parents map[string]hop) *Walk {
	w := &Walk{}
	cur := to
	for cur != from {
		h := parents[cur]
		w.Nodes = append([]string{cur}, w.Nodes...)
		w.Rels = append([]string{h.rel}, w.Rels...)
		w.Facts = append([]string{h.factID}, w.Facts...)
		cur = h.parent
	}
	w.Nodes = append([]string{from}, w.Nodes...)
	return w
}
