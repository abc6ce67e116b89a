package engine

import (
	"fmt"
	"sort"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// DerivStep is one recorded rewrite application: which rule, at which
// position, in which direction, under which variable bindings. Bindings are
// recorded because a backward application of a bidirectional rule may
// introduce variables the matched side does not bind (the middle node of a
// composition, say); replay must not have to search for them.
type DerivStep struct {
	Rule     string
	Pos      ir.TermPos
	Backward bool
	Bindings map[string]string
}

// Normalize rewrites the term to fixpoint, always applying rules left to
// right (a bidirectional rule's backward direction is only used in explicit
// derivations). When several applications are possible, the tie-break is
// fixed and part of the certified contract:
//
//  1. rule declaration order, then
//  2. lexical order of the matched subterm's canonical rendering, then
//  3. lexical order of the position.
//
// This makes the normal form unique for a confluent rule set and
// reproducible across implementations. Returns the normal form and the
// derivation taken; a rule set that keeps rewriting past the step budget
// surfaces as BudgetError.
func Normalize(term ir.PathTerm, rules []*ir.RewriteRule, budget Budget) (ir.PathTerm, []DerivStep, error) {
	budget = budget.withDefaults()
	var deriv []DerivStep
	cur := term
	for steps := 0; ; steps++ {
		if steps >= budget.MaxSteps {
			return nil, nil, &BudgetError{Kind: "steps", Limit: budget.MaxSteps}
		}
		match := firstMatch(cur, rules)
		if match == nil {
			return cur, deriv, nil
		}
		next, err := applyAt(cur, match.rule, match.pos, false, match.bindings)
		if err != nil {
			return nil, nil, err
		}
		deriv = append(deriv, DerivStep{
			Rule:     match.rule.Name,
			Pos:      match.pos,
			Bindings: match.bindings,
		})
		cur = next
	}
}

// Equivalent reports whether two terms normalize to the same canonical
// form, returning the shared normal form when they do.
func Equivalent(a, b ir.PathTerm, rules []*ir.RewriteRule, budget Budget) (bool, ir.PathTerm, error) {
	na, _, err := Normalize(a, rules, budget)
	if err != nil {
		return false, nil, err
	}
	nb, _, err := Normalize(b, rules, budget)
	if err != nil {
		return false, nil, err
	}
	if ir.TermsEqual(na, nb) {
		return true, na, nil
	}
	return false, nil, nil
}

// Replay re-applies a stored derivation and returns the resulting term. A
// step that no longer matches, or whose recorded bindings disagree with the
// term, is a ReplayError: the derivation does not reproduce its claim.
func Replay(term ir.PathTerm, rules []*ir.RewriteRule, steps []DerivStep) (ir.PathTerm, error) {
	byName := make(map[string]*ir.RewriteRule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}
	cur := term
	for i, step := range steps {
		rule := byName[step.Rule]
		if rule == nil {
			return nil, &ReplayError{Step: i, Rule: step.Rule, Message: "rule not declared"}
		}
		if step.Backward && rule.Orientation != ir.Bidirectional {
			return nil, &ReplayError{Step: i, Rule: step.Rule, Message: "backward application of a forward-only rule"}
		}
		next, err := applyAt(cur, rule, step.Pos, step.Backward, step.Bindings)
		if err != nil {
			return nil, &ReplayError{Step: i, Rule: step.Rule, Message: err.Error()}
		}
		cur = next
	}
	return cur, nil
}

// candidate is one possible rule application.
type candidate struct {
	rule     *ir.RewriteRule
	pos      ir.TermPos
	rendered string
	bindings map[string]string
}

// firstMatch picks the unique next application under the documented
// tie-break, or nil when the term is in normal form.
func firstMatch(term ir.PathTerm, rules []*ir.RewriteRule) *candidate {
	for _, rule := range rules {
		var candidates []candidate
		ir.WalkPositions(term, func(sub ir.PathTerm, pos ir.TermPos) {
			bindings, ok := matchPattern(rule.LHS, sub, rule)
			if !ok {
				return
			}
			// Forward application must ground the rhs completely.
			if !coversVars(rule.RHS, bindings, rule) {
				return
			}
			candidates = append(candidates, candidate{
				rule:     rule,
				pos:      pos,
				rendered: sub.Render(),
				bindings: bindings,
			})
		})
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].rendered != candidates[j].rendered {
				return candidates[i].rendered < candidates[j].rendered
			}
			return candidates[i].pos.String() < candidates[j].pos.String()
		})
		return &candidates[0]
	}
	return nil
}

// applyAt rewrites the subterm at pos. Forward substitutes the rhs under
// the lhs match; backward is the reverse (bidirectional rules only, checked
// by callers). The provided bindings must agree with the match and must
// cover every variable of the produced side.
func applyAt(term ir.PathTerm, rule *ir.RewriteRule, pos ir.TermPos, backward bool, bindings map[string]string) (ir.PathTerm, error) {
	sub, err := ir.SubtermAt(term, pos)
	if err != nil {
		return nil, err
	}
	pattern, produce := rule.LHS, rule.RHS
	if backward {
		pattern, produce = rule.RHS, rule.LHS
	}
	matched, ok := matchPattern(pattern, sub, rule)
	if !ok {
		return nil, fmt.Errorf("rule %s does not match at position %q", rule.Name, pos.String())
	}
	merged := make(map[string]string, len(matched)+len(bindings))
	for k, v := range matched {
		merged[k] = v
	}
	for k, v := range bindings {
		if prev, bound := merged[k]; bound && prev != v {
			return nil, fmt.Errorf("rule %s binding %s=%s contradicts matched %s", rule.Name, k, v, prev)
		}
		merged[k] = v
	}
	if !coversVars(produce, merged, rule) {
		return nil, fmt.Errorf("rule %s application leaves variables unbound", rule.Name)
	}
	replacement := substitute(produce, merged, rule)
	return ir.ReplaceAt(term, pos, replacement)
}

// matchPattern unifies a rule side against a concrete subterm. Rule
// variables bind to whatever endpoint name the subterm carries; all other
// names and all relation names must match literally.
func matchPattern(pattern, sub ir.PathTerm, rule *ir.RewriteRule) (map[string]string, bool) {
	bindings := map[string]string{}
	if !unify(pattern, sub, rule, bindings) {
		return nil, false
	}
	return bindings, true
}

func unify(pattern, sub ir.PathTerm, rule *ir.RewriteRule, bindings map[string]string) bool {
	switch pat := pattern.(type) {
	case ir.Step:
		s, ok := sub.(ir.Step)
		if !ok || s.Rel != pat.Rel {
			return false
		}
		return unifyName(pat.From, s.From, rule, bindings) && unifyName(pat.To, s.To, rule, bindings)
	case ir.Trans:
		s, ok := sub.(ir.Trans)
		if !ok {
			return false
		}
		return unify(pat.P1, s.P1, rule, bindings) && unify(pat.P2, s.P2, rule, bindings)
	case ir.Inv:
		s, ok := sub.(ir.Inv)
		if !ok {
			return false
		}
		return unify(pat.P, s.P, rule, bindings)
	}
	return false
}

func unifyName(patName, subName string, rule *ir.RewriteRule, bindings map[string]string) bool {
	if !isRuleVar(patName, rule) {
		return patName == subName
	}
	if prev, bound := bindings[patName]; bound {
		return prev == subName
	}
	bindings[patName] = subName
	return true
}

func isRuleVar(name string, rule *ir.RewriteRule) bool {
	for _, v := range rule.Vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// coversVars reports whether every rule variable occurring in the term is
// bound.
func coversVars(term ir.PathTerm, bindings map[string]string, rule *ir.RewriteRule) bool {
	covered := true
	ir.WalkPositions(term, func(sub ir.PathTerm, _ ir.TermPos) {
		if s, ok := sub.(ir.Step); ok {
			for _, name := range []string{s.From, s.To} {
				if isRuleVar(name, rule) {
					if _, bound := bindings[name]; !bound {
						covered = false
					}
				}
			}
		}
	})
	return covered
}

// substitute instantiates a rule side under bindings.
func substitute(term ir.PathTerm, bindings map[string]string, rule *ir.RewriteRule) ir.PathTerm {
	switch node := term.(type) {
	case ir.Step:
		out := node
		if isRuleVar(node.From, rule) {
			out.From = bindings[node.From]
		}
		if isRuleVar(node.To, rule) {
			out.To = bindings[node.To]
		}
		return out
	case ir.Trans:
		return ir.Trans{
			P1: substitute(node.P1, bindings, rule),
			P2: substitute(node.P2, bindings, rule),
		}
	case ir.Inv:
		return ir.Inv{P: substitute(node.P, bindings, rule)}
	}
	return term
}

// RulesOf flattens a module's theories for a schema into one declaration
// ordered rule list, the order Normalize's tie-break uses.
func RulesOf(mod *ir.Module, schemaName string) []*ir.RewriteRule {
	var out []*ir.RewriteRule
	for _, th := range mod.Theories {
		if th.Schema == schemaName {
			out = append(out, th.Rewrites...)
		}
	}
	return out
}
