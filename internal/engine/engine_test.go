package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

const kinshipSource = `module family {
  schema People {
    type Person
    relation Parent(from: Person, to: Person)
    relation Grandparent(from: Person, to: Person)
  }
  theory Kinship for People {
    rewrite grandparent forward {
      vars { x: Person, y: Person, z: Person }
      lhs trans(step(x, Parent, y), step(y, Parent, z))
      rhs step(x, Grandparent, z)
    }
  }
  instance base of People {
    node alice: Person
    node bob: Person
    node carol: Person
    node dave: Person
    fact Parent(from = alice, to = bob)
    fact Parent(from = bob, to = carol)
    fact Parent(from = carol, to = dave)
  }
}
`

func kinship(t *testing.T) (*ir.Module, *pathdb.Snapshot) {
	t.Helper()
	mod, err := loader.Parse(kinshipSource)
	require.NoError(t, err)
	db := pathdb.New()
	_, err = db.ImportModule(mod, pathdb.Options{Mode: pathdb.Strict})
	require.NoError(t, err)
	return mod, db.Snapshot()
}

func term(t *testing.T, text string) ir.PathTerm {
	t.Helper()
	pt, err := loader.ParsePathTerm(text)
	require.NoError(t, err)
	return pt
}

func TestEvalStepVariables(t *testing.T) {
	_, snap := kinship(t)
	bindings, err := engine.Eval(snap, term(t, "step(x, Parent, y)"), engine.Budget{})
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	// Sorted by rendered binding.
	assert.Equal(t, engine.Binding{"x": "alice", "y": "bob"}, bindings[0])
	assert.Equal(t, engine.Binding{"x": "bob", "y": "carol"}, bindings[1])
	assert.Equal(t, engine.Binding{"x": "carol", "y": "dave"}, bindings[2])
}

func TestEvalStepConstantEndpoint(t *testing.T) {
	_, snap := kinship(t)
	// "alice" names a node, so it is a constant, not a variable.
	bindings, err := engine.Eval(snap, term(t, "step(alice, Parent, y)"), engine.Budget{})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, engine.Binding{"y": "bob"}, bindings[0])
}

func TestEvalTransJoinsOnSharedName(t *testing.T) {
	_, snap := kinship(t)
	bindings, err := engine.Eval(snap, term(t, "trans(step(x, Parent, y), step(y, Parent, z))"), engine.Budget{})
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, engine.Binding{"x": "alice", "y": "bob", "z": "carol"}, bindings[0])
	assert.Equal(t, engine.Binding{"x": "bob", "y": "carol", "z": "dave"}, bindings[1])
}

func TestEvalRejectsNonMeetingTrans(t *testing.T) {
	_, snap := kinship(t)
	_, err := engine.Eval(snap, term(t, "trans(step(a, Parent, b), step(c, Parent, d))"), engine.Budget{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not meet")

	// Inversion flips endpoints, so the composition below meets at y.
	bindings, err := engine.Eval(snap, term(t, "trans(step(x, Parent, y), inv(step(z, Parent, y)))"), engine.Budget{})
	require.NoError(t, err)
	assert.NotEmpty(t, bindings)
}

func TestEvalInvSameEdgeSet(t *testing.T) {
	_, snap := kinship(t)
	bindings, err := engine.Eval(snap, term(t, "inv(step(x, Parent, y))"), engine.Budget{})
	require.NoError(t, err)
	assert.Len(t, bindings, 3)
}

func TestEvalBudgets(t *testing.T) {
	_, snap := kinship(t)
	_, err := engine.Eval(snap, term(t, "step(x, Parent, y)"), engine.Budget{MaxSteps: 1})
	require.Error(t, err)
	assert.True(t, engine.IsBudgetError(err))

	_, err = engine.Eval(snap, term(t, "step(x, Parent, y)"), engine.Budget{MaxResults: 2})
	require.Error(t, err)
	assert.True(t, engine.IsBudgetError(err))
}

func TestReachableFindsShortestWalk(t *testing.T) {
	_, snap := kinship(t)
	walk, err := engine.Reachable(snap, "alice", "dave", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)
	require.NotNil(t, walk)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, walk.Nodes)
	assert.Equal(t, []string{"Parent", "Parent", "Parent"}, walk.Rels)
	require.Len(t, walk.Facts, 3)
	for _, id := range walk.Facts {
		assert.NotNil(t, snap.Fact(id))
	}
}

func TestReachableNoWalk(t *testing.T) {
	_, snap := kinship(t)
	// Parent edges only run downward.
	walk, err := engine.Reachable(snap, "dave", "alice", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)
	assert.Nil(t, walk)

	walk, err = engine.Reachable(snap, "ghost", "alice", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)
	assert.Nil(t, walk)
}

func TestReachableDepthBudget(t *testing.T) {
	_, snap := kinship(t)
	// Two hops fit in a depth budget of two.
	walk, err := engine.Reachable(snap, "alice", "carol", []string{"Parent"}, engine.Budget{MaxDepth: 2})
	require.NoError(t, err)
	require.NotNil(t, walk)
	assert.Len(t, walk.Rels, 2)

	// Three hops do not; the cap cutting the search short is an error,
	// not an empty result.
	_, err = engine.Reachable(snap, "alice", "dave", []string{"Parent"}, engine.Budget{MaxDepth: 2})
	require.Error(t, err)
	assert.True(t, engine.IsBudgetError(err))
}

func TestNormalizeGrandparent(t *testing.T) {
	mod, _ := kinship(t)
	rules := engine.RulesOf(mod, "People")
	require.Len(t, rules, 1)

	nf, deriv, err := engine.Normalize(term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))"), rules, engine.Budget{})
	require.NoError(t, err)
	assert.Equal(t, "step(alice, Grandparent, carol)", nf.Render())
	require.Len(t, deriv, 1)
	step := deriv[0]
	assert.Equal(t, "grandparent", step.Rule)
	assert.Equal(t, "", step.Pos.String())
	assert.False(t, step.Backward)
	assert.Equal(t, map[string]string{"x": "alice", "y": "bob", "z": "carol"}, step.Bindings)
}

func TestNormalizeAlreadyNormal(t *testing.T) {
	mod, _ := kinship(t)
	rules := engine.RulesOf(mod, "People")
	in := term(t, "step(alice, Grandparent, carol)")
	nf, deriv, err := engine.Normalize(in, rules, engine.Budget{})
	require.NoError(t, err)
	assert.True(t, ir.TermsEqual(in, nf))
	assert.Empty(t, deriv)
}

func TestNormalizeRunawayRuleSet(t *testing.T) {
	mod, err := loader.Parse(`module m {
  schema S {
    type Person
    relation Parent(from: Person, to: Person)
  }
  theory T for S {
    rewrite flip forward {
      vars { x: Person, y: Person }
      lhs step(x, Parent, y)
      rhs inv(step(y, Parent, x))
    }
  }
}`)
	require.NoError(t, err)
	rules := engine.RulesOf(mod, "S")
	_, _, err = engine.Normalize(term(t, "step(a, Parent, b)"), rules, engine.Budget{MaxSteps: 16})
	require.Error(t, err)
	assert.True(t, engine.IsBudgetError(err))
}

func TestEquivalent(t *testing.T) {
	mod, _ := kinship(t)
	rules := engine.RulesOf(mod, "People")

	eq, nf, err := engine.Equivalent(
		term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))"),
		term(t, "step(alice, Grandparent, carol)"),
		rules, engine.Budget{})
	require.NoError(t, err)
	assert.True(t, eq)
	assert.Equal(t, "step(alice, Grandparent, carol)", nf.Render())

	eq, nf, err = engine.Equivalent(
		term(t, "step(alice, Grandparent, carol)"),
		term(t, "step(alice, Grandparent, dave)"),
		rules, engine.Budget{})
	require.NoError(t, err)
	assert.False(t, eq)
	assert.Nil(t, nf)
}

func TestReplayReproducesNormalForm(t *testing.T) {
	mod, _ := kinship(t)
	rules := engine.RulesOf(mod, "People")
	in := term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))")

	nf, deriv, err := engine.Normalize(in, rules, engine.Budget{})
	require.NoError(t, err)

	replayed, err := engine.Replay(in, rules, deriv)
	require.NoError(t, err)
	assert.True(t, ir.TermsEqual(nf, replayed))
}

func TestReplayRejectsTamperedDerivation(t *testing.T) {
	mod, _ := kinship(t)
	rules := engine.RulesOf(mod, "People")
	in := term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))")
	_, deriv, err := engine.Normalize(in, rules, engine.Budget{})
	require.NoError(t, err)
	require.Len(t, deriv, 1)

	tampered := engine.DerivStep{
		Rule:     deriv[0].Rule,
		Pos:      deriv[0].Pos,
		Bindings: map[string]string{"x": "bob"},
	}
	_, err = engine.Replay(in, rules, []engine.DerivStep{tampered})
	require.Error(t, err)
	assert.True(t, engine.IsReplayError(err))

	_, err = engine.Replay(in, rules, []engine.DerivStep{{Rule: "nope"}})
	require.Error(t, err)
	assert.True(t, engine.IsReplayError(err))

	_, err = engine.Replay(in, rules, []engine.DerivStep{{Rule: "grandparent", Backward: true}})
	require.Error(t, err)
	assert.True(t, engine.IsReplayError(err))
}

func TestReplayBackwardBindsFreshVariable(t *testing.T) {
	mod, err := loader.Parse(`module m {
  schema S {
    type Person
    relation Parent(from: Person, to: Person)
    relation Grandparent(from: Person, to: Person)
  }
  theory T for S {
    rewrite grandparent bidirectional {
      vars { x: Person, y: Person, z: Person }
      lhs trans(step(x, Parent, y), step(y, Parent, z))
      rhs step(x, Grandparent, z)
    }
  }
}`)
	require.NoError(t, err)
	rules := engine.RulesOf(mod, "S")

	// Unfolding the rhs does not bind y; the recorded bindings must
	// supply it.
	out, err := engine.Replay(term(t, "step(alice, Grandparent, carol)"), rules, []engine.DerivStep{{
		Rule:     "grandparent",
		Backward: true,
		Bindings: map[string]string{"y": "bob"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))", out.Render())

	// Without the middle binding the unfold cannot ground the lhs.
	_, err = engine.Replay(term(t, "step(alice, Grandparent, carol)"), rules, []engine.DerivStep{{
		Rule:     "grandparent",
		Backward: true,
	}})
	require.Error(t, err)
	assert.True(t, engine.IsReplayError(err))
}
