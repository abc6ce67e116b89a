package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

const familyModule = `// kinship example
module family {
  schema People {
    type Person
    type Employee < Person
    type Context
    relation Parent(from: Person, to: Person)
    relation Grandparent(from: Person, to: Person)
    relation Knows(a: Person, b: Person) @context
    constraint key Parent(from, to)
    constraint symmetric Knows on (a, b)
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
    node bob: Employee
    node carol: Person
    node work: Context
    fact Parent(from = alice, to = bob)
    fact Parent(from = bob, to = carol)
    fact Knows(a = alice, b = carol) ctx {work}
  }
}
`

func TestParseFamilyModule(t *testing.T) {
	mod, err := Parse(familyModule)
	require.NoError(t, err)

	assert.Equal(t, "family", mod.Name)
	assert.Equal(t, familyModule, mod.Source)
	require.Len(t, mod.Schemas, 1)
	require.Len(t, mod.Theories, 1)
	require.Len(t, mod.Instances, 1)

	schema := mod.Schemas[0]
	assert.Len(t, schema.Types, 3)
	assert.Equal(t, []string{"Person"}, schema.TypeByName("Employee").Supertypes)
	knows := schema.RelationByName("Knows")
	require.NotNil(t, knows)
	assert.True(t, knows.Context)

	rule := mod.Theories[0].Rewrites[0]
	assert.Equal(t, ir.Forward, rule.Orientation)
	assert.Equal(t, "trans(step(x, Parent, y), step(y, Parent, z))", rule.LHS.Render())
	assert.Equal(t, "step(x, Grandparent, z)", rule.RHS.Render())

	inst := mod.Instances[0]
	require.Len(t, inst.Facts, 3)
	// Validation fills Fields in declared order.
	assert.Equal(t, []string{"alice", "bob"}, inst.Facts[0].Fields)
	assert.Equal(t, []string{"work"}, inst.Facts[2].Contexts)
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("module m {\n  schema S {\n    type\n  }\n}")
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Positive(t, pe.Line)
	assert.Contains(t, err.Error(), "parse error at")
}

func TestTemporalMaterializesTimeField(t *testing.T) {
	mod, err := Parse(`module m {
  schema S {
    type Person
    type Time
    relation Employed(who: Person) @temporal
  }
}`)
	require.NoError(t, err)
	rel := mod.Schemas[0].RelationByName("Employed")
	require.Len(t, rel.Fields, 2)
	assert.Equal(t, ir.Field{Name: "time", Type: "Time"}, rel.Fields[1])
}

func TestTemporalWithoutTimeType(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    relation Employed(who: Person) @temporal
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestSupertypeCycleRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type A < B
    type B < A
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestDuplicateTypeRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type A
    type A
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestClosureCarriersMustShareType(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Thing
    relation Owns(who: Person, what: Thing)
    constraint symmetric Owns on (who, what)
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "different types")
}

// A key constraint naming a field outside the closure's carrier+param set
// cannot be checked against closure-implied tuples, so the declaration is
// rejected at load time.
func TestNonCertifiableDeclarationRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Topic
    relation Likes(a: Person, b: Person, about: Topic)
    constraint key Likes(a, about)
    constraint symmetric Likes on (a, b)
  }
}`)
	require.Error(t, err)
	assert.True(t, IsNonCertifiable(err))
	var nce *NonCertifiableError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, "symmetric Likes", nce.Constraint)
	assert.Equal(t, "key Likes", nce.Conflict)
}

func TestFiberedDeclarationAccepted(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Topic
    relation Likes(a: Person, b: Person, about: Topic)
    constraint key Likes(a, about)
    constraint symmetric Likes on (a, b) param (about)
  }
}`)
	assert.NoError(t, err)
}

func TestCarrierParamOverlapRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    relation Knows(a: Person, b: Person)
    constraint symmetric Knows on (a, b) param (a)
  }
}`)
	require.Error(t, err)
	assert.True(t, IsNonCertifiable(err))
	assert.Contains(t, err.Error(), "disjoint")
}

func TestContextParamAccepted(t *testing.T) {
	// The reserved "ctx" field may fiber closure constraints on @context
	// relations even though it is not a signature field.
	_, err := Parse(`module m {
  schema S {
    type Person
    type Context
    relation Knows(a: Person, b: Person) @context
    constraint symmetric Knows on (a, b) param (ctx)
  }
}`)
	assert.NoError(t, err)
}

func TestUnknownTypingRuleRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Nat
    relation Succ(in: Nat, out: Nat)
    constraint typing triple on Succ
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "unknown typing rule")
}

func TestKnownTypingRuleAccepted(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Nat
    relation Succ(in: Nat, out: Nat)
    constraint typing succ on Succ
  }
}`)
	assert.NoError(t, err)
}

func TestRewriteEndpointMismatchRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    relation Parent(from: Person, to: Person)
    relation Sibling(a: Person, b: Person)
  }
  theory T for S {
    rewrite bad forward {
      vars { x: Person, y: Person, z: Person }
      lhs step(x, Parent, y)
      rhs step(x, Sibling, z)
    }
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "share start and end")
}

func TestTransMustMeet(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    relation Parent(from: Person, to: Person)
  }
  theory T for S {
    rewrite bad forward {
      vars { x: Person, y: Person, z: Person, w: Person }
      lhs trans(step(x, Parent, y), step(z, Parent, w))
      rhs trans(step(x, Parent, y), step(z, Parent, w))
    }
  }
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not meet")
}

func TestFactOmittingFieldRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    relation Parent(from: Person, to: Person)
  }
  instance i of S {
    node a: Person
    fact Parent(from = a)
  }
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "omits declared field")
}

func TestFactTypePartitionEnforced(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Rock
    relation Parent(from: Person, to: Person)
  }
  instance i of S {
    node a: Person
    node r: Rock
    fact Parent(from = a, to = r)
  }
}`)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestSubtypeSatisfiesFieldType(t *testing.T) {
	mod, err := Parse(`module m {
  schema S {
    type Person
    type Employee < Person
    relation Parent(from: Person, to: Person)
  }
  instance i of S {
    node a: Employee
    node b: Person
    fact Parent(from = a, to = b)
  }
}`)
	require.NoError(t, err)
	assert.Len(t, mod.Instances[0].Facts, 1)
}

func TestCtxOnNonContextRelationRejected(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Context
    relation Parent(from: Person, to: Person)
  }
  instance i of S {
    node a: Person
    node b: Person
    node c: Context
    fact Parent(from = a, to = b) ctx {c}
  }
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not annotated @context")
}

func TestContextNodeMustBeContextTyped(t *testing.T) {
	_, err := Parse(`module m {
  schema S {
    type Person
    type Context
    relation Knows(a: Person, b: Person) @context
  }
  instance i of S {
    node a: Person
    node b: Person
    fact Knows(a = a, b = b) ctx {a}
  }
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not of type Context")
}

func TestParsePathTermStandalone(t *testing.T) {
	term, err := ParsePathTerm("trans(step(a, R, b), inv(step(c, S, b)))")
	require.NoError(t, err)
	assert.Equal(t, "trans(step(a, R, b), inv(step(c, S, b)))", term.Render())

	_, err = ParsePathTerm("loop(a)")
	assert.Error(t, err)
	_, err = ParsePathTerm("step(a, R, b) extra")
	assert.Error(t, err)
}
