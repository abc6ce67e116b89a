package snapshot_test

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
	"github.com/josephjohncox/axiograph-sub003/internal/snapshot"
)

const familySource = `module family {
  schema People {
    type Person
    type Employee < Person
    type Context
    relation Parent(from: Person, to: Person)
    relation Grandparent(from: Person, to: Person)
    relation Knows(a: Person, b: Person) @context
    constraint key Parent(from, to)
    constraint symmetric Knows on (a, b) param (ctx)
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
    node work: Context
    fact Parent(from = alice, to = bob)
    fact Knows(a = alice, b = bob) ctx {work}
  }
  instance extra of People {
    node bob: Employee
    node carol: Person
    fact Parent(from = bob, to = carol)
  }
}
`

func build(t *testing.T, src string) (*ir.Module, *pathdb.Snapshot) {
	t.Helper()
	mod, err := loader.Parse(src)
	require.NoError(t, err)
	db := pathdb.New()
	_, err = db.ImportModule(mod, pathdb.Options{Mode: pathdb.Strict})
	require.NoError(t, err)
	return mod, db.Snapshot()
}

func TestExportGolden(t *testing.T) {
	mod, snap := build(t, familySource)
	text, err := snapshot.Export(mod, snap)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "export_family", []byte(text))
}

func TestExportFlattensInstancesSorted(t *testing.T) {
	mod, snap := build(t, familySource)
	text, err := snapshot.Export(mod, snap)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, snapshot.Header+"\n"))
	// One instance per schema, regardless of how many were imported.
	assert.Equal(t, 1, strings.Count(text, "instance "))
	assert.Contains(t, text, "instance export_People of People {")

	// Facts sort by rendered content, so the Knows tuple precedes both
	// Parent tuples.
	knows := strings.Index(text, "fact Knows")
	parent := strings.Index(text, "fact Parent")
	require.GreaterOrEqual(t, knows, 0)
	require.GreaterOrEqual(t, parent, 0)
	assert.Less(t, knows, parent)
}

func TestExportRoundTripIsByteStable(t *testing.T) {
	mod, snap := build(t, familySource)
	first, err := snapshot.Export(mod, snap)
	require.NoError(t, err)

	mod2, snap2 := build(t, first)
	second, err := snapshot.Export(mod2, snap2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d1, err := snapshot.Digest(mod, snap)
	require.NoError(t, err)
	d2, err := snapshot.Digest(mod2, snap2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.True(t, digest.IsModuleDigest(d1))
}

func TestExportPreservesFactsAndContexts(t *testing.T) {
	mod, snap := build(t, familySource)
	text, err := snapshot.Export(mod, snap)
	require.NoError(t, err)

	_, snap2 := build(t, text)
	assert.Len(t, snap2.Facts(), len(snap.Facts()))
	knows := snap2.FactsOf("Knows")
	require.Len(t, knows, 1)
	assert.Equal(t, []string{"work"}, snap2.Contexts(knows[0].ID))
}
