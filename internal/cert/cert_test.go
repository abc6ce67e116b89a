package cert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
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
    fact Parent(from = alice, to = bob)
    fact Parent(from = bob, to = carol)
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

// verify marshals the certificate and runs the reference verifier against
// the given module text.
func verify(t *testing.T, c *cert.Certificate, moduleText string) cert.VerifyResult {
	t.Helper()
	data, err := c.Marshal()
	require.NoError(t, err)
	return cert.NewVerifier().Verify(moduleText, data)
}

func TestReachabilityRoundTrip(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitReachability(mod, snap, "alice", "carol", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)
	assert.Equal(t, cert.KindReachability, c.Kind)
	assert.Len(t, c.Anchor.FactIDs, 2)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
	assert.Empty(t, res.Reason)
}

func TestReachabilityNoWalkIsNotCertified(t *testing.T) {
	mod, snap := kinship(t)
	_, err := cert.EmitReachability(mod, snap, "carol", "alice", []string{"Parent"}, engine.Budget{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no walk")
}

func TestAnchorMismatchFailsClosed(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitReachability(mod, snap, "alice", "carol", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)

	res := verify(t, c, mod.Source+"// tampered\n")
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "anchor mismatch")
}

func TestTamperedWalkFailsClosed(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitReachability(mod, snap, "alice", "carol", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)

	// Claim a walk ending somewhere it does not.
	c.Payload["to"] = ir.String("bob")
	res := verify(t, c, mod.Source)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "endpoints")
}

func TestTamperedAnchoredFactFailsClosed(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitResolution(mod, snap, "Parent", "from", "alice")
	require.NoError(t, err)
	require.Len(t, c.Anchor.FactIDs, 1)

	c.Anchor.FactIDs[0] = "factfnv1a64:0000000000000000"
	res := verify(t, c, mod.Source)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "not present")
}

func TestResolutionRoundTrip(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitResolution(mod, snap, "Parent", "from", "alice")
	require.NoError(t, err)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)

	// An empty lookup is still certifiable.
	c, err = cert.EmitResolution(mod, snap, "Parent", "from", "carol")
	require.NoError(t, err)
	assert.Empty(t, c.Anchor.FactIDs)
	res = verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
}

func TestTamperedResolutionFailsClosed(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitResolution(mod, snap, "Parent", "from", "alice")
	require.NoError(t, err)

	// Claim the lookup was for a different value than the fact list shows.
	c.Payload["value"] = ir.String("bob")
	res := verify(t, c, mod.Source)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "differs from claim")
}

func TestNormalizePathRoundTrip(t *testing.T) {
	mod, _ := kinship(t)
	c, err := cert.EmitNormalizePath(mod, "People",
		term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))"), engine.Budget{})
	require.NoError(t, err)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
}

func TestTamperedNormalFormFailsClosed(t *testing.T) {
	mod, _ := kinship(t)
	c, err := cert.EmitNormalizePath(mod, "People",
		term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))"), engine.Budget{})
	require.NoError(t, err)

	c.Payload["normal_form"] = ir.TermToCanonical(term(t, "step(alice, Grandparent, bob)"))
	res := verify(t, c, mod.Source)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "differs from claim")
}

func TestRewriteDerivationRoundTrip(t *testing.T) {
	mod, _ := kinship(t)
	in := term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))")
	c, err := cert.EmitNormalizeDerivation(mod, "People", in, engine.Budget{})
	require.NoError(t, err)
	assert.Equal(t, cert.KindRewriteDerivation, c.Kind)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
}

func TestUnreplayableDerivationIsNotCertified(t *testing.T) {
	mod, _ := kinship(t)
	_, err := cert.EmitRewriteDerivation(mod, "People",
		term(t, "step(alice, Grandparent, carol)"),
		[]engine.DerivStep{{Rule: "grandparent"}})
	require.Error(t, err)
	assert.True(t, engine.IsReplayError(err))
}

func TestPathEquivRoundTrip(t *testing.T) {
	mod, _ := kinship(t)
	c, err := cert.EmitPathEquiv(mod, "People",
		term(t, "trans(step(alice, Parent, bob), step(bob, Parent, carol))"),
		term(t, "step(alice, Grandparent, carol)"),
		engine.Budget{})
	require.NoError(t, err)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
}

func TestPathEquivRefusesNonEquivalentTerms(t *testing.T) {
	mod, _ := kinship(t)
	_, err := cert.EmitPathEquiv(mod, "People",
		term(t, "step(alice, Grandparent, carol)"),
		term(t, "step(alice, Grandparent, bob)"),
		engine.Budget{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not equivalent")
}

func TestDeltaFRoundTrip(t *testing.T) {
	mod, snap := kinship(t)
	mapping := cert.DeltaFMapping{
		SourceRelation: "ParentOf",
		TargetRelation: "Parent",
		FieldMap:       map[string]string{"parent": "from", "child": "to"},
	}
	c, err := cert.EmitDeltaF(mod, snap, mapping)
	require.NoError(t, err)
	assert.Len(t, c.Anchor.FactIDs, 2)

	res := verify(t, c, mod.Source)
	assert.True(t, res.Verified, res.Reason)
}

func TestTamperedDeltaFTupleFailsClosed(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitDeltaF(mod, snap, cert.DeltaFMapping{
		SourceRelation: "ParentOf",
		TargetRelation: "Parent",
		FieldMap:       map[string]string{"parent": "from", "child": "to"},
	})
	require.NoError(t, err)

	tuples := c.Payload["tuples"].(ir.Array)
	tuples[0].(ir.Object)["fields"].(ir.Object)["parent"] = ir.String("carol")
	res := verify(t, c, mod.Source)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Reason, "differs from claim")
}

func TestMarshalIsByteStable(t *testing.T) {
	mod, snap := kinship(t)
	c, err := cert.EmitReachability(mod, snap, "alice", "carol", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)
	a, err := c.Marshal()
	require.NoError(t, err)
	b, err := c.Marshal()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidateShapeRejectsGarbage(t *testing.T) {
	assert.Error(t, cert.ValidateShape([]byte("not json")))
	assert.Error(t, cert.ValidateShape([]byte(`{"kind":"bogus"}`)))
	assert.Error(t, cert.ValidateShape([]byte(`{"kind":"resolution","version":"1","anchor":{"module_digest":"nope"},"payload":{}}`)))
}

func TestParseRejectsMalformedDigests(t *testing.T) {
	_, err := cert.Parse([]byte(`{"kind":"resolution","version":"1","anchor":{"module_digest":"fnv1a64:XYZ"},"payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed module digest")
}
