package ledger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/ledger"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

const moduleSource = `module family {
  schema People {
    type Person
    relation Parent(from: Person, to: Person)
  }
  instance base of People {
    node alice: Person
    node bob: Person
    fact Parent(from = alice, to = bob)
  }
}
`

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = ledger.Open(path)
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestRecordAndListImports(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	mod, err := loader.Parse(moduleSource)
	require.NoError(t, err)
	db := pathdb.New()
	res, err := db.ImportInstance(mod, mod.Instances[0], pathdb.Options{Mode: pathdb.Strict, Plane: "accepted"})
	require.NoError(t, err)

	modDigest := digest.Module(mod.Source)
	require.NoError(t, l.RecordImport(ctx, modDigest, mod.Name, "base", pathdb.Strict, res))
	// Same transaction again is a no-op.
	require.NoError(t, l.RecordImport(ctx, modDigest, mod.Name, "base", pathdb.Strict, res))

	records, err := l.Imports(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, res.Txn, r.Txn)
	assert.Equal(t, modDigest, r.ModuleDigest)
	assert.Equal(t, "family", r.ModuleName)
	assert.Equal(t, "base", r.Instance)
	assert.Equal(t, "accepted", r.Plane)
	assert.Equal(t, "strict", r.Mode)
	assert.Equal(t, 1, r.Added)
	assert.Equal(t, 0, r.Rejected)
	assert.NotEmpty(t, r.RecordedAt)

	// Filtering by an unknown digest returns nothing.
	records, err = l.Imports(ctx, "fnv1a64:0000000000000000")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordAndFetchCertificate(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	mod, err := loader.Parse(moduleSource)
	require.NoError(t, err)
	db := pathdb.New()
	_, err = db.ImportInstance(mod, mod.Instances[0], pathdb.Options{Mode: pathdb.Strict})
	require.NoError(t, err)
	c, err := cert.EmitReachability(mod, db.Snapshot(), "alice", "bob", []string{"Parent"}, engine.Budget{})
	require.NoError(t, err)

	certDigest, err := l.RecordCertificate(ctx, c)
	require.NoError(t, err)
	again, err := l.RecordCertificate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, certDigest, again)

	records, err := l.Certificates(ctx, c.Anchor.ModuleDigest)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, cert.KindReachability, records[0].Kind)

	rec, err := l.Certificate(ctx, certDigest)
	require.NoError(t, err)
	require.NotNil(t, rec)
	// The stored body re-verifies on its own.
	result := cert.NewVerifier().Verify(mod.Source, rec.Body)
	assert.True(t, result.Verified, result.Reason)

	rec, err = l.Certificate(ctx, "fnv1a64:ffffffffffffffff")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordAndListSnapshots(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	modDigest := digest.Module(moduleSource)
	exportText := "// axiograph export v1\nmodule family {\n}\n"
	exportDigest, err := l.RecordSnapshot(ctx, modDigest, exportText)
	require.NoError(t, err)
	assert.Equal(t, digest.Module(exportText), exportDigest)

	again, err := l.RecordSnapshot(ctx, modDigest, exportText)
	require.NoError(t, err)
	assert.Equal(t, exportDigest, again)

	records, err := l.Snapshots(ctx, modDigest)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, exportText, records[0].Body)
	assert.Equal(t, modDigest, records[0].ModuleDigest)
}
