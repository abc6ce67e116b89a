package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/cli"
	"github.com/josephjohncox/axiograph-sub003/internal/digest"
)

const familySource = `module family {
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

// runCLI executes the root command with -C pointing at dir and returns the
// combined output.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-C", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeModule(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestParseCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "family.axg", familySource)

	out, err := runCLI(t, dir, "--format", "json", "parse", "family.axg")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			Name      string `json:"name"`
			Digest    string `json:"digest"`
			Schemas   int    `json:"schemas"`
			Instances int    `json:"instances"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "family", resp.Data[0].Name)
	assert.Equal(t, digest.Module(familySource), resp.Data[0].Digest)
	assert.Equal(t, 1, resp.Data[0].Schemas)
	assert.Equal(t, 1, resp.Data[0].Instances)
}

func TestParseCommandRejectsBrokenModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "broken.axg", "module m {\n  schema {\n}")

	_, err := runCLI(t, dir, "parse", "broken.axg")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func TestParseCommandMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "parse", "nope.axg")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func TestInvalidFormatRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "--format", "xml", "version")
	assert.Error(t, err)
}

func TestQueryReachability(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "family.axg", familySource)

	out, err := runCLI(t, dir, "query", "family.axg", "--from", "alice", "--to", "carol", "--rel", "Parent")
	require.NoError(t, err)
	assert.Contains(t, out, "walk found:")
	assert.Contains(t, out, "alice -[Parent]-> bob")
}

func TestQueryTermBindings(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "family.axg", familySource)

	out, err := runCLI(t, dir, "query", "family.axg", "--term", "step(x, Parent, y)")
	require.NoError(t, err)
	assert.Contains(t, out, "2 result(s):")
	assert.Contains(t, out, "x=alice, y=bob")
}

func TestQueryNeedsExactlyOneMode(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "family.axg", familySource)

	_, err := runCLI(t, dir, "query", "family.axg")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func TestCertifyVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	modPath := writeModule(t, dir, "family.axg", familySource)
	certPath := filepath.Join(dir, "walk.cert.json")

	_, err := runCLI(t, dir, "certify", modPath,
		"--kind", "reachability",
		"--from", "alice", "--to", "carol", "--rel", "Parent",
		"--out", certPath)
	require.NoError(t, err)

	out, err := runCLI(t, dir, "verify", modPath, certPath)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")
}

func TestVerifyTamperedModuleFails(t *testing.T) {
	dir := t.TempDir()
	modPath := writeModule(t, dir, "family.axg", familySource)
	certPath := filepath.Join(dir, "walk.cert.json")

	_, err := runCLI(t, dir, "certify", modPath,
		"--kind", "reachability",
		"--from", "alice", "--to", "carol", "--rel", "Parent",
		"--out", certPath)
	require.NoError(t, err)

	tampered := writeModule(t, dir, "tampered.axg", familySource+"// edited\n")
	out, err := runCLI(t, dir, "verify", tampered, certPath)
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
	assert.Contains(t, out, "not verified")
	assert.Contains(t, out, "anchor mismatch")
}

func TestExitErrorCodes(t *testing.T) {
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(cli.NewExitError(cli.ExitFailure, "nope")))
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(assert.AnError))

	wrapped := cli.WrapExitError(cli.ExitFailure, "outer", assert.AnError)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "outer")
}
