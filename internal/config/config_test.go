package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephjohncox/axiograph-sub003/internal/config"
	"github.com/josephjohncox/axiograph-sub003/internal/engine"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "axiograph.db"), cfg.LedgerPath)
	assert.Empty(t, cfg.Plane)
	assert.Empty(t, cfg.Modules)
	assert.Equal(t, engine.DefaultBudget, cfg.Budget)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "axiograph.yaml"), []byte(`
ledger_path: facts.db
plane: accepted
modules:
  - "modules/**/*.axg"
budget:
  max_depth: 8
  max_steps: 500
  max_results: 100
`), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "facts.db"), cfg.LedgerPath)
	assert.Equal(t, "accepted", cfg.Plane)
	assert.Equal(t, []string{"modules/**/*.axg"}, cfg.Modules)
	assert.Equal(t, engine.Budget{MaxDepth: 8, MaxSteps: 500, MaxResults: 100}, cfg.Budget)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "axiograph.yaml"), []byte("ledger_path: [unterminated"), 0o644))
	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestExpandModules(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "modules", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	for _, name := range []string{
		filepath.Join(dir, "root.axg"),
		filepath.Join(dir, "modules", "a.axg"),
		filepath.Join(sub, "b.axg"),
		filepath.Join(sub, "notes.txt"),
	} {
		require.NoError(t, os.WriteFile(name, []byte("module m {}\n"), 0o644))
	}

	files, err := config.ExpandModules(dir, []string{"modules/**/*.axg"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "modules", "a.axg"),
		filepath.Join(sub, "b.axg"),
	}, files)

	// Literal paths pass through even when they match nothing as a glob,
	// and duplicates collapse.
	files, err = config.ExpandModules(dir, []string{"root.axg", "root.axg", "modules/**/*.axg"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "modules", "a.axg"),
		filepath.Join(sub, "b.axg"),
		filepath.Join(dir, "root.axg"),
	}, files)
}

func TestExpandModulesMissingLiteralFallsThrough(t *testing.T) {
	dir := t.TempDir()
	// A path that neither exists nor matches anything expands to nothing;
	// the caller reports the read failure.
	files, err := config.ExpandModules(dir, []string{"missing.axg"})
	require.NoError(t, err)
	assert.Empty(t, files)
}
