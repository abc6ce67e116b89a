// Package config loads the optional axiograph.yaml workspace file. Core
// packages take explicit parameters; configuration exists only at the CLI
// boundary, and a missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/josephjohncox/axiograph-sub003/internal/engine"
)

const (
	configFileName = "axiograph"
	configFileType = "yaml"

	cfgKeyLedgerPath = "ledger_path"
	cfgKeyPlane      = "plane"
	cfgKeyModules    = "modules"
	cfgKeyMaxDepth   = "budget.max_depth"
	cfgKeyMaxSteps   = "budget.max_steps"
	cfgKeyMaxResults = "budget.max_results"

	defaultLedgerPath = "axiograph.db"
)

// Config is the resolved workspace configuration.
type Config struct {
	// LedgerPath is the SQLite ledger location.
	LedgerPath string
	// Plane tags imports that do not specify one.
	Plane string
	// Modules are glob patterns (doublestar syntax) of module files.
	Modules []string
	// Budget bounds path search and normalization.
	Budget engine.Budget
}

// Load reads axiograph.yaml from dir. A missing file yields defaults.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyLedgerPath, defaultLedgerPath)
	v.SetDefault(cfgKeyMaxDepth, engine.DefaultBudget.MaxDepth)
	v.SetDefault(cfgKeyMaxSteps, engine.DefaultBudget.MaxSteps)
	v.SetDefault(cfgKeyMaxResults, engine.DefaultBudget.MaxResults)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		LedgerPath: v.GetString(cfgKeyLedgerPath),
		Plane:      v.GetString(cfgKeyPlane),
		Modules:    v.GetStringSlice(cfgKeyModules),
		Budget: engine.Budget{
			MaxDepth:   v.GetInt(cfgKeyMaxDepth),
			MaxSteps:   v.GetInt(cfgKeyMaxSteps),
			MaxResults: v.GetInt(cfgKeyMaxResults),
		},
	}
	if !filepath.IsAbs(cfg.LedgerPath) {
		cfg.LedgerPath = filepath.Join(dir, cfg.LedgerPath)
	}
	return cfg, nil
}

// ExpandModules resolves glob patterns (explicit args win over config) to a
// sorted, de-duplicated file list.
func ExpandModules(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(dir, pattern)
		}
		// Literal paths pass through so a missing file is reported by the
		// caller, not silently skipped as a non-matching glob.
		if _, err := os.Stat(pattern); err == nil {
			if !seen[pattern] {
				seen[pattern] = true
				files = append(files, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
