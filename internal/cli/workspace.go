package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/checker"
	"github.com/josephjohncox/axiograph-sub003/internal/config"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// workspace bundles per-invocation state: resolved config and the output
// formatter for the command's writers.
type workspace struct {
	opts *RootOptions
	cfg  *config.Config
	out  *OutputFormatter
}

func newWorkspace(opts *RootOptions, cmd *cobra.Command) (*workspace, error) {
	cfg, err := config.Load(opts.Dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	return &workspace{
		opts: opts,
		cfg:  cfg,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

// moduleFiles resolves module files from args (globs) or, when empty, the
// config's module patterns.
func (w *workspace) moduleFiles(args []string) ([]string, error) {
	patterns := args
	if len(patterns) == 0 {
		patterns = w.cfg.Modules
	}
	if len(patterns) == 0 {
		return nil, w.out.Fail(ExitCommandError, ErrCodeNotFound, "no module files: pass paths or set modules in axiograph.yaml", nil)
	}
	files, err := config.ExpandModules(w.opts.Dir, patterns)
	if err != nil {
		return nil, w.out.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if len(files) == 0 {
		return nil, w.out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no module files match %v", patterns), nil)
	}
	return files, nil
}

// loadModules parses every resolved module file. Load errors are fatal to
// the command.
func (w *workspace) loadModules(args []string) ([]*ir.Module, error) {
	files, err := w.moduleFiles(args)
	if err != nil {
		return nil, err
	}
	var mods []*ir.Module
	for _, file := range files {
		text, err := os.ReadFile(file)
		if err != nil {
			return nil, w.out.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
		}
		mod, err := loader.Parse(string(text))
		if err != nil {
			code := ErrCodeParse
			if loader.IsTypeError(err) || loader.IsNonCertifiable(err) {
				code = ErrCodeType
			}
			return nil, w.out.Fail(ExitCommandError, code, fmt.Sprintf("%s: %v", file, err), nil)
		}
		w.out.VerboseLog("loaded %s: module %s", file, mod.Name)
		mods = append(mods, mod)
	}
	return mods, nil
}

// importAll imports every instance of every module into one store. With
// validate set, each instance imports under its schema's checker.
func importAll(db *pathdb.DB, mods []*ir.Module, mode pathdb.Mode, plane string, validate bool) ([]instanceResult, error) {
	var results []instanceResult
	for _, mod := range mods {
		for _, inst := range mod.Instances {
			opts := pathdb.Options{Mode: mode, Plane: plane}
			if validate {
				schema := mod.SchemaByName(inst.Schema)
				if schema == nil {
					return results, fmt.Errorf("instance %s: schema %s not found", inst.Name, inst.Schema)
				}
				opts.Validate = checker.Validator(schema)
			}
			res, err := db.ImportInstance(mod, inst, opts)
			results = append(results, instanceResult{Module: mod, Instance: inst, Result: res, Err: err})
			if err != nil && !pathdb.IsImportError(err) {
				return results, err
			}
			if err != nil && mode == pathdb.Strict {
				return results, nil
			}
		}
	}
	return results, nil
}

type instanceResult struct {
	Module   *ir.Module
	Instance *ir.Instance
	Result   *pathdb.ImportResult
	Err      error
}
