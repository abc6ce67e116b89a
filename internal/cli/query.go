package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Term     string              `json:"term,omitempty"`
	Bindings []map[string]string `json:"bindings,omitempty"`
	Walk     *WalkResult         `json:"walk,omitempty"`
	Found    bool                `json:"found"`
}

// WalkResult renders an engine.Walk for output.
type WalkResult struct {
	Nodes []string `json:"nodes"`
	Rels  []string `json:"rels"`
	Facts []string `json:"fact_ids"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var term string
	var from, to string
	var rels []string

	cmd := &cobra.Command{
		Use:   "query [files...]",
		Short: "Evaluate a path query over the imported facts",
		Long: `Evaluate either a path term (--term "trans(step(x, R, y), step(y, R, z))")
or a reachability search (--from A --to B --rel R --rel S) against the
modules' facts. Search is bounded by the configured budget; hitting a
budget is an error, distinct from an empty result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args, cmd, term, from, to, rels)
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "path term to evaluate")
	cmd.Flags().StringVar(&from, "from", "", "reachability start node")
	cmd.Flags().StringVar(&to, "to", "", "reachability target node")
	cmd.Flags().StringArrayVar(&rels, "rel", nil, "relation allowed in the walk (repeatable)")
	return cmd
}

func runQuery(opts *RootOptions, args []string, cmd *cobra.Command, term, from, to string, rels []string) error {
	if (term == "") == (from == "" && to == "") {
		return NewExitError(ExitCommandError, "pass either --term or --from/--to/--rel")
	}
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	mods, err := w.loadModules(args)
	if err != nil {
		return err
	}
	db := pathdb.New()
	if _, err := importAll(db, mods, pathdb.Permissive, w.cfg.Plane, false); err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	snap := db.Snapshot()

	result := QueryResult{}
	if term != "" {
		parsed, err := loader.ParsePathTerm(term)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
		}
		result.Term = parsed.Render()
		bindings, err := engine.Eval(snap, parsed, w.cfg.Budget)
		if err != nil {
			if engine.IsBudgetError(err) {
				return w.out.Fail(ExitFailure, ErrCodeBudget, err.Error(), nil)
			}
			return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		for _, b := range bindings {
			result.Bindings = append(result.Bindings, b)
		}
		result.Found = len(bindings) > 0
	} else {
		if from == "" || to == "" || len(rels) == 0 {
			return NewExitError(ExitCommandError, "reachability needs --from, --to, and at least one --rel")
		}
		walk, err := engine.Reachable(snap, from, to, rels, w.cfg.Budget)
		if err != nil {
			if engine.IsBudgetError(err) {
				return w.out.Fail(ExitFailure, ErrCodeBudget, err.Error(), nil)
			}
			return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		if walk != nil {
			result.Found = true
			result.Walk = &WalkResult{Nodes: walk.Nodes, Rels: walk.Rels, Facts: walk.Facts}
		}
	}

	if w.out.Format == "json" {
		return w.out.JSON(result)
	}
	switch {
	case result.Walk != nil:
		w.out.Textf("walk found:\n")
		for i, rel := range result.Walk.Rels {
			w.out.Textf("  %s -[%s]-> %s\n", result.Walk.Nodes[i], rel, result.Walk.Nodes[i+1])
		}
	case len(result.Bindings) > 0:
		w.out.Textf("%d result(s):\n", len(result.Bindings))
		for _, b := range result.Bindings {
			keys := make([]string, 0, len(b))
			for k := range b {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			line := ""
			for i, k := range keys {
				if i > 0 {
					line += ", "
				}
				line += k + "=" + b[k]
			}
			w.out.Textf("  %s\n", line)
		}
	default:
		w.out.Textf("no results\n")
	}
	return nil
}
