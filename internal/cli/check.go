package cli

import (
	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/checker"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// CheckReport is the JSON payload of the check command.
type CheckReport struct {
	Facts      int      `json:"facts"`
	Violations []string `json:"violations,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [files...]",
		Short: "Check all constraints over the imported facts",
		Long: `Import the modules' facts without per-instance gating, then run every
declared constraint over the full store and report violations. Exit
code 1 when any constraint is violated.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
}

func runCheck(opts *RootOptions, args []string, cmd *cobra.Command) error {
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	mods, err := w.loadModules(args)
	if err != nil {
		return err
	}

	db := pathdb.New()
	results, err := importAll(db, mods, pathdb.Permissive, w.cfg.Plane, false)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	snap := db.Snapshot()

	report := CheckReport{Facts: len(snap.Facts())}
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		for _, rej := range r.Result.Rejected {
			report.Violations = append(report.Violations, rej.Violation.String())
		}
	}
	for _, mod := range mods {
		for _, schema := range mod.Schemas {
			for _, v := range checker.Check(snap, schema) {
				report.Violations = append(report.Violations, v.String())
			}
		}
	}

	if w.out.Format == "json" {
		if err := w.out.JSON(report); err != nil {
			return err
		}
	} else {
		w.out.Textf("%d facts checked\n", report.Facts)
		for _, v := range report.Violations {
			w.out.Textf("violation: %s\n", v)
		}
		if len(report.Violations) == 0 {
			w.out.Textf("all constraints hold\n")
		}
	}
	if len(report.Violations) > 0 {
		return NewExitError(ExitFailure, "constraint violations found")
	}
	return nil
}
