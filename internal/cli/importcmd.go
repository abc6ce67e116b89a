package cli

import (
	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ledger"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// ImportSummary reports one instance import in JSON output.
type ImportSummary struct {
	Txn      string   `json:"txn"`
	Module   string   `json:"module"`
	Instance string   `json:"instance"`
	Plane    string   `json:"plane,omitempty"`
	Added    int      `json:"added"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string
	var plane string
	var record bool

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import module instances under constraint validation",
		Long: `Import every instance of the given modules into a fresh store,
validating constraints per instance. Strict mode rejects a whole
instance on any violation; permissive mode stores the clean facts and
reports the rejected ones. With --record each transaction is appended
to the workspace ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args, cmd, pathdb.Mode(mode), plane, record)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(pathdb.Strict), "import mode (strict|permissive)")
	cmd.Flags().StringVar(&plane, "plane", "", "plane tag (defaults to config)")
	cmd.Flags().BoolVar(&record, "record", false, "record transactions in the ledger")
	return cmd
}

func runImport(opts *RootOptions, args []string, cmd *cobra.Command, mode pathdb.Mode, plane string, record bool) error {
	if mode != pathdb.Strict && mode != pathdb.Permissive {
		return NewExitError(ExitCommandError, "invalid mode: must be strict or permissive")
	}
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	if plane == "" {
		plane = w.cfg.Plane
	}
	mods, err := w.loadModules(args)
	if err != nil {
		return err
	}

	db := pathdb.New()
	results, err := importAll(db, mods, mode, plane, true)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	var led *ledger.Ledger
	if record {
		led, err = ledger.Open(w.cfg.LedgerPath)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		defer led.Close()
	}

	rejectedAny := false
	summaries := make([]ImportSummary, 0, len(results))
	for _, r := range results {
		s := ImportSummary{
			Module:   r.Module.Name,
			Instance: r.Instance.Name,
			Plane:    plane,
		}
		if r.Result != nil {
			s.Txn = r.Result.Txn
			s.Added = len(r.Result.Added)
			s.Rejected = len(r.Result.Rejected)
			for _, rej := range r.Result.Rejected {
				s.Errors = append(s.Errors, rej.Violation.String())
			}
		}
		if r.Err != nil || s.Rejected > 0 {
			rejectedAny = true
		}
		if led != nil && r.Result != nil {
			md := digest.Module(r.Module.Source)
			if err := led.RecordImport(cmd.Context(), md, r.Module.Name, r.Instance.Name, mode, r.Result); err != nil {
				return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
			}
		}
		summaries = append(summaries, s)
	}

	if w.out.Format == "json" {
		if err := w.out.JSON(summaries); err != nil {
			return err
		}
	} else {
		for _, s := range summaries {
			w.out.Textf("import %s/%s: %d added, %d rejected (txn %s)\n",
				s.Module, s.Instance, s.Added, s.Rejected, s.Txn)
			for _, e := range s.Errors {
				w.out.Textf("  rejected: %s\n", e)
			}
		}
	}
	if rejectedAny {
		return NewExitError(ExitFailure, "one or more instances had violations")
	}
	return nil
}
