package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/ledger"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
	"github.com/josephjohncox/axiograph-sub003/internal/snapshot"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var outPath string
	var record bool

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the imported facts as canonical module text",
		Long: `Import the module's facts and render the store back to module text in
canonical order. The exported text parses and re-imports to the same
fact multiset; its digest is a stable identity for the snapshot.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args[0], outPath, record)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write export text to a file")
	cmd.Flags().BoolVar(&record, "record", false, "record the export in the ledger")
	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, file, outPath string, record bool) error {
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(file)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	mod, err := loader.Parse(string(text))
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
	}
	db := pathdb.New()
	if _, err := importAll(db, []*ir.Module{mod}, pathdb.Strict, w.cfg.Plane, true); err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeImport, err.Error(), nil)
	}

	exported, err := snapshot.Export(mod, db.Snapshot())
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if record {
		led, err := ledger.Open(w.cfg.LedgerPath)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		defer led.Close()
		exportDigest, err := led.RecordSnapshot(cmd.Context(), digest.Module(mod.Source), exported)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		w.out.VerboseLog("recorded snapshot %s", exportDigest)
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(exported), 0o644); err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		w.out.Textf("wrote export to %s (%s)\n", outPath, digest.Module(exported))
		return nil
	}
	fmt.Fprint(w.out.Writer, exported)
	return nil
}
