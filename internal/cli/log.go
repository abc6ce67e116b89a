package cli

import (
	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/ledger"
)

// NewLogCommand creates the log command with its subviews.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var moduleDigest string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the workspace ledger",
	}
	cmd.PersistentFlags().StringVar(&moduleDigest, "module", "", "filter by module digest")

	cmd.AddCommand(&cobra.Command{
		Use:           "imports",
		Short:         "List recorded import transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, cmd, moduleDigest, logImports)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "certs",
		Short:         "List recorded certificates",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, cmd, moduleDigest, logCerts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "snapshots",
		Short:         "List recorded snapshot exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, cmd, moduleDigest, logSnapshots)
		},
	})
	return cmd
}

type logView func(w *workspace, cmd *cobra.Command, led *ledger.Ledger, moduleDigest string) error

func runLog(opts *RootOptions, cmd *cobra.Command, moduleDigest string, view logView) error {
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	led, err := ledger.Open(w.cfg.LedgerPath)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	defer led.Close()
	return view(w, cmd, led, moduleDigest)
}

func logImports(w *workspace, cmd *cobra.Command, led *ledger.Ledger, moduleDigest string) error {
	records, err := led.Imports(cmd.Context(), moduleDigest)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	if w.out.Format == "json" {
		return w.out.JSON(records)
	}
	for _, r := range records {
		w.out.Textf("%s %s %s/%s mode=%s added=%d rejected=%d %s\n",
			r.RecordedAt, r.Txn, r.ModuleName, r.Instance, r.Mode, r.Added, r.Rejected, r.ModuleDigest)
	}
	return nil
}

func logCerts(w *workspace, cmd *cobra.Command, led *ledger.Ledger, moduleDigest string) error {
	records, err := led.Certificates(cmd.Context(), moduleDigest)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	if w.out.Format == "json" {
		return w.out.JSON(records)
	}
	for _, r := range records {
		w.out.Textf("%s %s kind=%s module=%s\n", r.RecordedAt, r.CertDigest, r.Kind, r.ModuleDigest)
	}
	return nil
}

func logSnapshots(w *workspace, cmd *cobra.Command, led *ledger.Ledger, moduleDigest string) error {
	records, err := led.Snapshots(cmd.Context(), moduleDigest)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	if w.out.Format == "json" {
		return w.out.JSON(records)
	}
	for _, r := range records {
		w.out.Textf("%s %s module=%s\n", r.RecordedAt, r.ExportDigest, r.ModuleDigest)
	}
	return nil
}
