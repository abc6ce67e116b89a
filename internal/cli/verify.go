package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
)

// VerifyReport is the JSON payload of the verify command.
type VerifyReport struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <module-file> <certificate-file>",
		Short: "Verify a certificate against module text",
		Long: `Run the reference verifier: validate the certificate's shape, recompute
the module digest, rebuild the store from the module text, recompute the
claimed result, and compare. Exit code 1 when the certificate does not
verify; an anchor mismatch never verifies.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command, moduleFile, certFile string) error {
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	moduleText, err := os.ReadFile(moduleFile)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	certBytes, err := os.ReadFile(certFile)
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	verifier := cert.NewVerifier()
	verifier.Budget = w.cfg.Budget
	result := verifier.Verify(string(moduleText), certBytes)

	report := VerifyReport{Verified: result.Verified, Reason: result.Reason}
	if w.out.Format == "json" {
		if err := w.out.JSON(report); err != nil {
			return err
		}
	} else if report.Verified {
		w.out.Textf("verified\n")
	} else {
		w.out.Textf("not verified: %s\n", report.Reason)
	}
	if !report.Verified {
		return NewExitError(ExitFailure, "certificate did not verify")
	}
	return nil
}
