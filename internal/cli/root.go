// Package cli implements the axiograph command tree. Commands are thin:
// load module files, drive the core packages, render text or JSON. All
// state lives in the module files and the ledger; every command rebuilds
// its store from text.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Error codes surfaced in JSON output.
const (
	ErrCodeParse       = "parse_error"
	ErrCodeType        = "type_error"
	ErrCodeNotFound    = "not_found"
	ErrCodeImport      = "import_rejected"
	ErrCodeViolation   = "constraint_violation"
	ErrCodeBudget      = "budget_exceeded"
	ErrCodeNotVerified = "not_verified"
	ErrCodeLedger      = "ledger_error"
	ErrCodeGeneric     = "error"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dir     string // workspace directory (config + relative paths)
}

// ValidFormats are the allowed --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the axiograph root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "axiograph",
		Short: "Typed fact graphs with certified queries",
		Long: "Axiograph stores typed facts under declared schemas, checks key,\n" +
			"functional, and closure constraints, evaluates path queries, and\n" +
			"emits certificates any independent checker can re-verify.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", ".", "workspace directory")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCertifyCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
