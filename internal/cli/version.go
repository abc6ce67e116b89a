package cli

import (
	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// VersionInfo reports format versions in JSON output.
type VersionInfo struct {
	IRVersion          string `json:"ir_version"`
	CertificateVersion string `json:"certificate_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print format versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWorkspace(rootOpts, cmd)
			if err != nil {
				return err
			}
			info := VersionInfo{IRVersion: ir.Version, CertificateVersion: cert.Version}
			if w.out.Format == "json" {
				return w.out.JSON(info)
			}
			w.out.Textf("ir version %s, certificate version %s\n", info.IRVersion, info.CertificateVersion)
			return nil
		},
	}
}
