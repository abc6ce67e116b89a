package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/ledger"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// NewCertifyCommand creates the certify command.
func NewCertifyCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	var from, to string
	var rels []string
	var relation, field, value string
	var schemaName, termText, lhsText, rhsText string
	var sourceRel, targetRel string
	var fieldMap []string
	var outPath string
	var record bool

	cmd := &cobra.Command{
		Use:   "certify <file>",
		Short: "Emit a certificate for a query or derivation",
		Long: `Compute a result against the module and emit a certificate binding it
to the module's content digest. The certificate's canonical JSON goes
to stdout (or --out); any independent checker can verify it against
the same module text.

Kinds and their flags:
  reachability        --from --to --rel...
  resolution          --relation --field --value
  normalize_path      --schema --term
  rewrite_derivation  --schema --term  (certifies the normalization derivation)
  path_equiv          --schema --lhs --rhs
  delta_f             --source-relation --target-relation --map src=dst...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCertify(rootOpts, cmd, certifyArgs{
				file: args[0], kind: kind,
				from: from, to: to, rels: rels,
				relation: relation, field: field, value: value,
				schema: schemaName, term: termText, lhs: lhsText, rhs: rhsText,
				sourceRel: sourceRel, targetRel: targetRel, fieldMap: fieldMap,
				outPath: outPath, record: record,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "certificate kind (required)")
	cmd.Flags().StringVar(&from, "from", "", "reachability start node")
	cmd.Flags().StringVar(&to, "to", "", "reachability target node")
	cmd.Flags().StringArrayVar(&rels, "rel", nil, "relation allowed in the walk (repeatable)")
	cmd.Flags().StringVar(&relation, "relation", "", "relation to resolve")
	cmd.Flags().StringVar(&field, "field", "", "field to resolve on")
	cmd.Flags().StringVar(&value, "value", "", "value to resolve")
	cmd.Flags().StringVar(&schemaName, "schema", "", "schema whose theories apply")
	cmd.Flags().StringVar(&termText, "term", "", "path term")
	cmd.Flags().StringVar(&lhsText, "lhs", "", "left path term")
	cmd.Flags().StringVar(&rhsText, "rhs", "", "right path term")
	cmd.Flags().StringVar(&sourceRel, "source-relation", "", "source relation of the mapping")
	cmd.Flags().StringVar(&targetRel, "target-relation", "", "target relation of the mapping")
	cmd.Flags().StringArrayVar(&fieldMap, "map", nil, "field mapping src=dst (repeatable)")
	cmd.Flags().StringVar(&outPath, "out", "", "write certificate bytes to a file")
	cmd.Flags().BoolVar(&record, "record", false, "record the certificate in the ledger")
	cmd.MarkFlagRequired("kind")
	return cmd
}

type certifyArgs struct {
	file, kind             string
	from, to               string
	rels                   []string
	relation, field, value string
	schema, term, lhs, rhs string
	sourceRel, targetRel   string
	fieldMap               []string
	outPath                string
	record                 bool
}

func runCertify(opts *RootOptions, cmd *cobra.Command, a certifyArgs) error {
	w, err := newWorkspace(opts, cmd)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(a.file)
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
	snap := db.Snapshot()

	c, err := emitCertificate(w, mod, snap, a)
	if err != nil {
		return err
	}
	body, err := c.Marshal()
	if err != nil {
		return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if a.record {
		led, err := ledger.Open(w.cfg.LedgerPath)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		defer led.Close()
		certDigest, err := led.RecordCertificate(cmd.Context(), c)
		if err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		w.out.VerboseLog("recorded certificate %s", certDigest)
	}

	if a.outPath != "" {
		if err := os.WriteFile(a.outPath, body, 0o644); err != nil {
			return w.out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		w.out.Textf("wrote %s certificate to %s\n", c.Kind, a.outPath)
		return nil
	}
	fmt.Fprintln(w.out.Writer, string(body))
	return nil
}

func emitCertificate(w *workspace, mod *ir.Module, snap *pathdb.Snapshot, a certifyArgs) (*cert.Certificate, error) {
	fail := func(err error) (*cert.Certificate, error) {
		return nil, w.out.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}
	switch a.kind {
	case cert.KindReachability:
		c, err := cert.EmitReachability(mod, snap, a.from, a.to, a.rels, w.cfg.Budget)
		if err != nil {
			return fail(err)
		}
		return c, nil
	case cert.KindResolution:
		c, err := cert.EmitResolution(mod, snap, a.relation, a.field, a.value)
		if err != nil {
			return fail(err)
		}
		return c, nil
	case cert.KindNormalizePath, cert.KindRewriteDerivation:
		term, err := loader.ParsePathTerm(a.term)
		if err != nil {
			return nil, w.out.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
		}
		if a.kind == cert.KindNormalizePath {
			c, err := cert.EmitNormalizePath(mod, a.schema, term, w.cfg.Budget)
			if err != nil {
				return fail(err)
			}
			return c, nil
		}
		c, err := cert.EmitNormalizeDerivation(mod, a.schema, term, w.cfg.Budget)
		if err != nil {
			return fail(err)
		}
		return c, nil
	case cert.KindPathEquiv:
		lhs, err := loader.ParsePathTerm(a.lhs)
		if err != nil {
			return nil, w.out.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
		}
		rhs, err := loader.ParsePathTerm(a.rhs)
		if err != nil {
			return nil, w.out.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
		}
		c, err := cert.EmitPathEquiv(mod, a.schema, lhs, rhs, w.cfg.Budget)
		if err != nil {
			return fail(err)
		}
		return c, nil
	case cert.KindDeltaF:
		mapping := cert.DeltaFMapping{
			SourceRelation: a.sourceRel,
			TargetRelation: a.targetRel,
			FieldMap:       make(map[string]string, len(a.fieldMap)),
		}
		for _, m := range a.fieldMap {
			src, dst, ok := strings.Cut(m, "=")
			if !ok {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --map %q: want src=dst", m))
			}
			mapping.FieldMap[src] = dst
		}
		c, err := cert.EmitDeltaF(mod, snap, mapping)
		if err != nil {
			return fail(err)
		}
		return c, nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown certificate kind %q", a.kind))
	}
}
