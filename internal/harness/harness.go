// Package harness runs conformance scenarios: YAML files describing a
// module, an import policy, and expectations over checks, queries, and
// certificates. Scenario traces serialize canonically, so a trace is a
// stable artifact suitable for golden-file comparison.
package harness

import (
	"fmt"
	"strings"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
	"github.com/josephjohncox/axiograph-sub003/internal/checker"
	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
	"github.com/josephjohncox/axiograph-sub003/internal/snapshot"
)

// Result is one scenario execution.
type Result struct {
	// Trace is the canonical record of what happened, step by step.
	Trace ir.Object
	// Failures are expectation mismatches. Empty means the scenario holds.
	Failures []string
}

func (r *Result) failf(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Run executes the scenario. An error means the harness could not drive
// the steps at all; expectation mismatches land in Result.Failures.
func Run(s *Scenario) (*Result, error) {
	result := &Result{Trace: ir.Object{
		"scenario": ir.String(s.Name),
	}}

	mod, err := loader.Parse(s.Module)
	if s.ExpectLoadError != "" {
		if err == nil {
			result.failf("expected load error containing %q, module loaded", s.ExpectLoadError)
		} else if !strings.Contains(err.Error(), s.ExpectLoadError) {
			result.failf("load error %q does not contain %q", err.Error(), s.ExpectLoadError)
		} else {
			result.Trace["load_error"] = ir.String(err.Error())
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: load: %w", s.Name, err)
	}
	result.Trace["module_digest"] = ir.String(digest.Module(mod.Source))

	db := pathdb.New()
	added, rejected, err := runImport(db, mod, s.Import)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: import: %w", s.Name, err)
	}
	result.Trace["imported"] = ir.Object{
		"added":    ir.Int(added),
		"rejected": ir.Int(rejected),
	}
	if s.Import.ExpectAdded != nil && added != *s.Import.ExpectAdded {
		result.failf("expected %d facts added, got %d", *s.Import.ExpectAdded, added)
	}
	if s.Import.ExpectRejected != nil && rejected != *s.Import.ExpectRejected {
		result.failf("expected %d facts rejected, got %d", *s.Import.ExpectRejected, rejected)
	}
	snap := db.Snapshot()

	runChecks(result, s, mod, snap)
	runQueries(result, s, snap)
	runCertificates(result, s, mod, snap)
	if s.ExportRoundtrip {
		runRoundtrip(result, s, mod, snap)
	}
	return result, nil
}

func runImport(db *pathdb.DB, mod *ir.Module, spec ImportSpec) (added, rejected int, err error) {
	mode := pathdb.Mode(spec.Mode)
	if mode == "" {
		mode = pathdb.Strict
	}
	for _, inst := range mod.Instances {
		schema := mod.SchemaByName(inst.Schema)
		res, instErr := db.ImportInstance(mod, inst, pathdb.Options{
			Mode:     mode,
			Plane:    spec.Plane,
			Validate: checker.Validator(schema),
		})
		if res != nil {
			added += len(res.Added)
			rejected += len(res.Rejected)
		}
		if instErr != nil && !pathdb.IsImportError(instErr) {
			return added, rejected, instErr
		}
	}
	return added, rejected, nil
}

func runChecks(result *Result, s *Scenario, mod *ir.Module, snap *pathdb.Snapshot) {
	var violations []string
	for _, schema := range mod.Schemas {
		for _, v := range checker.Check(snap, schema) {
			violations = append(violations, v.String())
		}
	}
	arr := make(ir.Array, len(violations))
	for i, v := range violations {
		arr[i] = ir.String(v)
	}
	result.Trace["violations"] = arr

	for _, want := range s.ExpectViolations {
		found := false
		for _, v := range violations {
			if strings.Contains(v, want) {
				found = true
				break
			}
		}
		if !found {
			result.failf("no violation contains %q (got %v)", want, violations)
		}
	}
	if len(s.ExpectViolations) == 0 && len(violations) > 0 {
		result.failf("expected a clean check, got %v", violations)
	}
}

func runQueries(result *Result, s *Scenario, snap *pathdb.Snapshot) {
	traces := make(ir.Array, 0, len(s.Queries))
	for i, q := range s.Queries {
		entry := ir.Object{}
		switch {
		case q.Term != "":
			term, err := loader.ParsePathTerm(q.Term)
			if err != nil {
				result.failf("query %d: %v", i, err)
				continue
			}
			entry["term"] = ir.String(term.Render())
			bindings, err := engine.Eval(snap, term, engine.DefaultBudget)
			if err != nil {
				result.failf("query %d: %v", i, err)
				continue
			}
			entry["count"] = ir.Int(len(bindings))
			if q.ExpectFound != (len(bindings) > 0) {
				result.failf("query %d: expect_found=%v, got %d bindings", i, q.ExpectFound, len(bindings))
			}
			if q.ExpectCount != nil && len(bindings) != *q.ExpectCount {
				result.failf("query %d: expected %d bindings, got %d", i, *q.ExpectCount, len(bindings))
			}
		default:
			walk, err := engine.Reachable(snap, q.From, q.To, q.Rels, engine.DefaultBudget)
			if err != nil {
				result.failf("query %d: %v", i, err)
				continue
			}
			entry["from"] = ir.String(q.From)
			entry["to"] = ir.String(q.To)
			entry["found"] = ir.Bool(walk != nil)
			if q.ExpectFound != (walk != nil) {
				result.failf("query %d: expect_found=%v, walk found=%v", i, q.ExpectFound, walk != nil)
			}
		}
		traces = append(traces, entry)
	}
	result.Trace["queries"] = traces
}

func runCertificates(result *Result, s *Scenario, mod *ir.Module, snap *pathdb.Snapshot) {
	verifier := cert.NewVerifier()
	traces := make(ir.Array, 0, len(s.Certificates))
	for i, step := range s.Certificates {
		entry := ir.Object{"kind": ir.String(step.Kind)}
		c, err := emitStep(mod, snap, step)
		if step.ExpectEmitError != "" {
			if err == nil {
				result.failf("certificate %d: expected emit error containing %q", i, step.ExpectEmitError)
			} else if !strings.Contains(err.Error(), step.ExpectEmitError) {
				result.failf("certificate %d: emit error %q does not contain %q", i, err.Error(), step.ExpectEmitError)
			} else {
				entry["emit_error"] = ir.String(err.Error())
			}
			traces = append(traces, entry)
			continue
		}
		if err != nil {
			result.failf("certificate %d: emit: %v", i, err)
			continue
		}
		if step.TamperDigest {
			c.Anchor.ModuleDigest = digest.Module(mod.Source + "\n// tampered")
		}
		body, err := c.Marshal()
		if err != nil {
			result.failf("certificate %d: marshal: %v", i, err)
			continue
		}
		verdict := verifier.Verify(mod.Source, body)
		entry["verified"] = ir.Bool(verdict.Verified)
		if verdict.Reason != "" {
			entry["reason"] = ir.String(verdict.Reason)
		}
		if verdict.Verified != step.ExpectVerified {
			result.failf("certificate %d (%s): expect_verified=%v, got %v (%s)",
				i, step.Kind, step.ExpectVerified, verdict.Verified, verdict.Reason)
		}
		traces = append(traces, entry)
	}
	result.Trace["certificates"] = traces
}

func emitStep(mod *ir.Module, snap *pathdb.Snapshot, step CertStep) (*cert.Certificate, error) {
	switch step.Kind {
	case cert.KindReachability:
		return cert.EmitReachability(mod, snap, step.From, step.To, step.Rels, engine.DefaultBudget)
	case cert.KindResolution:
		return cert.EmitResolution(mod, snap, step.Relation, step.Field, step.Value)
	case cert.KindNormalizePath:
		term, err := loader.ParsePathTerm(step.Term)
		if err != nil {
			return nil, err
		}
		return cert.EmitNormalizePath(mod, step.Schema, term, engine.DefaultBudget)
	case cert.KindRewriteDerivation:
		term, err := loader.ParsePathTerm(step.Term)
		if err != nil {
			return nil, err
		}
		return cert.EmitNormalizeDerivation(mod, step.Schema, term, engine.DefaultBudget)
	case cert.KindPathEquiv:
		lhs, err := loader.ParsePathTerm(step.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := loader.ParsePathTerm(step.RHS)
		if err != nil {
			return nil, err
		}
		return cert.EmitPathEquiv(mod, step.Schema, lhs, rhs, engine.DefaultBudget)
	case cert.KindDeltaF:
		return cert.EmitDeltaF(mod, snap, cert.DeltaFMapping{
			SourceRelation: step.SourceRelation,
			TargetRelation: step.TargetRelation,
			FieldMap:       step.FieldMap,
		})
	default:
		return nil, fmt.Errorf("unknown certificate kind %q", step.Kind)
	}
}

func runRoundtrip(result *Result, s *Scenario, mod *ir.Module, snap *pathdb.Snapshot) {
	first, err := snapshot.Export(mod, snap)
	if err != nil {
		result.failf("export: %v", err)
		return
	}
	remod, err := loader.Parse(first)
	if err != nil {
		result.failf("export does not re-parse: %v", err)
		return
	}
	redb := pathdb.New()
	if _, _, err := runImport(redb, remod, ImportSpec{}); err != nil {
		result.failf("export does not re-import: %v", err)
		return
	}
	second, err := snapshot.Export(remod, redb.Snapshot())
	if err != nil {
		result.failf("re-export: %v", err)
		return
	}
	if first != second {
		result.failf("export round trip is not stable")
		return
	}
	result.Trace["export_digest"] = ir.String(digest.Module(first))
}

// RunAndCheck runs the scenario and returns an error joining any
// expectation failures.
func RunAndCheck(s *Scenario) (*Result, error) {
	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	if len(result.Failures) > 0 {
		return result, fmt.Errorf("scenario %s: %s", s.Name, strings.Join(result.Failures, "; "))
	}
	return result, nil
}
