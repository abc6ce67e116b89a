package cert

import (
	"bytes"
	"fmt"

	"github.com/josephjohncox/axiograph-sub003/internal/checker"
	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/loader"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// VerifyResult is the verifier's verdict. Reason is empty exactly when
// Verified is true.
type VerifyResult struct {
	Verified bool
	Reason   string
}

// Verifier checks a certificate against module text.
type Verifier interface {
	Verify(moduleText string, certificate []byte) VerifyResult
}

// RecomputeVerifier is the reference verifier. It trusts nothing in the
// certificate: it validates the shape, re-digests the module text, rebuilds
// the store from that text, recomputes the claimed result, and compares.
// Any failure along the way, including an anchor mismatch, yields
// Verified=false with a reason; there is no partial credit.
type RecomputeVerifier struct {
	Budget engine.Budget
}

// NewVerifier returns a RecomputeVerifier with default budgets.
func NewVerifier() *RecomputeVerifier {
	return &RecomputeVerifier{Budget: engine.DefaultBudget}
}

func fail(format string, args ...any) VerifyResult {
	return VerifyResult{Verified: false, Reason: fmt.Sprintf(format, args...)}
}

// Verify checks certBytes against moduleText.
func (v *RecomputeVerifier) Verify(moduleText string, certBytes []byte) VerifyResult {
	if err := ValidateShape(certBytes); err != nil {
		return fail("%v", err)
	}
	c, err := Parse(certBytes)
	if err != nil {
		return fail("%v", err)
	}
	if computed := digest.Module(moduleText); computed != c.Anchor.ModuleDigest {
		return fail("%v", &AnchorMismatchError{Claimed: c.Anchor.ModuleDigest, Computed: computed})
	}
	mod, err := loader.Parse(moduleText)
	if err != nil {
		return fail("module text does not load: %v", err)
	}
	snap, err := buildStore(mod)
	if err != nil {
		return fail("module text does not import: %v", err)
	}
	for _, id := range c.Anchor.FactIDs {
		if snap.Fact(id) == nil {
			return fail("anchored fact %s not present in store", id)
		}
	}
	switch c.Kind {
	case KindReachability:
		return v.verifyReachability(snap, c)
	case KindResolution:
		return v.recompare(c, func() (*Certificate, error) {
			relation, field, value := payloadString(c, "relation"), payloadString(c, "field"), payloadString(c, "value")
			return EmitResolution(mod, snap, relation, field, value)
		})
	case KindNormalizePath:
		return v.recompare(c, func() (*Certificate, error) {
			input, err := ir.TermFromCanonical(c.Payload["input"])
			if err != nil {
				return nil, err
			}
			return EmitNormalizePath(mod, payloadString(c, "schema"), input, v.Budget)
		})
	case KindRewriteDerivation:
		return v.recompare(c, func() (*Certificate, error) {
			input, err := ir.TermFromCanonical(c.Payload["input"])
			if err != nil {
				return nil, err
			}
			steps, err := derivFromCanonical(c.Payload["derivation"])
			if err != nil {
				return nil, err
			}
			return EmitRewriteDerivation(mod, payloadString(c, "schema"), input, steps)
		})
	case KindPathEquiv:
		return v.recompare(c, func() (*Certificate, error) {
			lhs, err := ir.TermFromCanonical(c.Payload["lhs"])
			if err != nil {
				return nil, err
			}
			rhs, err := ir.TermFromCanonical(c.Payload["rhs"])
			if err != nil {
				return nil, err
			}
			return EmitPathEquiv(mod, payloadString(c, "schema"), lhs, rhs, v.Budget)
		})
	case KindDeltaF:
		return v.recompare(c, func() (*Certificate, error) {
			mapping, err := mappingFromPayload(c.Payload)
			if err != nil {
				return nil, err
			}
			return EmitDeltaF(mod, snap, mapping)
		})
	default:
		return fail("unknown certificate kind %q", c.Kind)
	}
}

// recompare re-emits the certificate from the rebuilt store and compares
// canonical bytes. Emission is deterministic, so byte equality is exactly
// result equality.
func (v *RecomputeVerifier) recompare(claimed *Certificate, emit func() (*Certificate, error)) VerifyResult {
	recomputed, err := emit()
	if err != nil {
		return fail("recompute %s: %v", claimed.Kind, err)
	}
	want, err := claimed.Marshal()
	if err != nil {
		return fail("remarshal claimed certificate: %v", err)
	}
	got, err := recomputed.Marshal()
	if err != nil {
		return fail("marshal recomputed certificate: %v", err)
	}
	if !bytes.Equal(want, got) {
		return fail("recomputed %s certificate differs from claim", claimed.Kind)
	}
	return VerifyResult{Verified: true}
}

// verifyReachability re-walks the claimed walk hop by hop instead of
// re-searching. The store may contain other valid walks; the certificate
// claims this one, so this one is what gets checked.
func (v *RecomputeVerifier) verifyReachability(snap *pathdb.Snapshot, c *Certificate) VerifyResult {
	from := payloadString(c, "from")
	to := payloadString(c, "to")
	allowed := make(map[string]bool)
	if rels, ok := c.Payload["relations"].(ir.Array); ok {
		for _, r := range rels {
			s, _ := r.(ir.String)
			allowed[string(s)] = true
		}
	}
	walk, _ := c.Payload["walk"].(ir.Object)
	nodes := stringSlice(walk["nodes"])
	rels := stringSlice(walk["rels"])
	factIDs := stringSlice(walk["fact_ids"])
	if len(nodes) == 0 || len(rels) != len(nodes)-1 || len(factIDs) != len(rels) {
		return fail("reachability: walk arrays are inconsistent")
	}
	if nodes[0] != from || nodes[len(nodes)-1] != to {
		return fail("reachability: walk endpoints do not match from/to")
	}
	for i, id := range factIDs {
		f := snap.Fact(id)
		if f == nil {
			return fail("reachability: hop %d fact %s not in store", i, id)
		}
		if f.Relation != rels[i] {
			return fail("reachability: hop %d fact is a %s tuple, walk claims %s", i, f.Relation, rels[i])
		}
		if !allowed[rels[i]] {
			return fail("reachability: hop %d relation %s not in the allowed set", i, rels[i])
		}
		if len(f.Fields) < 2 || f.Fields[0] != nodes[i] || f.Fields[len(f.Fields)-1] != nodes[i+1] {
			return fail("reachability: hop %d fact does not connect %s to %s", i, nodes[i], nodes[i+1])
		}
	}
	return VerifyResult{Verified: true}
}

// buildStore imports every instance of the module under strict validation.
func buildStore(mod *ir.Module) (*pathdb.Snapshot, error) {
	db := pathdb.New()
	for _, inst := range mod.Instances {
		schema := mod.SchemaByName(inst.Schema)
		if schema == nil {
			return nil, fmt.Errorf("instance %s: schema %s not found", inst.Name, inst.Schema)
		}
		if _, err := db.ImportInstance(mod, inst, pathdb.Options{
			Mode:     pathdb.Strict,
			Validate: checker.Validator(schema),
		}); err != nil {
			return nil, err
		}
	}
	return db.Snapshot(), nil
}

func payloadString(c *Certificate, key string) string {
	s, _ := c.Payload[key].(ir.String)
	return string(s)
}

func stringSlice(v ir.Value) []string {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, _ := elem.(ir.String)
		out[i] = string(s)
	}
	return out
}

func mappingFromPayload(payload ir.Object) (DeltaFMapping, error) {
	src, _ := payload["source_relation"].(ir.String)
	dst, _ := payload["target_relation"].(ir.String)
	fm, ok := payload["field_map"].(ir.Object)
	if !ok {
		return DeltaFMapping{}, fmt.Errorf("delta_f payload missing field_map")
	}
	mapping := DeltaFMapping{
		SourceRelation: string(src),
		TargetRelation: string(dst),
		FieldMap:       make(map[string]string, len(fm)),
	}
	for k, v := range fm {
		s, _ := v.(ir.String)
		mapping.FieldMap[k] = string(s)
	}
	return mapping, nil
}
