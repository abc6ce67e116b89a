package cert

import (
	"fmt"
	"sort"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/engine"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

func newCertificate(kind string, mod *ir.Module, factIDs []string, payload ir.Object) *Certificate {
	return &Certificate{
		Kind:    kind,
		Version: Version,
		Anchor: Anchor{
			ModuleDigest: digest.Module(mod.Source),
			FactIDs:      factIDs,
		},
		Payload: payload,
	}
}

// EmitReachability certifies a walk between two nodes along the listed
// relations. The payload records the relation sequence walked and the facts
// providing each hop, which is exactly what a checker needs to re-walk it.
func EmitReachability(mod *ir.Module, snap *pathdb.Snapshot, from, to string, relations []string, budget engine.Budget) (*Certificate, error) {
	walk, err := engine.Reachable(snap, from, to, relations, budget)
	if err != nil {
		return nil, err
	}
	if walk == nil {
		return nil, fmt.Errorf("no walk from %s to %s along %v", from, to, relations)
	}
	payload := ir.Object{
		"from":      ir.String(from),
		"to":        ir.String(to),
		"relations": stringArray(relations),
		"walk": ir.Object{
			"nodes":    stringArray(walk.Nodes),
			"rels":     stringArray(walk.Rels),
			"fact_ids": stringArray(walk.Facts),
		},
	}
	return newCertificate(KindReachability, mod, walk.Facts, payload), nil
}

// EmitResolution certifies a (relation, field=value) index lookup: the
// stable ids of every matching fact, sorted.
func EmitResolution(mod *ir.Module, snap *pathdb.Snapshot, relation, field, value string) (*Certificate, error) {
	facts := snap.Lookup(relation, field, value)
	ids := make([]string, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
	}
	sort.Strings(ids)
	payload := ir.Object{
		"relation": ir.String(relation),
		"field":    ir.String(field),
		"value":    ir.String(value),
		"fact_ids": stringArray(ids),
	}
	return newCertificate(KindResolution, mod, ids, payload), nil
}

// EmitNormalizePath certifies the canonical form of a path term under the
// schema's rewrite rules, with the derivation taken.
func EmitNormalizePath(mod *ir.Module, schemaName string, term ir.PathTerm, budget engine.Budget) (*Certificate, error) {
	rules := engine.RulesOf(mod, schemaName)
	normal, deriv, err := engine.Normalize(term, rules, budget)
	if err != nil {
		return nil, err
	}
	payload := ir.Object{
		"schema":      ir.String(schemaName),
		"input":       ir.TermToCanonical(term),
		"normal_form": ir.TermToCanonical(normal),
		"derivation":  derivToCanonical(deriv),
	}
	return newCertificate(KindNormalizePath, mod, nil, payload), nil
}

// EmitRewriteDerivation certifies an explicit derivation: the ordered
// (rule, position) list transforming the input term into the result. The
// derivation is replayed before emission; an unreplayable derivation is
// never certified.
func EmitRewriteDerivation(mod *ir.Module, schemaName string, term ir.PathTerm, steps []engine.DerivStep) (*Certificate, error) {
	rules := engine.RulesOf(mod, schemaName)
	result, err := engine.Replay(term, rules, steps)
	if err != nil {
		return nil, err
	}
	payload := ir.Object{
		"schema":     ir.String(schemaName),
		"input":      ir.TermToCanonical(term),
		"derivation": derivToCanonical(steps),
		"result":     ir.TermToCanonical(result),
	}
	return newCertificate(KindRewriteDerivation, mod, nil, payload), nil
}

// EmitNormalizeDerivation normalizes the term and certifies the derivation
// taken, as a rewrite_derivation certificate.
func EmitNormalizeDerivation(mod *ir.Module, schemaName string, term ir.PathTerm, budget engine.Budget) (*Certificate, error) {
	rules := engine.RulesOf(mod, schemaName)
	_, deriv, err := engine.Normalize(term, rules, budget)
	if err != nil {
		return nil, err
	}
	return EmitRewriteDerivation(mod, schemaName, term, deriv)
}

// EmitPathEquiv certifies that two terms share a normal form.
func EmitPathEquiv(mod *ir.Module, schemaName string, a, b ir.PathTerm, budget engine.Budget) (*Certificate, error) {
	rules := engine.RulesOf(mod, schemaName)
	eq, normal, err := engine.Equivalent(a, b, rules, budget)
	if err != nil {
		return nil, err
	}
	if !eq {
		return nil, fmt.Errorf("terms %s and %s are not equivalent", a.Render(), b.Render())
	}
	payload := ir.Object{
		"schema":      ir.String(schemaName),
		"lhs":         ir.TermToCanonical(a),
		"rhs":         ir.TermToCanonical(b),
		"normal_form": ir.TermToCanonical(normal),
	}
	return newCertificate(KindPathEquiv, mod, nil, payload), nil
}

// DeltaFMapping maps one source-schema relation onto a target relation in
// the store, with a field renaming. The pullback Delta_F reinterprets each
// target fact as a source tuple.
type DeltaFMapping struct {
	SourceRelation string
	TargetRelation string
	// FieldMap maps source field name -> target field name.
	FieldMap map[string]string
}

// EmitDeltaF certifies a migration pullback: for each fact of the target
// relation, the source tuple it pulls back to under the mapping. The
// payload lists every derived tuple with the fact it came from, so a
// checker can redo the projection fact by fact.
func EmitDeltaF(mod *ir.Module, snap *pathdb.Snapshot, mapping DeltaFMapping) (*Certificate, error) {
	sourceFields := make([]string, 0, len(mapping.FieldMap))
	for f := range mapping.FieldMap {
		sourceFields = append(sourceFields, f)
	}
	sort.Strings(sourceFields)

	var factIDs []string
	tuples := ir.Array{}
	for _, f := range snap.FactsOf(mapping.TargetRelation) {
		fields := ir.Object{}
		for _, src := range sourceFields {
			v, ok := snap.FieldValue(f, mapping.FieldMap[src])
			if !ok {
				return nil, fmt.Errorf("delta_f: target relation %s has no field %s", mapping.TargetRelation, mapping.FieldMap[src])
			}
			fields[src] = ir.String(v)
		}
		tuples = append(tuples, ir.Object{
			"fields":      fields,
			"source_fact": ir.String(f.ID),
		})
		factIDs = append(factIDs, f.ID)
	}
	fieldMap := ir.Object{}
	for _, src := range sourceFields {
		fieldMap[src] = ir.String(mapping.FieldMap[src])
	}
	payload := ir.Object{
		"source_relation": ir.String(mapping.SourceRelation),
		"target_relation": ir.String(mapping.TargetRelation),
		"field_map":       fieldMap,
		"tuples":          tuples,
	}
	return newCertificate(KindDeltaF, mod, factIDs, payload), nil
}

func stringArray(values []string) ir.Array {
	out := make(ir.Array, len(values))
	for i, v := range values {
		out[i] = ir.String(v)
	}
	return out
}

func derivToCanonical(steps []engine.DerivStep) ir.Array {
	out := make(ir.Array, len(steps))
	for i, s := range steps {
		obj := ir.Object{
			"rule": ir.String(s.Rule),
			"pos":  ir.String(s.Pos.String()),
		}
		if s.Backward {
			obj["backward"] = ir.Bool(true)
		}
		if len(s.Bindings) > 0 {
			b := ir.Object{}
			for k, v := range s.Bindings {
				b[k] = ir.String(v)
			}
			obj["bindings"] = b
		}
		out[i] = obj
	}
	return out
}

// derivFromCanonical inverts derivToCanonical; used by the verifier.
func derivFromCanonical(v ir.Value) ([]engine.DerivStep, error) {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("derivation must be an array")
	}
	steps := make([]engine.DerivStep, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("derivation[%d]: not an object", i)
		}
		rule, _ := obj["rule"].(ir.String)
		posStr, _ := obj["pos"].(ir.String)
		pos, err := ir.ParseTermPos(string(posStr))
		if err != nil {
			return nil, fmt.Errorf("derivation[%d]: %w", i, err)
		}
		step := engine.DerivStep{Rule: string(rule), Pos: pos}
		if b, ok := obj["backward"].(ir.Bool); ok {
			step.Backward = bool(b)
		}
		if bindings, ok := obj["bindings"].(ir.Object); ok {
			step.Bindings = make(map[string]string, len(bindings))
			for k, bv := range bindings {
				s, _ := bv.(ir.String)
				step.Bindings[k] = string(s)
			}
		}
		steps[i] = step
	}
	return steps, nil
}
