package pathdb

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// Mode selects the import failure policy.
type Mode string

const (
	// Strict fails the whole import on any violation; the store is left
	// exactly as it was.
	Strict Mode = "strict"
	// Permissive stores validated facts and reports the rejected ones.
	// Nothing is dropped silently.
	Permissive Mode = "permissive"
)

// Options configures one import transaction. Plane is an explicit caller
// tag (proposal/accepted/snapshot); the store records it but attaches no
// policy to it. Validate, when set, is run against candidate snapshots.
type Options struct {
	Mode     Mode
	Plane    string
	Validate ValidateFunc
}

// RejectedFact pairs a rejected tuple with the violation that rejected it.
type RejectedFact struct {
	Fact      *Fact
	Violation Violation
}

// ImportResult reports one import transaction.
type ImportResult struct {
	Txn      string
	Plane    string
	Added    []*Fact
	Rejected []RejectedFact
}

// ImportInstance imports one instance of a loaded module. Imports are
// serialized: the transaction is fully applied or (in strict mode, on
// violation) fully rejected before the next import begins. Facts are never
// mutated in place; importing an already-present tuple with new contexts
// adds context membership edges, and importing an exact duplicate is a
// duplicate violation.
func (db *DB) ImportInstance(mod *ir.Module, inst *ir.Instance, opts Options) (*ImportResult, error) {
	if opts.Mode == "" {
		opts.Mode = Strict
	}
	schema := mod.SchemaByName(inst.Schema)
	if schema == nil {
		return nil, fmt.Errorf("instance %s: schema %s not found in module %s", inst.Name, inst.Schema, mod.Name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	result := &ImportResult{
		Txn:   uuid.Must(uuid.NewV7()).String(),
		Plane: opts.Plane,
	}

	work := db.snap.clone()
	work.schemas[schema.Name] = schema

	// Node conflicts are structural and fatal in either mode: the rest of
	// the instance cannot be typed against a half-registered node table.
	if v := registerNodes(work, schema, inst); v != nil {
		result.Rejected = append(result.Rejected, RejectedFact{Violation: *v})
		return result, &ImportError{Violations: []Violation{*v}}
	}

	switch opts.Mode {
	case Strict:
		return db.importStrict(work, mod, inst, opts, result)
	case Permissive:
		return db.importPermissive(work, mod, inst, opts, result)
	default:
		return nil, fmt.Errorf("unknown import mode %q", opts.Mode)
	}
}

// ImportModule imports every instance of the module under one option set.
// Instances are applied in declaration order; in strict mode the first
// rejected instance aborts the remainder.
func (db *DB) ImportModule(mod *ir.Module, opts Options) ([]*ImportResult, error) {
	var results []*ImportResult
	for _, inst := range mod.Instances {
		res, err := db.ImportInstance(mod, inst, opts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (db *DB) importStrict(work *Snapshot, mod *ir.Module, inst *ir.Instance, opts Options, result *ImportResult) (*ImportResult, error) {
	var violations []Violation
	for i := range inst.Facts {
		fact, v := addFact(work, mod, inst, &inst.Facts[i], opts.Plane)
		if v != nil {
			violations = append(violations, *v)
			result.Rejected = append(result.Rejected, RejectedFact{Fact: fact, Violation: *v})
			continue
		}
		if fact != nil {
			result.Added = append(result.Added, fact)
		}
	}
	if opts.Validate != nil {
		violations = append(violations, opts.Validate(work)...)
	}
	if len(violations) > 0 {
		// Fully rejected: current snapshot stays in place.
		result.Added = nil
		for _, v := range violations {
			result.Rejected = append(result.Rejected, RejectedFact{Violation: v})
		}
		return result, &ImportError{Violations: violations}
	}
	db.snap = work
	return result, nil
}

func (db *DB) importPermissive(work *Snapshot, mod *ir.Module, inst *ir.Instance, opts Options, result *ImportResult) (*ImportResult, error) {
	for i := range inst.Facts {
		tuple := &inst.Facts[i]
		candidate := work.clone()
		fact, v := addFact(candidate, mod, inst, tuple, opts.Plane)
		if v != nil {
			result.Rejected = append(result.Rejected, RejectedFact{Fact: fact, Violation: *v})
			continue
		}
		if fact == nil {
			// Context-only addition to an existing fact.
			work = candidate
			continue
		}
		if opts.Validate != nil {
			if v := firstMention(opts.Validate(candidate), fact.ID); v != nil {
				result.Rejected = append(result.Rejected, RejectedFact{Fact: fact, Violation: *v})
				continue
			}
		}
		work = candidate
		result.Added = append(result.Added, fact)
	}
	db.snap = work
	return result, nil
}

// firstMention returns the first violation naming the fact, or, if the
// validation fails without naming any fact, the first violation at all.
func firstMention(violations []Violation, factID string) *Violation {
	for i := range violations {
		if violations[i].Mentions(factID) {
			return &violations[i]
		}
	}
	if len(violations) > 0 {
		return &violations[0]
	}
	return nil
}

// registerNodes installs the instance's nodes with their effective type
// sets. A node re-declared with a different type is a conflict.
func registerNodes(work *Snapshot, schema *ir.Schema, inst *ir.Instance) *Violation {
	closure := schema.TypeClosure()
	for _, decl := range inst.Nodes {
		if existing := work.nodes[decl.Name]; existing != nil {
			if existing.Type != decl.Type {
				return &Violation{
					Code:    CodeNodeConflict,
					Message: fmt.Sprintf("node %s already declared as %s, re-declared as %s", decl.Name, existing.Type, decl.Type),
				}
			}
			continue
		}
		node := &Node{Name: decl.Name, Type: decl.Type, Types: closure[decl.Type]}
		work.nodes[decl.Name] = node
		for typ := range node.Types {
			work.nodesByTyp[typ] = append(work.nodesByTyp[typ], node)
		}
	}
	return nil
}

// addFact appends one tuple to the working snapshot. Returns (nil, nil) when
// the tuple already exists and only gained context members, (fact, nil) on a
// fresh append, and a violation for exact duplicates.
func addFact(work *Snapshot, mod *ir.Module, inst *ir.Instance, tuple *ir.TupleExpr, plane string) (*Fact, *Violation) {
	schema := work.schemas[inst.Schema]
	rel := schema.RelationByName(tuple.Relation)

	fieldValues := make([]digest.FieldValue, len(rel.Fields))
	for i, f := range rel.Fields {
		fieldValues[i] = digest.FieldValue{Field: f.Name, Value: tuple.Fields[i]}
	}
	id := digest.Fact(mod.Name, schema.Name, inst.Name, rel.Name, fieldValues)

	if existing := work.facts[id]; existing != nil {
		added := false
		for _, ctx := range tuple.Contexts {
			if !work.contexts[id][ctx] {
				if work.contexts[id] == nil {
					work.contexts[id] = make(map[string]bool)
				}
				work.contexts[id][ctx] = true
				added = true
			}
		}
		if added {
			return nil, nil
		}
		return existing, &Violation{
			Code:     CodeDuplicate,
			Relation: rel.Name,
			FactIDs:  []string{id},
			Message:  fmt.Sprintf("duplicate fact %s(%s)", rel.Name, joinFields(tuple.Fields)),
		}
	}

	fact := &Fact{
		ID:       id,
		Module:   mod.Name,
		Schema:   schema.Name,
		Instance: inst.Name,
		Relation: rel.Name,
		Fields:   append([]string(nil), tuple.Fields...),
		Plane:    plane,
	}
	work.facts[id] = fact
	work.factList = append(work.factList, fact)
	work.byRelation[rel.Name] = append(work.byRelation[rel.Name], fact)
	for i, f := range rel.Fields {
		key := IndexKey{Relation: rel.Name, Field: f.Name, Value: fact.Fields[i]}
		work.index[key] = append(work.index[key], fact)
	}
	if len(tuple.Contexts) > 0 {
		set := make(map[string]bool, len(tuple.Contexts))
		for _, ctx := range tuple.Contexts {
			set[ctx] = true
		}
		work.contexts[id] = set
	}
	return fact, nil
}

func joinFields(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
