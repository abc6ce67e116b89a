// Package pathdb is the indexed fact store: typed nodes, immutable fact
// tuples, forward/reverse adjacency by (relation, field), and context
// membership edges.
//
// The store follows a single-writer, multi-reader discipline. Imports are
// serialized and each produces a fresh immutable Snapshot; readers
// (constraint checks, path queries, certificate emission) hold the snapshot
// they started with and never observe partial writes.
package pathdb

import (
	"sort"
	"sync"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// Node is one typed entity. Types is the effective type set: the declared
// type plus its supertype closure, computed at import from the schema.
type Node struct {
	Name  string
	Type  string
	Types map[string]bool
}

// Fact is one immutable relation tuple. ID is the content digest of the
// tuple (see internal/digest); Fields holds the bound node names in the
// relation's declared field order. Context membership lives on the
// snapshot's context index, not on the tuple.
type Fact struct {
	ID       string
	Module   string
	Schema   string
	Instance string
	Relation string
	Fields   []string
	Plane    string
}

// IndexKey addresses the (relation, field, value) projection index, which
// doubles as the adjacency index for path traversal.
type IndexKey struct {
	Relation string
	Field    string
	Value    string
}

// Snapshot is an immutable view of the store. All maps are private to the
// snapshot; a new import clones before writing.
type Snapshot struct {
	schemas    map[string]*ir.Schema
	nodes      map[string]*Node
	nodesByTyp map[string][]*Node
	facts      map[string]*Fact
	factList   []*Fact
	byRelation map[string][]*Fact
	index      map[IndexKey][]*Fact
	contexts   map[string]map[string]bool // fact ID -> context node names
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		schemas:    make(map[string]*ir.Schema),
		nodes:      make(map[string]*Node),
		nodesByTyp: make(map[string][]*Node),
		facts:      make(map[string]*Fact),
		byRelation: make(map[string][]*Fact),
		index:      make(map[IndexKey][]*Fact),
		contexts:   make(map[string]map[string]bool),
	}
}

// clone copies the snapshot's index structure. Facts and nodes are shared;
// they are immutable once stored.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		schemas:    make(map[string]*ir.Schema, len(s.schemas)),
		nodes:      make(map[string]*Node, len(s.nodes)),
		nodesByTyp: make(map[string][]*Node, len(s.nodesByTyp)),
		facts:      make(map[string]*Fact, len(s.facts)),
		factList:   append([]*Fact(nil), s.factList...),
		byRelation: make(map[string][]*Fact, len(s.byRelation)),
		index:      make(map[IndexKey][]*Fact, len(s.index)),
		contexts:   make(map[string]map[string]bool, len(s.contexts)),
	}
	for k, v := range s.schemas {
		next.schemas[k] = v
	}
	for k, v := range s.nodes {
		next.nodes[k] = v
	}
	for k, v := range s.nodesByTyp {
		next.nodesByTyp[k] = append([]*Node(nil), v...)
	}
	for k, v := range s.facts {
		next.facts[k] = v
	}
	for k, v := range s.byRelation {
		next.byRelation[k] = append([]*Fact(nil), v...)
	}
	for k, v := range s.index {
		next.index[k] = append([]*Fact(nil), v...)
	}
	for k, v := range s.contexts {
		set := make(map[string]bool, len(v))
		for ctx := range v {
			set[ctx] = true
		}
		next.contexts[k] = set
	}
	return next
}

// Schema returns the registered schema by name, or nil.
func (s *Snapshot) Schema(name string) *ir.Schema { return s.schemas[name] }

// Node looks a node up by name. O(1).
func (s *Snapshot) Node(name string) *Node { return s.nodes[name] }

// NodesOfType returns all nodes whose effective type set contains typ.
func (s *Snapshot) NodesOfType(typ string) []*Node {
	return s.nodesByTyp[typ]
}

// Nodes returns every node in the store, sorted by name.
func (s *Snapshot) Nodes() []*Node {
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schemas returns every registered schema, sorted by name.
func (s *Snapshot) Schemas() []*ir.Schema {
	out := make([]*ir.Schema, 0, len(s.schemas))
	for _, sch := range s.schemas {
		out = append(out, sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fact looks a fact up by its content digest. O(1).
func (s *Snapshot) Fact(id string) *Fact { return s.facts[id] }

// Facts returns all facts in import order.
func (s *Snapshot) Facts() []*Fact { return s.factList }

// FactsOf returns all facts of one relation in import order.
func (s *Snapshot) FactsOf(relation string) []*Fact { return s.byRelation[relation] }

// Lookup returns the facts of relation whose field holds value. O(1)
// amortized; iterating the result is O(out-degree), which is what a path
// traversal hop costs.
func (s *Snapshot) Lookup(relation, field, value string) []*Fact {
	return s.index[IndexKey{Relation: relation, Field: field, Value: value}]
}

// Contexts returns the context set of a fact, sorted.
func (s *Snapshot) Contexts(factID string) []string {
	set := s.contexts[factID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for ctx := range set {
		out = append(out, ctx)
	}
	sort.Strings(out)
	return out
}

// InContext reports whether the fact is a member of the named context.
func (s *Snapshot) InContext(factID, context string) bool {
	return s.contexts[factID][context]
}

// FieldValue returns the value bound to the named field of a fact, resolving
// the field position through the registered relation signature. The reserved
// "ctx" field resolves to the fact's canonical context key.
func (s *Snapshot) FieldValue(f *Fact, field string) (string, bool) {
	if field == ir.ContextField {
		return s.ContextKey(f.ID), true
	}
	schema := s.schemas[f.Schema]
	if schema == nil {
		return "", false
	}
	rel := schema.RelationByName(f.Relation)
	if rel == nil {
		return "", false
	}
	idx := rel.FieldIndex(field)
	if idx < 0 || idx >= len(f.Fields) {
		return "", false
	}
	return f.Fields[idx], true
}

// ContextKey renders a fact's context set as one canonical string (sorted,
// comma-joined). Constraints that fiber on "ctx" compare these keys.
func (s *Snapshot) ContextKey(factID string) string {
	ctxs := s.Contexts(factID)
	out := ""
	for i, c := range ctxs {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}

// DB is the mutable store handle: one current snapshot plus the writer lock
// serializing imports.
type DB struct {
	mu   sync.Mutex
	snap *Snapshot
}

// New creates an empty store.
func New() *DB {
	return &DB{snap: newSnapshot()}
}

// Snapshot returns the current immutable view. Safe to call concurrently
// with imports; the returned snapshot never changes.
func (db *DB) Snapshot() *Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.snap
}
