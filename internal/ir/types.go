package ir

// Module is a named unit containing schemas, theories, and instances.
// Modules are immutable once loaded and identified by a content digest over
// their canonical text (see internal/digest).
type Module struct {
	Name      string      `json:"name"`
	Schemas   []*Schema   `json:"schemas"`
	Theories  []*Theory   `json:"theories,omitempty"`
	Instances []*Instance `json:"instances,omitempty"`

	// Source is the exact text the module was parsed from. The module
	// digest is computed over these bytes, never over a re-rendering.
	Source string `json:"-"`
}

// Schema declares object types, relation signatures, and constraints.
type Schema struct {
	Name        string        `json:"name"`
	Types       []*ObjectType `json:"types"`
	Relations   []*Relation   `json:"relations"`
	Constraints []*Constraint `json:"constraints,omitempty"`
}

// ObjectType is an entity sort. Supertypes form a DAG, not necessarily a
// tree; a node's effective type set is the type plus its supertype closure.
type ObjectType struct {
	Name       string   `json:"name"`
	Supertypes []string `json:"supertypes,omitempty"`
}

// Field is one (name, type) slot of a relation signature. Declaration order
// is significant: fact identity hashes fields in declared order.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relation is a typed tuple shape.
//
// A relation annotated @context carries an auxiliary per-fact context set
// (zero or more Context nodes); the set is not part of the field tuple, so
// the same field combination may repeat under different contexts. A relation
// annotated @temporal carries an implicit trailing field "time: Time" that
// IS part of the tuple.
type Relation struct {
	Name     string  `json:"name"`
	Fields   []Field `json:"fields"`
	Context  bool    `json:"context,omitempty"`
	Temporal bool    `json:"temporal,omitempty"`
}

// ContextField is the reserved field name constraints use to refer to a
// @context relation's context scope (e.g. "key Knows(a) param (ctx)").
const ContextField = "ctx"

// TemporalField is the implicit trailing field added by @temporal.
const TemporalField = "time"

// FieldIndex returns the position of the named field, or -1.
func (r *Relation) FieldIndex(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// HasField reports whether name is a declared field or, for @context
// relations, the reserved context field.
func (r *Relation) HasField(name string) bool {
	if r.Context && name == ContextField {
		return true
	}
	return r.FieldIndex(name) >= 0
}

// ConstraintKind tags the constraint variant. Dispatch is a single switch
// over this tag; there is no constraint type hierarchy.
type ConstraintKind string

const (
	ConstraintKey        ConstraintKind = "key"
	ConstraintFunctional ConstraintKind = "functional"
	ConstraintSymmetric  ConstraintKind = "symmetric"
	ConstraintTransitive ConstraintKind = "transitive"
	ConstraintTyping     ConstraintKind = "typing"
)

// IsClosure reports whether the kind is a closure-compatibility annotation
// (checked without materializing implied tuples).
func (k ConstraintKind) IsClosure() bool {
	return k == ConstraintSymmetric || k == ConstraintTransitive
}

// Constraint targets one relation of its schema.
//
//   - key: Fields are the key fields.
//   - functional: Fields are the determinant fields, Determined the dependents.
//   - symmetric/transitive: On are the carrier fields, Param the fibering
//     parameters; carrier and param must be disjoint.
//   - typing: Rule names a built-in executable typing rule.
//
// Where, when present, restricts the constraint to tuples whose WhereField
// value is in WhereValues.
type Constraint struct {
	Kind       ConstraintKind `json:"kind"`
	Relation   string         `json:"relation"`
	Fields     []string       `json:"fields,omitempty"`
	Determined []string       `json:"determined,omitempty"`
	On         []string       `json:"on,omitempty"`
	Param      []string       `json:"param,omitempty"`
	Rule       string         `json:"rule,omitempty"`

	WhereField  string   `json:"where_field,omitempty"`
	WhereValues []string `json:"where_values,omitempty"`
}

// Name renders a stable human-readable identifier for error reports.
func (c *Constraint) Name() string {
	if c.Kind == ConstraintTyping {
		return string(c.Kind) + " " + c.Rule
	}
	return string(c.Kind) + " " + c.Relation
}

// Theory declares rewrite rules scoped to the relations of one schema.
type Theory struct {
	Name     string         `json:"name"`
	Schema   string         `json:"schema"`
	Rewrites []*RewriteRule `json:"rewrites"`
}

// Orientation controls which direction(s) a rewrite rule may be applied in.
type Orientation string

const (
	Forward       Orientation = "forward"
	Bidirectional Orientation = "bidirectional"
)

// RewriteRule is a named equation over the path algebra. Vars type the
// variables occurring in LHS/RHS.
type RewriteRule struct {
	Name        string      `json:"name"`
	Orientation Orientation `json:"orientation"`
	Vars        []Field     `json:"vars"`
	LHS         PathTerm    `json:"-"`
	RHS         PathTerm    `json:"-"`
}

// Instance holds the concrete nodes and fact tuples of one schema.
type Instance struct {
	Name   string      `json:"name"`
	Schema string      `json:"schema"`
	Nodes  []NodeDecl  `json:"nodes"`
	Facts  []TupleExpr `json:"facts"`
}

// NodeDecl introduces a named node of a declared object type.
type NodeDecl struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FieldBinding is one "field = value" pair as written in the source.
type FieldBinding struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// TupleExpr is one instance tuple: every declared field bound to a node
// name, plus an optional context set for @context relations.
//
// Bindings preserves source order; Fields is filled by loader validation
// with values re-ordered to the relation's declared field order, which is
// the order fact identity hashes use. Contexts are kept in source order
// here; the store canonicalizes.
type TupleExpr struct {
	Relation string         `json:"relation"`
	Bindings []FieldBinding `json:"bindings"`
	Fields   []string       `json:"fields"` // values in declared field order, set by validation
	Contexts []string       `json:"contexts,omitempty"`

	Line int `json:"-"`
	Col  int `json:"-"`
}

// SchemaByName returns the named schema or nil.
func (m *Module) SchemaByName(name string) *Schema {
	for _, s := range m.Schemas {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RelationByName returns the named relation or nil.
func (s *Schema) RelationByName(name string) *Relation {
	for _, r := range s.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// TypeByName returns the named object type or nil.
func (s *Schema) TypeByName(name string) *ObjectType {
	for _, t := range s.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ConstraintsFor returns all constraints targeting the named relation, in
// declaration order.
func (s *Schema) ConstraintsFor(relation string) []*Constraint {
	var out []*Constraint
	for _, c := range s.Constraints {
		if c.Relation == relation {
			out = append(out, c)
		}
	}
	return out
}

// TypeClosure computes the effective type set for every declared type: the
// type itself plus all transitive supertypes. Computed once at load and
// cached by the store; membership checks are set lookups.
func (s *Schema) TypeClosure() map[string]map[string]bool {
	closure := make(map[string]map[string]bool, len(s.Types))
	var expand func(name string, into map[string]bool)
	expand = func(name string, into map[string]bool) {
		if into[name] {
			return
		}
		into[name] = true
		if t := s.TypeByName(name); t != nil {
			for _, sup := range t.Supertypes {
				expand(sup, into)
			}
		}
	}
	for _, t := range s.Types {
		set := make(map[string]bool)
		expand(t.Name, set)
		closure[t.Name] = set
	}
	return closure
}
