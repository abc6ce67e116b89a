// Package snapshot renders a fact store back to module text. The exported
// text parses with the loader and imports to a store with the same fact
// multiset and context memberships; exporting that store again reproduces
// the text byte for byte, so the export digest is a stable identity for
// the snapshot.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// Header is the comment line opening every export.
const Header = "// axiograph export v1"

// Export renders the snapshot as canonical module text. Schema and theory
// declarations come from the module; nodes and facts come from the
// snapshot, flattened into one instance per schema and sorted. Planes and
// original instance boundaries are not part of the export.
func Export(mod *ir.Module, snap *pathdb.Snapshot) (string, error) {
	var b strings.Builder
	b.WriteString(Header + "\n")
	fmt.Fprintf(&b, "module %s {\n", mod.Name)
	for _, schema := range mod.Schemas {
		writeSchema(&b, schema)
	}
	for _, theory := range mod.Theories {
		writeTheory(&b, theory)
	}
	for _, schema := range mod.Schemas {
		if err := writeInstance(&b, schema, snap); err != nil {
			return "", err
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// Digest is the module digest of the exported text.
func Digest(mod *ir.Module, snap *pathdb.Snapshot) (string, error) {
	text, err := Export(mod, snap)
	if err != nil {
		return "", err
	}
	return digest.Module(text), nil
}

func writeSchema(b *strings.Builder, s *ir.Schema) {
	fmt.Fprintf(b, "  schema %s {\n", s.Name)
	for _, t := range s.Types {
		if len(t.Supertypes) > 0 {
			fmt.Fprintf(b, "    type %s < %s\n", t.Name, strings.Join(t.Supertypes, ", "))
		} else {
			fmt.Fprintf(b, "    type %s\n", t.Name)
		}
	}
	for _, r := range s.Relations {
		params := make([]string, len(r.Fields))
		for i, f := range r.Fields {
			params[i] = f.Name + ": " + f.Type
		}
		fmt.Fprintf(b, "    relation %s(%s)", r.Name, strings.Join(params, ", "))
		if r.Context {
			b.WriteString(" @context")
		}
		if r.Temporal {
			b.WriteString(" @temporal")
		}
		b.WriteString("\n")
	}
	for _, c := range s.Constraints {
		writeConstraint(b, c)
	}
	b.WriteString("  }\n")
}

func writeConstraint(b *strings.Builder, c *ir.Constraint) {
	switch c.Kind {
	case ir.ConstraintKey:
		fmt.Fprintf(b, "    constraint key %s(%s)", c.Relation, strings.Join(c.Fields, ", "))
	case ir.ConstraintFunctional:
		fmt.Fprintf(b, "    constraint functional %s(%s -> %s)",
			c.Relation, strings.Join(c.Fields, ", "), strings.Join(c.Determined, ", "))
	case ir.ConstraintSymmetric, ir.ConstraintTransitive:
		fmt.Fprintf(b, "    constraint %s %s on (%s)", c.Kind, c.Relation, strings.Join(c.On, ", "))
		if len(c.Param) > 0 {
			fmt.Fprintf(b, " param (%s)", strings.Join(c.Param, ", "))
		}
	case ir.ConstraintTyping:
		fmt.Fprintf(b, "    constraint typing %s on %s", c.Rule, c.Relation)
	}
	if c.WhereField != "" {
		fmt.Fprintf(b, " where %s in {%s}", c.WhereField, strings.Join(c.WhereValues, ", "))
	}
	b.WriteString("\n")
}

func writeTheory(b *strings.Builder, t *ir.Theory) {
	fmt.Fprintf(b, "  theory %s for %s {\n", t.Name, t.Schema)
	for _, rule := range t.Rewrites {
		fmt.Fprintf(b, "    rewrite %s %s {\n", rule.Name, rule.Orientation)
		vars := make([]string, len(rule.Vars))
		for i, v := range rule.Vars {
			vars[i] = v.Name + ": " + v.Type
		}
		fmt.Fprintf(b, "      vars { %s }\n", strings.Join(vars, ", "))
		fmt.Fprintf(b, "      lhs %s\n", rule.LHS.Render())
		fmt.Fprintf(b, "      rhs %s\n", rule.RHS.Render())
		b.WriteString("    }\n")
	}
	b.WriteString("  }\n")
}

// writeInstance flattens the snapshot's nodes and facts for one schema into
// a single sorted instance block. Nodes belong to the schema declaring
// their type; facts carry their schema on the tuple.
func writeInstance(b *strings.Builder, schema *ir.Schema, snap *pathdb.Snapshot) error {
	var nodes []*pathdb.Node
	for _, n := range snap.Nodes() {
		if schema.TypeByName(n.Type) != nil {
			nodes = append(nodes, n)
		}
	}
	var facts []*pathdb.Fact
	for _, f := range snap.Facts() {
		if f.Schema == schema.Name {
			facts = append(facts, f)
		}
	}
	if len(nodes) == 0 && len(facts) == 0 {
		return nil
	}
	// Sort on rendered content, not fact IDs: IDs include the source
	// instance name, which the export rewrites, and the ordering must
	// survive a round trip.
	factKey := func(f *pathdb.Fact) string {
		return f.Relation + "(" + strings.Join(f.Fields, ",") + ")|" + snap.ContextKey(f.ID)
	}
	sort.Slice(facts, func(i, j int) bool {
		return factKey(facts[i]) < factKey(facts[j])
	})

	fmt.Fprintf(b, "  instance export_%s of %s {\n", schema.Name, schema.Name)
	for _, n := range nodes {
		fmt.Fprintf(b, "    node %s: %s\n", n.Name, n.Type)
	}
	for _, f := range facts {
		rel := schema.RelationByName(f.Relation)
		if rel == nil {
			return fmt.Errorf("fact %s references unknown relation %s", f.ID, f.Relation)
		}
		if len(rel.Fields) != len(f.Fields) {
			return fmt.Errorf("fact %s has %d values for %d fields of %s", f.ID, len(f.Fields), len(rel.Fields), f.Relation)
		}
		bindings := make([]string, len(rel.Fields))
		for i, field := range rel.Fields {
			bindings[i] = field.Name + " = " + f.Fields[i]
		}
		fmt.Fprintf(b, "    fact %s(%s)", f.Relation, strings.Join(bindings, ", "))
		if ctxs := snap.Contexts(f.ID); len(ctxs) > 0 {
			fmt.Fprintf(b, " ctx {%s}", strings.Join(ctxs, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("  }\n")
	return nil
}
