package loader

import (
	"fmt"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// validate checks the parsed module against its own declarations: undeclared
// references, malformed constraints, ill-typed instance tuples, and
// non-certifiable closure declarations. It also normalizes tuples (fills
// TupleExpr.Fields in declared field order) and materializes the implicit
// temporal field on @temporal relations.
func validate(mod *ir.Module) error {
	for _, schema := range mod.Schemas {
		if err := validateSchema(schema); err != nil {
			return err
		}
	}
	for _, theory := range mod.Theories {
		schema := mod.SchemaByName(theory.Schema)
		if schema == nil {
			return &TypeError{Ref: theory.Schema, Message: fmt.Sprintf("theory %s references undeclared schema", theory.Name)}
		}
		if err := validateTheory(theory, schema); err != nil {
			return err
		}
	}
	for _, inst := range mod.Instances {
		schema := mod.SchemaByName(inst.Schema)
		if schema == nil {
			return &TypeError{Ref: inst.Schema, Message: fmt.Sprintf("instance %s references undeclared schema", inst.Name)}
		}
		if err := validateInstance(inst, schema); err != nil {
			return err
		}
	}
	return nil
}

func validateSchema(schema *ir.Schema) error {
	seenTypes := make(map[string]bool)
	for _, t := range schema.Types {
		if seenTypes[t.Name] {
			return &TypeError{Ref: t.Name, Message: "duplicate type declaration"}
		}
		seenTypes[t.Name] = true
	}
	for _, t := range schema.Types {
		for _, sup := range t.Supertypes {
			if !seenTypes[sup] {
				return &TypeError{Ref: sup, Message: fmt.Sprintf("type %s references undeclared supertype", t.Name)}
			}
		}
	}
	if err := checkSupertypeAcyclic(schema); err != nil {
		return err
	}

	seenRels := make(map[string]bool)
	needsContext, needsTime := false, false
	for _, r := range schema.Relations {
		if seenRels[r.Name] {
			return &TypeError{Ref: r.Name, Message: "duplicate relation declaration"}
		}
		seenRels[r.Name] = true
		if r.Context {
			needsContext = true
		}
		if r.Temporal {
			needsTime = true
			// Materialize the implicit trailing time field once.
			if r.FieldIndex(ir.TemporalField) < 0 {
				r.Fields = append(r.Fields, ir.Field{Name: ir.TemporalField, Type: "Time"})
			}
		}
		seenFields := make(map[string]bool)
		for _, f := range r.Fields {
			if seenFields[f.Name] {
				return &TypeError{Ref: f.Name, Message: fmt.Sprintf("relation %s declares field twice", r.Name)}
			}
			seenFields[f.Name] = true
			if !seenTypes[f.Type] {
				return &TypeError{Ref: f.Type, Message: fmt.Sprintf("relation %s field %s references undeclared type", r.Name, f.Name)}
			}
		}
	}
	if needsContext && !seenTypes["Context"] {
		return &TypeError{Ref: "Context", Message: "schema uses @context but declares no Context type"}
	}
	if needsTime && !seenTypes["Time"] {
		return &TypeError{Ref: "Time", Message: "schema uses @temporal but declares no Time type"}
	}

	for _, c := range schema.Constraints {
		if err := validateConstraint(c, schema); err != nil {
			return err
		}
	}
	return checkCertifiable(schema)
}

// checkSupertypeAcyclic rejects cyclic supertype declarations. The supertype
// graph must be a DAG (it need not be a tree).
func checkSupertypeAcyclic(schema *ir.Schema) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case gray:
			return false
		case black:
			return true
		}
		color[name] = gray
		if t := schema.TypeByName(name); t != nil {
			for _, sup := range t.Supertypes {
				if !visit(sup) {
					return false
				}
			}
		}
		color[name] = black
		return true
	}
	for _, t := range schema.Types {
		if !visit(t.Name) {
			return &TypeError{Ref: t.Name, Message: "supertype cycle detected"}
		}
	}
	return nil
}

func validateConstraint(c *ir.Constraint, schema *ir.Schema) error {
	rel := schema.RelationByName(c.Relation)
	if rel == nil {
		return &TypeError{Ref: c.Relation, Message: fmt.Sprintf("constraint %s targets undeclared relation", c.Name())}
	}
	checkFields := func(clause string, fields []string) error {
		for _, f := range fields {
			if !rel.HasField(f) {
				return &TypeError{Ref: f, Message: fmt.Sprintf("constraint %s %s clause references field not in relation signature", c.Name(), clause)}
			}
		}
		return nil
	}
	switch c.Kind {
	case ir.ConstraintKey:
		if len(c.Fields) == 0 {
			return &TypeError{Ref: c.Relation, Message: "key constraint must name at least one field"}
		}
		if err := checkFields("key", c.Fields); err != nil {
			return err
		}
	case ir.ConstraintFunctional:
		if len(c.Fields) == 0 || len(c.Determined) == 0 {
			return &TypeError{Ref: c.Relation, Message: "functional constraint must name determinant and determined fields"}
		}
		if err := checkFields("determinant", c.Fields); err != nil {
			return err
		}
		if err := checkFields("determined", c.Determined); err != nil {
			return err
		}
	case ir.ConstraintSymmetric, ir.ConstraintTransitive:
		if len(c.On) != 2 {
			return &TypeError{Ref: c.Relation, Message: fmt.Sprintf("%s constraint needs exactly two carrier fields, got %d", c.Kind, len(c.On))}
		}
		// Carrier fields must be real signature fields of a common type:
		// swapping and composing them must stay within one partition.
		var carrierTypes [2]string
		for i, f := range c.On {
			idx := rel.FieldIndex(f)
			if idx < 0 {
				return &TypeError{Ref: f, Message: fmt.Sprintf("constraint %s carrier field not in relation signature", c.Name())}
			}
			carrierTypes[i] = rel.Fields[idx].Type
		}
		if carrierTypes[0] != carrierTypes[1] {
			return &TypeError{Ref: c.Relation, Message: fmt.Sprintf("constraint %s carrier fields have different types (%s, %s)", c.Name(), carrierTypes[0], carrierTypes[1])}
		}
		if err := checkFields("param", c.Param); err != nil {
			return err
		}
		for _, p := range c.Param {
			for _, f := range c.On {
				if p == f {
					return &NonCertifiableError{
						Constraint: c.Name(),
						Message:    fmt.Sprintf("carrier field %s also appears in param clause; carrier and param must be disjoint", p),
					}
				}
			}
		}
	case ir.ConstraintTyping:
		if !ir.KnownTypingRule(c.Rule) {
			return &TypeError{Ref: c.Rule, Message: "unknown typing rule"}
		}
		if len(rel.Fields) < 2 {
			return &TypeError{Ref: c.Relation, Message: fmt.Sprintf("typing rule %s needs a relation with at least two fields", c.Rule)}
		}
	default:
		return &TypeError{Ref: string(c.Kind), Message: "unknown constraint kind"}
	}
	if c.WhereField != "" && !rel.HasField(c.WhereField) {
		return &TypeError{Ref: c.WhereField, Message: fmt.Sprintf("constraint %s where clause references field not in relation signature", c.Name())}
	}
	return nil
}

// checkCertifiable rejects key/functional constraints that mention fields
// outside the carrier+param set of a co-declared closure constraint on the
// same relation. A closure-implied tuple has no defined value for such
// fields, so the combination cannot be certified.
func checkCertifiable(schema *ir.Schema) error {
	for _, closure := range schema.Constraints {
		if !closure.Kind.IsClosure() {
			continue
		}
		allowed := make(map[string]bool, len(closure.On)+len(closure.Param))
		for _, f := range closure.On {
			allowed[f] = true
		}
		for _, f := range closure.Param {
			allowed[f] = true
		}
		for _, c := range schema.ConstraintsFor(closure.Relation) {
			if c.Kind != ir.ConstraintKey && c.Kind != ir.ConstraintFunctional {
				continue
			}
			for _, f := range append(append([]string{}, c.Fields...), c.Determined...) {
				if !allowed[f] {
					return &NonCertifiableError{
						Constraint: closure.Name(),
						Conflict:   c.Name(),
						Message:    fmt.Sprintf("field %s is outside the carrier+param set; declare it in param(...) or drop it from the %s constraint", f, c.Kind),
					}
				}
			}
		}
	}
	return nil
}

func validateTheory(theory *ir.Theory, schema *ir.Schema) error {
	closure := schema.TypeClosure()
	seen := make(map[string]bool)
	for _, rule := range theory.Rewrites {
		if seen[rule.Name] {
			return &TypeError{Ref: rule.Name, Message: "duplicate rewrite rule"}
		}
		seen[rule.Name] = true

		vars := make(map[string]string, len(rule.Vars))
		for _, v := range rule.Vars {
			if _, dup := vars[v.Name]; dup {
				return &TypeError{Ref: v.Name, Message: fmt.Sprintf("rewrite %s declares variable twice", rule.Name)}
			}
			if schema.TypeByName(v.Type) == nil {
				return &TypeError{Ref: v.Type, Message: fmt.Sprintf("rewrite %s variable %s has undeclared type", rule.Name, v.Name)}
			}
			vars[v.Name] = v.Type
		}
		if err := validateTerm(rule.LHS, rule, "lhs", vars, schema, closure); err != nil {
			return err
		}
		if err := validateTerm(rule.RHS, rule, "rhs", vars, schema, closure); err != nil {
			return err
		}
		if rule.LHS.Start() != rule.RHS.Start() || rule.LHS.End() != rule.RHS.End() {
			return &TypeError{Ref: rule.Name, Message: "rewrite lhs and rhs must share start and end variables"}
		}
	}
	return nil
}

func validateTerm(term ir.PathTerm, rule *ir.RewriteRule, side string, vars map[string]string, schema *ir.Schema, closure map[string]map[string]bool) error {
	switch node := term.(type) {
	case ir.Step:
		rel := schema.RelationByName(node.Rel)
		if rel == nil {
			return &TypeError{Ref: node.Rel, Message: fmt.Sprintf("rewrite %s %s steps over undeclared relation", rule.Name, side)}
		}
		if len(rel.Fields) < 2 {
			return &TypeError{Ref: node.Rel, Message: fmt.Sprintf("rewrite %s steps over relation with fewer than two fields", rule.Name)}
		}
		endpoints := []struct {
			varName   string
			fieldType string
		}{
			{node.From, rel.Fields[0].Type},
			{node.To, rel.Fields[len(rel.Fields)-1].Type},
		}
		for _, ep := range endpoints {
			varType, ok := vars[ep.varName]
			if !ok {
				return &TypeError{Ref: ep.varName, Message: fmt.Sprintf("rewrite %s %s uses undeclared variable", rule.Name, side)}
			}
			if !closure[varType][ep.fieldType] {
				return &TypeError{Ref: ep.varName, Message: fmt.Sprintf("rewrite %s variable type %s is not a subtype of %s", rule.Name, varType, ep.fieldType)}
			}
		}
		return nil
	case ir.Trans:
		if node.P1.End() != node.P2.Start() {
			return &TypeError{Ref: rule.Name, Message: fmt.Sprintf("rewrite %s %s composes paths that do not meet (%s vs %s)", rule.Name, side, node.P1.End(), node.P2.Start())}
		}
		if err := validateTerm(node.P1, rule, side, vars, schema, closure); err != nil {
			return err
		}
		return validateTerm(node.P2, rule, side, vars, schema, closure)
	case ir.Inv:
		return validateTerm(node.P, rule, side, vars, schema, closure)
	default:
		return &TypeError{Ref: rule.Name, Message: fmt.Sprintf("unknown path term %T", term)}
	}
}

func validateInstance(inst *ir.Instance, schema *ir.Schema) error {
	closure := schema.TypeClosure()
	nodeTypes := make(map[string]string, len(inst.Nodes))
	for _, n := range inst.Nodes {
		if _, dup := nodeTypes[n.Name]; dup {
			return &TypeError{Ref: n.Name, Message: fmt.Sprintf("instance %s declares node twice", inst.Name)}
		}
		if schema.TypeByName(n.Type) == nil {
			return &TypeError{Ref: n.Type, Message: fmt.Sprintf("node %s has undeclared type", n.Name)}
		}
		nodeTypes[n.Name] = n.Type
	}
	for i := range inst.Facts {
		tuple := &inst.Facts[i]
		rel := schema.RelationByName(tuple.Relation)
		if rel == nil {
			return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: tuple.Relation, Message: "fact references undeclared relation"}
		}
		bound := make(map[string]string, len(tuple.Bindings))
		for _, b := range tuple.Bindings {
			if rel.FieldIndex(b.Field) < 0 {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: b.Field, Message: fmt.Sprintf("fact %s binds field not in relation signature", tuple.Relation)}
			}
			if _, dup := bound[b.Field]; dup {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: b.Field, Message: fmt.Sprintf("fact %s binds field twice", tuple.Relation)}
			}
			bound[b.Field] = b.Value
		}
		// All fields bound, no partial facts.
		tuple.Fields = make([]string, len(rel.Fields))
		for j, f := range rel.Fields {
			value, ok := bound[f.Name]
			if !ok {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: f.Name, Message: fmt.Sprintf("fact %s omits declared field", tuple.Relation)}
			}
			nodeType, declared := nodeTypes[value]
			if !declared {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: value, Message: fmt.Sprintf("fact %s binds undeclared node", tuple.Relation)}
			}
			if !closure[nodeType][f.Type] {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: value, Message: fmt.Sprintf("fact %s field %s expects %s, node %s is %s", tuple.Relation, f.Name, f.Type, value, nodeType)}
			}
			tuple.Fields[j] = value
		}
		if len(tuple.Contexts) > 0 && !rel.Context {
			return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: tuple.Relation, Message: "ctx set on a relation not annotated @context"}
		}
		for _, ctx := range tuple.Contexts {
			nodeType, declared := nodeTypes[ctx]
			if !declared {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: ctx, Message: "context references undeclared node"}
			}
			if !closure[nodeType]["Context"] {
				return &TypeError{Line: tuple.Line, Col: tuple.Col, Ref: ctx, Message: fmt.Sprintf("context node %s is not of type Context", ctx)}
			}
		}
	}
	return nil
}
