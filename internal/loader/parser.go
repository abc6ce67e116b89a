package loader

import (
	"fmt"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// Parse loads module text into IR, validates it, and returns the module or
// a structured error (ParseError, TypeError, NonCertifiableError).
//
// Parsing is pure and deterministic: identical text yields an IR that
// renders and digests identically. The original text is retained on
// Module.Source; the module digest is always computed over those bytes.
//
// Grammar (line comments with //, free-form whitespace):
//
//	module NAME {
//	  schema NAME {
//	    type T [< Super1, Super2]
//	    relation R(f1: T1, f2: T2) [@context] [@temporal]
//	    constraint key R(f1, f2)
//	    constraint functional R(a, b -> c)
//	    constraint symmetric R on (a, b) [param (p)] [where f in {v1, v2}]
//	    constraint transitive R on (from, to) [param (p)] [where ...]
//	    constraint typing RULE on R
//	  }
//	  theory NAME for SCHEMA {
//	    rewrite NAME forward|bidirectional {
//	      vars { x: T, y: T }
//	      lhs trans(step(x, R, y), step(y, R, z))
//	      rhs step(x, S, z)
//	    }
//	  }
//	  instance NAME of SCHEMA {
//	    node N: T
//	    fact R(f1 = N1, f2 = N2) [ctx {C1, C2}]
//	  }
//	}
func Parse(text string) (*ir.Module, error) {
	p := &parser{lex: newLexer(text)}
	if err := p.init(); err != nil {
		return nil, err
	}
	mod, err := p.parseModule()
	if err != nil {
		return nil, err
	}
	mod.Source = text
	if err := validate(mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// ParsePathTerm parses a standalone path term, e.g.
// "trans(step(a, Parent, b), step(b, Parent, c))".
func ParsePathTerm(text string) (ir.PathTerm, error) {
	p := &parser{lex: newLexer(text)}
	if err := p.init(); err != nil {
		return nil, err
	}
	term, err := p.parsePathTerm()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.text)
	}
	return term, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) init() error {
	return p.advance()
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.tok.line, Col: p.tok.col, Message: fmt.Sprintf(format, args...)}
}

// expect consumes a token of the given kind and returns it.
func (p *parser) expect(kind tokenKind) (token, error) {
	if p.tok.kind != kind {
		return token{}, p.errorf("expected %s, got %q", kind, p.tok.text)
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

// expectKeyword consumes an identifier with the exact text.
func (p *parser) expectKeyword(word string) error {
	if p.tok.kind != tokIdent || p.tok.text != word {
		return p.errorf("expected %q, got %q", word, p.tok.text)
	}
	return p.advance()
}

// atKeyword reports whether the current token is the given identifier.
func (p *parser) atKeyword(word string) bool {
	return p.tok.kind == tokIdent && p.tok.text == word
}

func (p *parser) parseModule() (*ir.Module, error) {
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	mod := &ir.Module{Name: name.text}
	for p.tok.kind != tokRBrace {
		switch {
		case p.atKeyword("schema"):
			s, err := p.parseSchema()
			if err != nil {
				return nil, err
			}
			mod.Schemas = append(mod.Schemas, s)
		case p.atKeyword("theory"):
			t, err := p.parseTheory()
			if err != nil {
				return nil, err
			}
			mod.Theories = append(mod.Theories, t)
		case p.atKeyword("instance"):
			inst, err := p.parseInstance()
			if err != nil {
				return nil, err
			}
			mod.Instances = append(mod.Instances, inst)
		default:
			return nil, p.errorf("expected schema, theory, or instance, got %q", p.tok.text)
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.text)
	}
	return mod, nil
}

func (p *parser) parseSchema() (*ir.Schema, error) {
	if err := p.expectKeyword("schema"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	s := &ir.Schema{Name: name.text}
	for p.tok.kind != tokRBrace {
		switch {
		case p.atKeyword("type"):
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			s.Types = append(s.Types, t)
		case p.atKeyword("relation"):
			r, err := p.parseRelation()
			if err != nil {
				return nil, err
			}
			s.Relations = append(s.Relations, r)
		case p.atKeyword("constraint"):
			c, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			s.Constraints = append(s.Constraints, c)
		default:
			return nil, p.errorf("expected type, relation, or constraint, got %q", p.tok.text)
		}
	}
	_, err = p.expect(tokRBrace)
	return s, err
}

func (p *parser) parseType() (*ir.ObjectType, error) {
	if err := p.expectKeyword("type"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	t := &ir.ObjectType{Name: name.text}
	if p.tok.kind == tokLess {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			sup, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			t.Supertypes = append(t.Supertypes, sup.text)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (p *parser) parseRelation() (*ir.Relation, error) {
	if err := p.expectKeyword("relation"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	r := &ir.Relation{Name: name.text}
	for p.tok.kind != tokRParen {
		fieldName, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		fieldType, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		r.Fields = append(r.Fields, ir.Field{Name: fieldName.text, Type: fieldType.text})
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	for p.tok.kind == tokAt {
		if err := p.advance(); err != nil {
			return nil, err
		}
		ann, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		switch ann.text {
		case "context":
			r.Context = true
		case "temporal":
			r.Temporal = true
		default:
			return nil, &ParseError{Line: ann.line, Col: ann.col, Message: fmt.Sprintf("unknown annotation @%s", ann.text)}
		}
	}
	return r, nil
}

func (p *parser) parseConstraint() (*ir.Constraint, error) {
	if err := p.expectKeyword("constraint"); err != nil {
		return nil, err
	}
	kindTok, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	c := &ir.Constraint{Kind: ir.ConstraintKind(kindTok.text)}
	switch c.Kind {
	case ir.ConstraintKey:
		if err := p.parseKeyBody(c); err != nil {
			return nil, err
		}
	case ir.ConstraintFunctional:
		if err := p.parseFunctionalBody(c); err != nil {
			return nil, err
		}
	case ir.ConstraintSymmetric, ir.ConstraintTransitive:
		if err := p.parseClosureBody(c); err != nil {
			return nil, err
		}
	case ir.ConstraintTyping:
		rule, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		c.Rule = rule.text
		if err := p.expectKeyword("on"); err != nil {
			return nil, err
		}
		rel, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		c.Relation = rel.text
	default:
		return nil, &ParseError{Line: kindTok.line, Col: kindTok.col, Message: fmt.Sprintf("unknown constraint kind %q", kindTok.text)}
	}
	return c, nil
}

// parseKeyBody parses "R(f1, f2, ...)".
func (p *parser) parseKeyBody(c *ir.Constraint) error {
	rel, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	c.Relation = rel.text
	if _, err := p.expect(tokLParen); err != nil {
		return err
	}
	fields, err := p.parseIdentListUntil(tokRParen)
	if err != nil {
		return err
	}
	c.Fields = fields
	if _, err := p.expect(tokRParen); err != nil {
		return err
	}
	return p.parseConstraintSuffix(c)
}

// parseFunctionalBody parses "R(a, b -> c, d)".
func (p *parser) parseFunctionalBody(c *ir.Constraint) error {
	rel, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	c.Relation = rel.text
	if _, err := p.expect(tokLParen); err != nil {
		return err
	}
	determinants, err := p.parseIdentListUntil(tokArrow)
	if err != nil {
		return err
	}
	c.Fields = determinants
	if _, err := p.expect(tokArrow); err != nil {
		return err
	}
	determined, err := p.parseIdentListUntil(tokRParen)
	if err != nil {
		return err
	}
	c.Determined = determined
	if _, err := p.expect(tokRParen); err != nil {
		return err
	}
	return p.parseConstraintSuffix(c)
}

// parseClosureBody parses "R on (a, b) [param (p)] [where ...]".
func (p *parser) parseClosureBody(c *ir.Constraint) error {
	rel, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	c.Relation = rel.text
	if err := p.expectKeyword("on"); err != nil {
		return err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return err
	}
	carrier, err := p.parseIdentListUntil(tokRParen)
	if err != nil {
		return err
	}
	c.On = carrier
	if _, err := p.expect(tokRParen); err != nil {
		return err
	}
	return p.parseConstraintSuffix(c)
}

// parseConstraintSuffix parses optional "param (p1, p2)" and
// "where f in {v1, v2}" clauses, in that order.
func (p *parser) parseConstraintSuffix(c *ir.Constraint) error {
	if p.atKeyword("param") {
		if err := p.advance(); err != nil {
			return err
		}
		if _, err := p.expect(tokLParen); err != nil {
			return err
		}
		params, err := p.parseIdentListUntil(tokRParen)
		if err != nil {
			return err
		}
		c.Param = params
		if _, err := p.expect(tokRParen); err != nil {
			return err
		}
	}
	if p.atKeyword("where") {
		if err := p.advance(); err != nil {
			return err
		}
		field, err := p.expect(tokIdent)
		if err != nil {
			return err
		}
		c.WhereField = field.text
		if err := p.expectKeyword("in"); err != nil {
			return err
		}
		if _, err := p.expect(tokLBrace); err != nil {
			return err
		}
		values, err := p.parseIdentListUntil(tokRBrace)
		if err != nil {
			return err
		}
		c.WhereValues = values
		if _, err := p.expect(tokRBrace); err != nil {
			return err
		}
	}
	return nil
}

// parseIdentListUntil parses a comma-separated identifier list, stopping at
// the terminator without consuming it.
func (p *parser) parseIdentListUntil(terminator tokenKind) ([]string, error) {
	var out []string
	for p.tok.kind != terminator {
		id, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		out = append(out, id.text)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (p *parser) parseTheory() (*ir.Theory, error) {
	if err := p.expectKeyword("theory"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("for"); err != nil {
		return nil, err
	}
	schema, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	th := &ir.Theory{Name: name.text, Schema: schema.text}
	for p.tok.kind != tokRBrace {
		rule, err := p.parseRewrite()
		if err != nil {
			return nil, err
		}
		th.Rewrites = append(th.Rewrites, rule)
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return th, nil
}

func (p *parser) parseRewrite() (*ir.RewriteRule, error) {
	if err := p.expectKeyword("rewrite"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	orientTok, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	orient := ir.Orientation(orientTok.text)
	if orient != ir.Forward && orient != ir.Bidirectional {
		return nil, &ParseError{Line: orientTok.line, Col: orientTok.col,
			Message: fmt.Sprintf("orientation must be forward or bidirectional, got %q", orientTok.text)}
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	rule := &ir.RewriteRule{Name: name.text, Orientation: orient}
	if err := p.expectKeyword("vars"); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRBrace {
		varName, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		varType, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		rule.Vars = append(rule.Vars, ir.Field{Name: varName.text, Type: varType.text})
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("lhs"); err != nil {
		return nil, err
	}
	rule.LHS, err = p.parsePathTerm()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("rhs"); err != nil {
		return nil, err
	}
	rule.RHS, err = p.parsePathTerm()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return rule, nil
}

func (p *parser) parsePathTerm() (ir.PathTerm, error) {
	op, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	switch op.text {
	case "step":
		if _, err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		from, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
		rel, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
		to, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return ir.Step{From: from.text, Rel: rel.text, To: to.text}, nil
	case "trans":
		if _, err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		p1, err := p.parsePathTerm()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
		p2, err := p.parsePathTerm()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return ir.Trans{P1: p1, P2: p2}, nil
	case "inv":
		if _, err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		inner, err := p.parsePathTerm()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return ir.Inv{P: inner}, nil
	default:
		return nil, &ParseError{Line: op.line, Col: op.col,
			Message: fmt.Sprintf("expected step, trans, or inv, got %q", op.text)}
	}
}

func (p *parser) parseInstance() (*ir.Instance, error) {
	if err := p.expectKeyword("instance"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("of"); err != nil {
		return nil, err
	}
	schema, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	inst := &ir.Instance{Name: name.text, Schema: schema.text}
	for p.tok.kind != tokRBrace {
		switch {
		case p.atKeyword("node"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			nodeName, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokColon); err != nil {
				return nil, err
			}
			nodeType, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			inst.Nodes = append(inst.Nodes, ir.NodeDecl{Name: nodeName.text, Type: nodeType.text})
		case p.atKeyword("fact"):
			tuple, err := p.parseFact()
			if err != nil {
				return nil, err
			}
			inst.Facts = append(inst.Facts, *tuple)
		default:
			return nil, p.errorf("expected node or fact, got %q", p.tok.text)
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return inst, nil
}

func (p *parser) parseFact() (*ir.TupleExpr, error) {
	factTok := p.tok
	if err := p.expectKeyword("fact"); err != nil {
		return nil, err
	}
	rel, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	tuple := &ir.TupleExpr{Relation: rel.text, Line: factTok.line, Col: factTok.col}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRParen {
		field, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEquals); err != nil {
			return nil, err
		}
		value, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		tuple.Bindings = append(tuple.Bindings, ir.FieldBinding{Field: field.text, Value: value.text})
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if p.atKeyword("ctx") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLBrace); err != nil {
			return nil, err
		}
		contexts, err := p.parseIdentListUntil(tokRBrace)
		if err != nil {
			return nil, err
		}
		tuple.Contexts = contexts
		if _, err := p.expect(tokRBrace); err != nil {
			return nil, err
		}
	}
	return tuple, nil
}
