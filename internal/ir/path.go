package ir

import (
	"fmt"
	"strings"
)

// PathTerm is a term of the path algebra.
//
// This is a sealed interface - only types in this package implement it.
// Term constructors:
//   - Step: one edge of a relation, endpoints bound to variables or nodes
//   - Trans: sequential composition (p1's endpoint must meet p2's start)
//   - Inv: edge reversal (swaps the bound endpoints)
type PathTerm interface {
	pathNode()

	// Render produces the canonical textual form of the term. Renderings
	// are injective on terms and define the lexical order used to break
	// rewrite ties, so the format is part of the certified contract.
	Render() string

	// Start and End name the term's endpoints (a variable or node name).
	Start() string
	End() string
}

// Step is a single edge along Rel from From to To.
type Step struct {
	From string `json:"from"`
	Rel  string `json:"rel"`
	To   string `json:"to"`
}

// Trans composes P1 then P2.
type Trans struct {
	P1 PathTerm `json:"p1"`
	P2 PathTerm `json:"p2"`
}

// Inv reverses P.
type Inv struct {
	P PathTerm `json:"p"`
}

func (Step) pathNode()  {}
func (Trans) pathNode() {}
func (Inv) pathNode()   {}

func (s Step) Render() string {
	return fmt.Sprintf("step(%s, %s, %s)", s.From, s.Rel, s.To)
}

func (t Trans) Render() string {
	return fmt.Sprintf("trans(%s, %s)", t.P1.Render(), t.P2.Render())
}

func (i Inv) Render() string {
	return fmt.Sprintf("inv(%s)", i.P.Render())
}

func (s Step) Start() string { return s.From }
func (s Step) End() string   { return s.To }

func (t Trans) Start() string { return t.P1.Start() }
func (t Trans) End() string   { return t.P2.End() }

func (i Inv) Start() string { return i.P.End() }
func (i Inv) End() string   { return i.P.Start() }

// TermsEqual reports structural equality. Renderings are injective, so
// comparing them is equivalent to a structural walk.
func TermsEqual(a, b PathTerm) bool {
	return a.Render() == b.Render()
}

// TermPos addresses a subterm: the empty path is the term itself, 0/1 select
// Trans children, 0 selects the Inv child. Rendered as dot-joined indices in
// certificates ("" for the root).
type TermPos []int

// String renders the position for certificate payloads.
func (p TermPos) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return strings.Join(parts, ".")
}

// ParseTermPos parses the String form back into a position.
func ParseTermPos(s string) (TermPos, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ".")
	pos := make(TermPos, len(parts))
	for i, part := range parts {
		var idx int
		if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx > 1 {
			return nil, fmt.Errorf("invalid term position %q", s)
		}
		pos[i] = idx
	}
	return pos, nil
}

// SubtermAt returns the subterm at pos, or an error if pos does not address
// one.
func SubtermAt(t PathTerm, pos TermPos) (PathTerm, error) {
	cur := t
	for depth, idx := range pos {
		switch node := cur.(type) {
		case Trans:
			if idx == 0 {
				cur = node.P1
			} else {
				cur = node.P2
			}
		case Inv:
			if idx != 0 {
				return nil, fmt.Errorf("position %v: inv has one child, got index %d at depth %d", pos, idx, depth)
			}
			cur = node.P
		default:
			return nil, fmt.Errorf("position %v: step has no children at depth %d", pos, depth)
		}
	}
	return cur, nil
}

// ReplaceAt returns a copy of t with the subterm at pos replaced.
func ReplaceAt(t PathTerm, pos TermPos, repl PathTerm) (PathTerm, error) {
	if len(pos) == 0 {
		return repl, nil
	}
	switch node := t.(type) {
	case Trans:
		child := node.P1
		if pos[0] == 1 {
			child = node.P2
		}
		newChild, err := ReplaceAt(child, pos[1:], repl)
		if err != nil {
			return nil, err
		}
		if pos[0] == 0 {
			return Trans{P1: newChild, P2: node.P2}, nil
		}
		return Trans{P1: node.P1, P2: newChild}, nil
	case Inv:
		if pos[0] != 0 {
			return nil, fmt.Errorf("position %v: inv has one child", pos)
		}
		newChild, err := ReplaceAt(node.P, pos[1:], repl)
		if err != nil {
			return nil, err
		}
		return Inv{P: newChild}, nil
	default:
		return nil, fmt.Errorf("position %v: step has no children", pos)
	}
}

// WalkPositions visits every subterm of t in pre-order, leftmost-innermost
// last, calling fn with the subterm and its position. Visit order is fixed:
// it is the order rewrite candidates are enumerated in.
func WalkPositions(t PathTerm, fn func(sub PathTerm, pos TermPos)) {
	var walk func(cur PathTerm, pos TermPos)
	walk = func(cur PathTerm, pos TermPos) {
		fn(cur, append(TermPos{}, pos...))
		switch node := cur.(type) {
		case Trans:
			walk(node.P1, append(pos, 0))
			walk(node.P2, append(pos, 1))
		case Inv:
			walk(node.P, append(pos, 0))
		}
	}
	walk(t, nil)
}

// TermToCanonical renders a term as a canonical Value for certificate
// payloads.
func TermToCanonical(t PathTerm) Value {
	switch node := t.(type) {
	case Step:
		return Object{
			"op":   String("step"),
			"from": String(node.From),
			"rel":  String(node.Rel),
			"to":   String(node.To),
		}
	case Trans:
		return Object{
			"op": String("trans"),
			"p1": TermToCanonical(node.P1),
			"p2": TermToCanonical(node.P2),
		}
	case Inv:
		return Object{
			"op": String("inv"),
			"p":  TermToCanonical(node.P),
		}
	default:
		panic(fmt.Sprintf("unknown path term %T", t))
	}
}

// TermFromCanonical inverts TermToCanonical.
func TermFromCanonical(v Value) (PathTerm, error) {
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("path term must be an object, got %T", v)
	}
	op, _ := obj["op"].(String)
	switch string(op) {
	case "step":
		from, _ := obj["from"].(String)
		rel, _ := obj["rel"].(String)
		to, _ := obj["to"].(String)
		if from == "" || rel == "" || to == "" {
			return nil, fmt.Errorf("step term missing from/rel/to")
		}
		return Step{From: string(from), Rel: string(rel), To: string(to)}, nil
	case "trans":
		p1, err := TermFromCanonical(obj["p1"])
		if err != nil {
			return nil, fmt.Errorf("trans.p1: %w", err)
		}
		p2, err := TermFromCanonical(obj["p2"])
		if err != nil {
			return nil, fmt.Errorf("trans.p2: %w", err)
		}
		return Trans{P1: p1, P2: p2}, nil
	case "inv":
		p, err := TermFromCanonical(obj["p"])
		if err != nil {
			return nil, fmt.Errorf("inv.p: %w", err)
		}
		return Inv{P: p}, nil
	default:
		return nil, fmt.Errorf("unknown path term op %q", op)
	}
}
