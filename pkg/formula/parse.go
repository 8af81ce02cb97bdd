// Package formula turns patsy-style model formulas into design matrices.
//
// A formula is an optional response, a tilde, and a right-hand side built
// from column names with these operators (loosest to tightest):
//
//	a + b     union of terms
//	a - b     remove terms ("- 1" drops the intercept)
//	a * b     a + b + a:b
//	a : b     interaction
//	( ... )   grouping
//
// C(col) marks a column as categorical. String columns are categorical
// without it. An intercept is included unless removed with "- 1" or "+ 0".
package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Error reports a malformed formula.
type Error struct {
	Formula string
	Pos     int // 0-based byte offset
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula %q: column %d: %s", e.Formula, e.Pos+1, e.Msg)
}

// Factor is a single variable inside a term.
type Factor struct {
	Name        string
	Categorical bool // forced with C()
}

// Label is how the factor is written in column labels.
func (f Factor) Label() string {
	if f.Categorical {
		return "C(" + f.Name + ")"
	}
	return f.Name
}

// Term is a product of factors. The empty term is the intercept.
type Term []Factor

// IsIntercept reports whether t is the intercept term.
func (t Term) IsIntercept() bool { return len(t) == 0 }

func (t Term) key() string {
	names := make([]string, len(t))
	for i, f := range t {
		names[i] = f.Label()
	}
	sort.Strings(names)
	return strings.Join(names, ":")
}

// String renders the term the way patsy names it.
func (t Term) String() string {
	if t.IsIntercept() {
		return "Intercept"
	}
	names := make([]string, len(t))
	for i, f := range t {
		names[i] = f.Label()
	}
	return strings.Join(names, ":")
}

// Formula is a parsed model formula.
type Formula struct {
	Source   string
	Response string // empty when the formula has no left-hand side
	Terms    []Term // intercept first when present, then by degree
}

// HasIntercept reports whether the formula keeps the intercept.
func (f *Formula) HasIntercept() bool {
	return len(f.Terms) > 0 && f.Terms[0].IsIntercept()
}

// Parse parses a formula such as "dead ~ art + male + art:male" or a bare
// right-hand side such as "art + male".
func Parse(src string) (*Formula, error) {
	lhs, rhs, hasTilde := strings.Cut(src, "~")
	offset := 0
	response := ""
	if !hasTilde {
		rhs = src
	} else {
		response = strings.TrimSpace(lhs)
		if !isIdent(response) {
			return nil, &Error{Formula: src, Pos: 0, Msg: fmt.Sprintf("response %q is not a column name", response)}
		}
		offset = len(lhs) + 1
		if strings.Contains(rhs, "~") {
			return nil, &Error{Formula: src, Pos: offset + strings.Index(rhs, "~"), Msg: "more than one '~'"}
		}
	}

	toks, err := lex(src, rhs, offset)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	set, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		t := p.peek()
		return nil, &Error{Formula: src, Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}

	// Implicit intercept, removable by "- 1" or "+ 0" anywhere in the formula.
	terms := termSet{}
	if !set.dropIntercept {
		terms.add(Term{})
	}
	for _, t := range set.terms {
		if t.key() == zeroTerm.key() {
			continue
		}
		terms.add(t)
	}
	if set.dropIntercept {
		terms.remove(Term{})
	}

	ordered := append([]Term(nil), terms.terms...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) < len(ordered[j]) })

	return &Formula{Source: src, Response: response, Terms: ordered}, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(isIdentStart(c) || (i > 0 && (isDigit(c) || c == '.'))) {
			return false
		}
	}
	return true
}

// termSet is an ordered set of terms keyed by their factor set.
type termSet struct {
	terms         []Term
	dropIntercept bool
}

func (s *termSet) has(t Term) bool {
	k := t.key()
	for _, e := range s.terms {
		if e.key() == k {
			return true
		}
	}
	return false
}

func (s *termSet) add(t Term) {
	if !s.has(t) {
		s.terms = append(s.terms, t)
	}
}

func (s *termSet) remove(t Term) {
	k := t.key()
	out := s.terms[:0]
	for _, e := range s.terms {
		if e.key() != k {
			out = append(out, e)
		}
	}
	s.terms = out
}

func union(a, b termSet) termSet {
	out := termSet{dropIntercept: a.dropIntercept || b.dropIntercept}
	for _, t := range a.terms {
		out.add(t)
	}
	for _, t := range b.terms {
		out.add(t)
	}
	return out
}

func interact(a, b termSet) termSet {
	out := termSet{dropIntercept: a.dropIntercept || b.dropIntercept}
	for _, ta := range a.terms {
		for _, tb := range b.terms {
			merged := append(Term(nil), ta...)
			for _, f := range tb {
				dup := false
				for _, g := range merged {
					if g == f {
						dup = true
						break
					}
				}
				if !dup {
					merged = append(merged, f)
				}
			}
			out.add(merged)
		}
	}
	return out
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// expr := product (('+' | '-') product)*
func (p *parser) parseExpr() (termSet, error) {
	left, err := p.parseProduct()
	if err != nil {
		return termSet{}, err
	}
	for {
		op := p.peek()
		if op.kind != tokPlus && op.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseProduct()
		if err != nil {
			return termSet{}, err
		}
		if op.kind == tokPlus {
			left = union(left, right)
			continue
		}
		// Subtraction: "- 0" restores the intercept, "- 1" removes it.
		if right.isZero() {
			left.dropIntercept = false
			continue
		}
		for _, t := range right.terms {
			if t.IsIntercept() {
				left.dropIntercept = true
			}
			left.remove(t)
		}
	}
}

// product := interaction ('*' interaction)*
func (p *parser) parseProduct() (termSet, error) {
	left, err := p.parseInteraction()
	if err != nil {
		return termSet{}, err
	}
	for p.peek().kind == tokStar {
		p.next()
		right, err := p.parseInteraction()
		if err != nil {
			return termSet{}, err
		}
		left = union(union(left, right), interact(left, right))
	}
	return left, nil
}

// interaction := atom (':' atom)*
func (p *parser) parseInteraction() (termSet, error) {
	left, err := p.parseAtom()
	if err != nil {
		return termSet{}, err
	}
	for p.peek().kind == tokColon {
		p.next()
		right, err := p.parseAtom()
		if err != nil {
			return termSet{}, err
		}
		left = interact(left, right)
	}
	return left, nil
}

// zero marks the literal 0 term.
var zeroTerm = Term{{Name: "0"}}

func (s termSet) isZero() bool {
	return len(s.terms) == 1 && s.terms[0].key() == zeroTerm.key()
}

func (p *parser) parseAtom() (termSet, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		switch t.text {
		case "1":
			return termSet{terms: []Term{{}}}, nil
		case "0":
			// "+ 0" drops the intercept; parseExpr special-cases "- 0".
			return termSet{terms: []Term{zeroTerm}, dropIntercept: true}, nil
		}
		return termSet{}, &Error{Formula: p.src, Pos: t.pos, Msg: fmt.Sprintf("numeric term %q, only 0 and 1 are allowed", t.text)}
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return termSet{terms: []Term{{{Name: t.text}}}}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return termSet{}, err
		}
		if c := p.next(); c.kind != tokRParen {
			return termSet{}, &Error{Formula: p.src, Pos: c.pos, Msg: "expected ')'"}
		}
		return inner, nil
	case tokEOF:
		return termSet{}, &Error{Formula: p.src, Pos: t.pos, Msg: "unexpected end of formula"}
	default:
		return termSet{}, &Error{Formula: p.src, Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
}

// parseCall handles C(col), the only function the language knows.
func (p *parser) parseCall(fn token) (termSet, error) {
	if fn.text != "C" {
		return termSet{}, &Error{Formula: p.src, Pos: fn.pos, Msg: fmt.Sprintf("unknown function %q", fn.text)}
	}
	p.next() // (
	arg := p.next()
	if arg.kind != tokIdent {
		return termSet{}, &Error{Formula: p.src, Pos: arg.pos, Msg: "C() takes a column name"}
	}
	if c := p.next(); c.kind != tokRParen {
		return termSet{}, &Error{Formula: p.src, Pos: c.pos, Msg: "expected ')'"}
	}
	return termSet{terms: []Term{{{Name: arg.text, Categorical: true}}}}, nil
}
