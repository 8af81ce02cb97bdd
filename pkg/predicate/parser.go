package predicate

import "fmt"

// Precedence levels, loosest first.
const (
	precNone = iota
	precOr
	precAnd
	precNot
	precComparison
	precAddition
	precMultiply
	precUnary
)

func infixPrecedence(k tokenKind) int {
	switch k {
	case tokOr:
		return precOr
	case tokAnd:
		return precAnd
	case tokEQ, tokNE, tokLT, tokLE, tokGT, tokGE:
		return precComparison
	case tokPlus, tokMinus:
		return precAddition
	case tokStar, tokSlash:
		return precMultiply
	default:
		return precNone
	}
}

type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse parses src into an expression tree. Column names are not resolved
// until the expression is compiled against a table.
func Parse(src string) (Node, error) {
	l := &lexer{src: src}
	toks, err := l.tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	n, err := p.parseExpression(precNone + 1)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", describe(t))
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) *Error {
	return &Error{Expr: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func describe(t token) string {
	switch t.kind {
	case tokIdent:
		return fmt.Sprintf("column name %q", t.text)
	case tokNumber, tokString:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	case tokEOF:
		return t.kind.String()
	default:
		return fmt.Sprintf("%q", t.kind.String())
	}
}

// parseExpression implements precedence climbing: prefix first, then infix
// operators binding at least as tightly as minPrec.
func (p *parser) parseExpression(minPrec int) (Node, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		prec := infixPrecedence(op.kind)
		if prec == precNone || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{At: op.pos, Op: op.kind, L: left, R: right}
	}
}

func (p *parser) parsePrefix() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNot:
		p.advance()
		x, err := p.parseExpression(precNot)
		if err != nil {
			return nil, err
		}
		return &Unary{At: t.pos, Op: tokNot, X: x}, nil
	case tokMinus:
		p.advance()
		x, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{At: t.pos, Op: tokMinus, X: x}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		return &Number{At: t.pos, Value: t.num}, nil
	case tokString:
		return &String{At: t.pos, Value: t.text}, nil
	case tokTrue:
		return &Bool{At: t.pos, Value: true}, nil
	case tokFalse:
		return &Bool{At: t.pos, Value: false}, nil
	case tokIdent:
		if next := p.peek(); next.kind == tokLParen {
			return nil, p.errorf(t, "function calls are not allowed (%s)", t.text)
		}
		return &Column{At: t.pos, Name: t.text}, nil
	case tokLParen:
		inner, err := p.parseExpression(precNone + 1)
		if err != nil {
			return nil, err
		}
		if c := p.advance(); c.kind != tokRParen {
			return nil, p.errorf(c, "expected ')', got %s", describe(c))
		}
		return inner, nil
	default:
		return nil, p.errorf(t, "unexpected %s", describe(t))
	}
}
