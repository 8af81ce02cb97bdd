package predicate

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokEQ
	tokNE
	tokLT
	tokLE
	tokGT
	tokGE
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokNumber: "number",
	tokString: "string",
	tokIdent:  "column name",
	tokTrue:   "true",
	tokFalse:  "false",
	tokAnd:    "and",
	tokOr:     "or",
	tokNot:    "not",
	tokEQ:     "==",
	tokNE:     "!=",
	tokLT:     "<",
	tokLE:     "<=",
	tokGT:     ">",
	tokGE:     ">=",
	tokPlus:   "+",
	tokMinus:  "-",
	tokStar:   "*",
	tokSlash:  "/",
	tokLParen: "(",
	tokRParen: ")",
}

func (k tokenKind) String() string { return tokenNames[k] }

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"true":  tokTrue,
	"True":  tokTrue,
	"false": tokFalse,
	"False": tokFalse,
}

type token struct {
	kind tokenKind
	text string // identifier name, string contents or number literal
	num  float64
	pos  int
}

// lexer tokenizes a predicate expression.
type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, format string, args ...any) *Error {
	return &Error{Expr: l.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) tokens() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && strings.ContainsRune(" \t\r\n", rune(l.src[l.pos])) {
		l.pos++
	}
	pos := l.pos
	ch := l.peekByte(0)
	op := func(k tokenKind, width int) (token, error) {
		l.pos += width
		return token{kind: k, text: l.src[pos:l.pos], pos: pos}, nil
	}

	switch {
	case l.pos >= len(l.src):
		return token{kind: tokEOF, pos: pos}, nil
	case ch == '(':
		return op(tokLParen, 1)
	case ch == ')':
		return op(tokRParen, 1)
	case ch == '+':
		return op(tokPlus, 1)
	case ch == '-':
		return op(tokMinus, 1)
	case ch == '*':
		return op(tokStar, 1)
	case ch == '/':
		return op(tokSlash, 1)
	case ch == '&':
		if l.peekByte(1) == '&' {
			return op(tokAnd, 2)
		}
		return op(tokAnd, 1)
	case ch == '|':
		if l.peekByte(1) == '|' {
			return op(tokOr, 2)
		}
		return op(tokOr, 1)
	case ch == '~':
		return op(tokNot, 1)
	case ch == '!':
		if l.peekByte(1) == '=' {
			return op(tokNE, 2)
		}
		return op(tokNot, 1)
	case ch == '=':
		if l.peekByte(1) == '=' {
			return op(tokEQ, 2)
		}
		return token{}, l.errorf(pos, "unexpected '=', use '==' to compare")
	case ch == '<':
		if l.peekByte(1) == '=' {
			return op(tokLE, 2)
		}
		return op(tokLT, 1)
	case ch == '>':
		if l.peekByte(1) == '=' {
			return op(tokGE, 2)
		}
		return op(tokGT, 1)
	case ch == '\'' || ch == '"':
		return l.readString(ch)
	case ch == '`':
		return l.readQuotedIdent()
	case isDigit(ch) || (ch == '.' && isDigit(l.peekByte(1))):
		return l.readNumber()
	case isIdentStart(ch):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[pos:l.pos]
		if k, ok := keywords[word]; ok {
			return token{kind: k, text: word, pos: pos}, nil
		}
		return token{kind: tokIdent, text: word, pos: pos}, nil
	default:
		return token{}, l.errorf(pos, "unexpected character %q", ch)
	}
}

func (l *lexer) readString(quote byte) (token, error) {
	pos := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf(pos, "unterminated string literal")
		}
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokString, text: b.String(), pos: pos}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			c = l.src[l.pos]
		}
		b.WriteByte(c)
		l.pos++
	}
}

func (l *lexer) readQuotedIdent() (token, error) {
	pos := l.pos
	end := strings.IndexByte(l.src[pos+1:], '`')
	if end < 0 {
		return token{}, l.errorf(pos, "unterminated quoted column name")
	}
	name := l.src[pos+1 : pos+1+end]
	if name == "" {
		return token{}, l.errorf(pos, "empty quoted column name")
	}
	l.pos = pos + end + 2
	return token{kind: tokIdent, text: name, pos: pos}, nil
}

func (l *lexer) readNumber() (token, error) {
	pos := l.pos
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		l.pos++
		if c := l.peekByte(0); c == '+' || c == '-' {
			l.pos++
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[pos:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errorf(pos, "invalid number literal %q", text)
	}
	return token{kind: tokNumber, text: text, num: v, pos: pos}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '.' }
