package formula

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokColon
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int // offset in the full formula
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lex tokenizes the right-hand side. offset maps positions back into the
// full formula for error messages.
func lex(src, rhs string, offset int) ([]token, error) {
	var toks []token
	i := 0
	for i < len(rhs) {
		c := rhs[i]
		pos := offset + i
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", pos})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", pos})
			i++
		case c == '*':
			if i+1 < len(rhs) && rhs[i+1] == '*' {
				return nil, &Error{Formula: src, Pos: pos, Msg: "power terms are not supported"}
			}
			toks = append(toks, token{tokStar, "*", pos})
			i++
		case c == ':':
			toks = append(toks, token{tokColon, ":", pos})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", pos})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", pos})
			i++
		case isDigit(c):
			start := i
			for i < len(rhs) && (isDigit(rhs[i]) || rhs[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, rhs[start:i], offset + start})
		case isIdentStart(c):
			start := i
			for i < len(rhs) && (isIdentStart(rhs[i]) || isDigit(rhs[i]) || rhs[i] == '.') {
				i++
			}
			toks = append(toks, token{tokIdent, rhs[start:i], offset + start})
		default:
			return nil, &Error{Formula: src, Pos: pos, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{tokEOF, "", offset + len(rhs)})
	return toks, nil
}
