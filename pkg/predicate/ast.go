// Package predicate implements the small expression language used to write
// custom treatment plans, such as "age0 >= 25 and male == 0".
//
// Expressions are parsed into a typed AST and evaluated row by row against
// a dataset.Table. The language has column references, number, string and
// boolean literals, arithmetic, comparisons and the boolean operators
// and/or/not (also written &, |, ! or ~). It has no function calls, no
// attribute access and no assignment, so evaluating an expression can only
// read the table it is bound to.
package predicate

import (
	"fmt"
	"strconv"
)

// Error reports a malformed or ill-typed expression.
type Error struct {
	Expr string
	Pos  int // 0-based byte offset
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("predicate %q: column %d: %s", e.Expr, e.Pos+1, e.Msg)
}

// Type is the static type of an expression node.
type Type int

const (
	TypeUnknown Type = iota
	TypeBool
	TypeNumber
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Node is an expression tree node.
type Node interface {
	Pos() int
	String() string
}

// Number is a numeric literal.
type Number struct {
	At    int
	Value float64
}

// String is a string literal.
type String struct {
	At    int
	Value string
}

// Bool is true or false.
type Bool struct {
	At    int
	Value bool
}

// Column references a table column by name.
type Column struct {
	At   int
	Name string
}

// Unary is negation or logical not.
type Unary struct {
	At int
	Op tokenKind
	X  Node
}

// Binary is an arithmetic, comparison or logical operator.
type Binary struct {
	At   int
	Op   tokenKind
	L, R Node
}

func (n *Number) Pos() int { return n.At }
func (n *String) Pos() int { return n.At }
func (n *Bool) Pos() int   { return n.At }
func (n *Column) Pos() int { return n.At }
func (n *Unary) Pos() int  { return n.At }
func (n *Binary) Pos() int { return n.At }

func (n *Number) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (n *String) String() string { return strconv.Quote(n.Value) }
func (n *Bool) String() string   { return strconv.FormatBool(n.Value) }
func (n *Column) String() string { return n.Name }
func (n *Unary) String() string  { return "(" + n.Op.String() + " " + n.X.String() + ")" }
func (n *Binary) String() string {
	return "(" + n.L.String() + " " + n.Op.String() + " " + n.R.String() + ")"
}
