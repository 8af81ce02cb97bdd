package predicate

import (
	"fmt"
	"math"

	"github.com/LiArAu/zEpid/pkg/dataset"
)

// Program is an expression bound to a table and checked to produce a
// boolean per row.
type Program struct {
	src  string
	root evaluator
	rows int
}

// value is the result of evaluating a node on one row.
type value struct {
	num     float64
	str     string
	b       bool
	missing bool
}

type evaluator struct {
	typ  Type
	eval func(row int) value
}

// Compile parses src and binds it to t. Numeric expressions used where a
// boolean is expected count as true when non-zero and not missing.
func Compile(src string, t *dataset.Table) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c := &compiler{src: src, table: t}
	ev, err := c.compile(root)
	if err != nil {
		return nil, err
	}
	ev, err = c.asBool(ev, root)
	if err != nil {
		return nil, err
	}
	return &Program{src: src, root: ev, rows: t.Rows()}, nil
}

// Source returns the expression text.
func (p *Program) Source() string { return p.src }

// Mask evaluates the program on every row of the bound table.
func (p *Program) Mask() []bool {
	out := make([]bool, p.rows)
	for i := range out {
		out[i] = p.root.eval(i).b
	}
	return out
}

// Indicator evaluates the program and returns 1 where it holds, 0 elsewhere.
func (p *Program) Indicator() []float64 {
	out := make([]float64, p.rows)
	for i, ok := range p.Mask() {
		if ok {
			out[i] = 1
		}
	}
	return out
}

// Indicator compiles src against t and evaluates it in one step.
func Indicator(src string, t *dataset.Table) ([]float64, error) {
	p, err := Compile(src, t)
	if err != nil {
		return nil, err
	}
	return p.Indicator(), nil
}

type compiler struct {
	src   string
	table *dataset.Table
}

func (c *compiler) errorf(n Node, format string, args ...any) *Error {
	return &Error{Expr: c.src, Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) compile(n Node) (evaluator, error) {
	switch n := n.(type) {
	case *Number:
		v := value{num: n.Value}
		return evaluator{TypeNumber, func(int) value { return v }}, nil
	case *String:
		v := value{str: n.Value}
		return evaluator{TypeString, func(int) value { return v }}, nil
	case *Bool:
		v := value{b: n.Value}
		return evaluator{TypeBool, func(int) value { return v }}, nil
	case *Column:
		return c.column(n)
	case *Unary:
		return c.unary(n)
	case *Binary:
		return c.binary(n)
	default:
		return evaluator{}, c.errorf(n, "unsupported node %T", n)
	}
}

func (c *compiler) column(n *Column) (evaluator, error) {
	col, err := c.table.Column(n.Name)
	if err != nil {
		return evaluator{}, c.errorf(n, "unknown column %q", n.Name)
	}
	if col.Kind == dataset.String {
		vals := col.Strings
		return evaluator{TypeString, func(i int) value {
			return value{str: vals[i], missing: vals[i] == ""}
		}}, nil
	}
	vals := col.Floats
	return evaluator{TypeNumber, func(i int) value {
		return value{num: vals[i], missing: math.IsNaN(vals[i])}
	}}, nil
}

// asBool converts numeric evaluators to truthiness; strings are rejected.
func (c *compiler) asBool(ev evaluator, n Node) (evaluator, error) {
	switch ev.typ {
	case TypeBool:
		return ev, nil
	case TypeNumber:
		inner := ev.eval
		return evaluator{TypeBool, func(i int) value {
			v := inner(i)
			return value{b: !v.missing && v.num != 0}
		}}, nil
	default:
		return evaluator{}, c.errorf(n, "%s expression %s used as a condition", ev.typ, n)
	}
}

func (c *compiler) unary(n *Unary) (evaluator, error) {
	x, err := c.compile(n.X)
	if err != nil {
		return evaluator{}, err
	}
	switch n.Op {
	case tokNot:
		x, err = c.asBool(x, n.X)
		if err != nil {
			return evaluator{}, err
		}
		inner := x.eval
		return evaluator{TypeBool, func(i int) value { return value{b: !inner(i).b} }}, nil
	case tokMinus:
		if x.typ != TypeNumber {
			return evaluator{}, c.errorf(n, "cannot negate %s", x.typ)
		}
		inner := x.eval
		return evaluator{TypeNumber, func(i int) value {
			v := inner(i)
			v.num = -v.num
			return v
		}}, nil
	default:
		return evaluator{}, c.errorf(n, "unsupported unary operator %s", n.Op)
	}
}

func (c *compiler) binary(n *Binary) (evaluator, error) {
	l, err := c.compile(n.L)
	if err != nil {
		return evaluator{}, err
	}
	r, err := c.compile(n.R)
	if err != nil {
		return evaluator{}, err
	}

	switch n.Op {
	case tokAnd, tokOr:
		if l, err = c.asBool(l, n.L); err != nil {
			return evaluator{}, err
		}
		if r, err = c.asBool(r, n.R); err != nil {
			return evaluator{}, err
		}
		le, re := l.eval, r.eval
		if n.Op == tokAnd {
			return evaluator{TypeBool, func(i int) value { return value{b: le(i).b && re(i).b} }}, nil
		}
		return evaluator{TypeBool, func(i int) value { return value{b: le(i).b || re(i).b} }}, nil

	case tokPlus, tokMinus, tokStar, tokSlash:
		if l.typ != TypeNumber || r.typ != TypeNumber {
			return evaluator{}, c.errorf(n, "operator %s needs numbers, got %s and %s", n.Op, l.typ, r.typ)
		}
		return evaluator{TypeNumber, arith(n.Op, l.eval, r.eval)}, nil

	case tokEQ, tokNE, tokLT, tokLE, tokGT, tokGE:
		return c.compare(n, l, r)

	default:
		return evaluator{}, c.errorf(n, "unsupported operator %s", n.Op)
	}
}

func arith(op tokenKind, le, re func(int) value) func(int) value {
	return func(i int) value {
		a, b := le(i), re(i)
		if a.missing || b.missing {
			return value{num: math.NaN(), missing: true}
		}
		var out float64
		switch op {
		case tokPlus:
			out = a.num + b.num
		case tokMinus:
			out = a.num - b.num
		case tokStar:
			out = a.num * b.num
		case tokSlash:
			out = a.num / b.num
		}
		return value{num: out, missing: math.IsNaN(out)}
	}
}

// compare builds a comparison. Any comparison involving a missing value is
// false, including !=.
func (c *compiler) compare(n *Binary, l, r evaluator) (evaluator, error) {
	if l.typ != r.typ {
		return evaluator{}, c.errorf(n, "cannot compare %s with %s", l.typ, r.typ)
	}
	if l.typ == TypeBool && n.Op != tokEQ && n.Op != tokNE {
		return evaluator{}, c.errorf(n, "operator %s is not defined for booleans", n.Op)
	}
	le, re, op, typ := l.eval, r.eval, n.Op, l.typ
	return evaluator{TypeBool, func(i int) value {
		a, b := le(i), re(i)
		if a.missing || b.missing {
			return value{}
		}
		var cmp int
		switch typ {
		case TypeNumber:
			cmp = compareOrdered(a.num, b.num)
		case TypeString:
			cmp = compareOrdered(a.str, b.str)
		case TypeBool:
			if a.b != b.b {
				cmp = 1
			}
		}
		switch op {
		case tokEQ:
			return value{b: cmp == 0}
		case tokNE:
			return value{b: cmp != 0}
		case tokLT:
			return value{b: cmp < 0}
		case tokLE:
			return value{b: cmp <= 0}
		case tokGT:
			return value{b: cmp > 0}
		default:
			return value{b: cmp >= 0}
		}
	}}, nil
}

func compareOrdered[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
