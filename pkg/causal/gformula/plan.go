package gformula

import "strings"

type planKind int

const (
	planAll planKind = iota + 1
	planNone
	planCustom
)

// Plan is a hypothetical treatment assignment. The zero Plan is not a
// valid plan.
type Plan struct {
	kind  planKind
	exprs []string
}

// All treats every row.
func All() Plan { return Plan{kind: planAll} }

// None treats no row.
func None() Plan { return Plan{kind: planNone} }

// Custom assigns treatment where a predicate over the data holds, such as
// "age0 >= 25 and male == 0". A binary exposure takes one expression; a
// multivariate exposure takes one per indicator column, in order.
func Custom(exprs ...string) Plan {
	return Plan{kind: planCustom, exprs: append([]string(nil), exprs...)}
}

// ParsePlan maps "all" and "none" to their plans and anything else to a
// custom plan over the given expressions. A keyword among several
// expressions still yields the keyword plan.
func ParsePlan(exprs ...string) Plan {
	for _, e := range exprs {
		switch strings.ToLower(strings.TrimSpace(e)) {
		case "all":
			return All()
		case "none":
			return None()
		}
	}
	return Custom(exprs...)
}

func (p Plan) String() string {
	switch p.kind {
	case planAll:
		return "all"
	case planNone:
		return "none"
	case planCustom:
		return strings.Join(p.exprs, "; ")
	default:
		return ""
	}
}
