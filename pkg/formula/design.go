package formula

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/LiArAu/zEpid/pkg/dataset"
)

// factorInfo is what a factor needs to be rebuilt on new data.
type factorInfo struct {
	name        string
	label       string
	categorical bool
	levels      []string // sorted, categorical only
}

// coded is one factor of a column group together with its contrast coding.
type coded struct {
	factor *factorInfo
	full   bool // all levels; otherwise treatment coding against levels[0]
}

// termInfo is one column group of a term. A term with categorical factors
// can span several groups, each coding its factors differently.
type termInfo struct {
	term    Term
	factors []coded // in term order; a group without factors is the intercept
}

// DesignInfo records the columns a formula produced against the data it
// was first built on, so the same columns can be rebuilt for prediction.
type DesignInfo struct {
	formula *Formula
	terms   []termInfo
	labels  []string
}

// Labels returns the design column labels in order.
func (d *DesignInfo) Labels() []string { return append([]string(nil), d.labels...) }

// Formula returns the parsed formula the design was built from.
func (d *DesignInfo) Formula() *Formula { return d.formula }

// Design is a built design matrix.
type Design struct {
	X      *mat.Dense
	Labels []string
	Info   *DesignInfo
}

// Matrix parses src and builds its design matrix over t. It is the usual
// entry point, equivalent to patsy's dmatrix.
func Matrix(src string, t *dataset.Table) (*Design, error) {
	f, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return f.Design(t)
}

// Design builds the design matrix for f over t, learning categorical
// levels and contrast codings from t.
//
// Columns follow patsy: terms are grouped by their numeric factors, the
// group without numeric factors first, and within a group a categorical
// factor is coded in full only where the lower-order columns already in
// the group do not span its intercept.
func (f *Formula) Design(t *dataset.Table) (*Design, error) {
	factors := make(map[string]*factorInfo)
	learn := func(fac Factor) (*factorInfo, error) {
		if fi, ok := factors[fac.Label()]; ok {
			return fi, nil
		}
		fi, err := learnFactor(fac, t)
		if err != nil {
			return nil, err
		}
		factors[fac.Label()] = fi
		return fi, nil
	}

	type bucket struct{ terms []Term }
	var buckets []*bucket
	index := make(map[string]*bucket)
	for _, term := range f.Terms {
		var numeric []string
		for _, fac := range term {
			fi, err := learn(fac)
			if err != nil {
				return nil, err
			}
			if !fi.categorical {
				numeric = append(numeric, fi.label)
			}
		}
		sort.Strings(numeric)
		key := strings.Join(numeric, ":")
		b, ok := index[key]
		if !ok {
			b = &bucket{}
			index[key] = b
			if key == "" {
				buckets = append([]*bucket{b}, buckets...)
			} else {
				buckets = append(buckets, b)
			}
		}
		b.terms = append(b.terms, term)
	}

	info := &DesignInfo{formula: f}
	for _, b := range buckets {
		sort.SliceStable(b.terms, func(i, j int) bool { return len(b.terms[i]) < len(b.terms[j]) })
		used := make(map[string]bool)
		for _, term := range b.terms {
			var cats []int
			for i, fac := range term {
				if factors[fac.Label()].categorical {
					cats = append(cats, i)
				}
			}

			var subs []subterm
			for _, subset := range subsetsSorted(cats) {
				s := make(subterm, len(subset))
				for k, pos := range subset {
					s[k] = efactor{pos: pos}
				}
				if key := s.key(term); !used[key] {
					subs = append(subs, s)
				}
			}
			for _, s := range subs {
				used[s.key(term)] = true
			}

			for _, s := range simplify(subs) {
				ti := termInfo{term: term}
				for i, fac := range term {
					fi := factors[fac.Label()]
					switch {
					case !fi.categorical:
						ti.factors = append(ti.factors, coded{factor: fi})
					default:
						if e, ok := s.find(i); ok {
							ti.factors = append(ti.factors, coded{factor: fi, full: e.full})
						}
					}
				}
				info.terms = append(info.terms, ti)
			}
		}
	}

	for _, ti := range info.terms {
		info.labels = append(info.labels, ti.labels()...)
	}

	X, err := info.Build(t)
	if err != nil {
		return nil, err
	}
	return &Design{X: X, Labels: info.Labels(), Info: info}, nil
}

// efactor is a categorical factor of a term, by position, with its coding.
type efactor struct {
	pos  int
	full bool
}

// subterm is a set of coded categorical factors, ordered by position.
type subterm []efactor

func (s subterm) key(term Term) string {
	names := make([]string, len(s))
	for i, e := range s {
		names[i] = term[e.pos].Label()
	}
	sort.Strings(names)
	return strings.Join(names, ":")
}

func (s subterm) find(pos int) (efactor, bool) {
	for _, e := range s {
		if e.pos == pos {
			return e, true
		}
	}
	return efactor{}, false
}

// absorbs reports whether s is short plus one reduced factor, and returns
// that factor.
func (s subterm) absorbs(short subterm) (efactor, bool) {
	if len(s) != len(short)+1 {
		return efactor{}, false
	}
	for _, e := range short {
		if got, ok := s.find(e.pos); !ok || got != e {
			return efactor{}, false
		}
	}
	for _, e := range s {
		if _, ok := short.find(e.pos); !ok {
			return e, !e.full
		}
	}
	return efactor{}, false
}

// with returns s plus e coded in full, ordered by position.
func (s subterm) with(e efactor) subterm {
	out := append(subterm(nil), s...)
	out = append(out, efactor{pos: e.pos, full: true})
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// simplify merges each subterm into a longer one that extends it by one
// reduced factor, which then codes that factor in full, until no merge
// applies. Merges go left to right.
func simplify(subs []subterm) []subterm {
	for {
		merged := false
	scan:
		for i := range subs {
			for j := i + 1; j < len(subs); j++ {
				if e, ok := subs[j].absorbs(subs[i]); ok {
					subs[j] = subs[i].with(e)
					subs = append(subs[:i], subs[i+1:]...)
					merged = true
					break scan
				}
			}
		}
		if !merged {
			return subs
		}
	}
}

// subsetsSorted returns every subset of items, shortest first and ties in
// lexical order of positions.
func subsetsSorted(items []int) [][]int {
	out := [][]int{{}}
	for _, it := range items {
		n := len(out)
		for i := 0; i < n; i++ {
			next := append(append([]int(nil), out[i]...), it)
			out = append(out, next)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		for k := range out[i] {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

func learnFactor(fac Factor, t *dataset.Table) (*factorInfo, error) {
	col, err := t.Column(fac.Name)
	if err != nil {
		return nil, fmt.Errorf("factor %s: %w", fac.Label(), err)
	}
	fi := &factorInfo{name: fac.Name, label: fac.Label(), categorical: fac.Categorical || col.Kind == dataset.String}
	if fi.categorical {
		levels, _, err := t.Levels(fac.Name)
		if err != nil {
			return nil, err
		}
		if len(levels) == 0 {
			return nil, fmt.Errorf("factor %s has no observed levels", fac.Label())
		}
		fi.levels = levels
	}
	return fi, nil
}

// columnsFor returns the coded columns of one factor: labels and values.
func (c coded) columnsFor(t *dataset.Table) ([]string, [][]float64, error) {
	fi := c.factor
	if !fi.categorical {
		vals, err := t.Floats(fi.name)
		if err != nil {
			return nil, nil, fmt.Errorf("factor %s: %w", fi.label, err)
		}
		return []string{fi.label}, [][]float64{vals}, nil
	}

	_, rowLabels, err := t.Levels(fi.name)
	if err != nil {
		return nil, nil, fmt.Errorf("factor %s: %w", fi.label, err)
	}
	levels := fi.levels
	prefix := "["
	if !c.full {
		levels = levels[1:]
		prefix = "[T."
	}
	pos := make(map[string]int, len(fi.levels))
	for i, l := range fi.levels {
		pos[l] = i
	}

	labels := make([]string, len(levels))
	cols := make([][]float64, len(levels))
	for j, l := range levels {
		labels[j] = fi.label + prefix + l + "]"
		cols[j] = make([]float64, t.Rows())
	}
	shift := 0
	if !c.full {
		shift = 1
	}
	for i, l := range rowLabels {
		if l == "" {
			for j := range cols {
				cols[j][i] = math.NaN()
			}
			continue
		}
		k, ok := pos[l]
		if !ok {
			return nil, nil, fmt.Errorf("factor %s: level %q was not seen when the design was built", fi.label, l)
		}
		if k-shift >= 0 {
			cols[k-shift][i] = 1
		}
	}
	return labels, cols, nil
}

func (ti termInfo) labels() []string {
	if len(ti.factors) == 0 {
		return []string{"Intercept"}
	}
	out := []string{""}
	for fi, c := range ti.factors {
		var names []string
		if c.factor.categorical {
			levels := c.factor.levels
			prefix := "["
			if !c.full {
				levels = levels[1:]
				prefix = "[T."
			}
			for _, l := range levels {
				names = append(names, c.factor.label+prefix+l+"]")
			}
		} else {
			names = []string{c.factor.label}
		}
		out = crossLabels(out, names, fi == 0)
	}
	return out
}

// crossLabels combines labels with the earliest factor varying fastest.
func crossLabels(acc, names []string, first bool) []string {
	out := make([]string, 0, len(acc)*len(names))
	for _, n := range names {
		for _, a := range acc {
			if first {
				out = append(out, n)
			} else {
				out = append(out, a+":"+n)
			}
		}
	}
	return out
}

// Build rebuilds the design columns over t with the levels and codings
// learnt when the design was first made.
func (d *DesignInfo) Build(t *dataset.Table) (*mat.Dense, error) {
	n := t.Rows()
	if n == 0 {
		return nil, fmt.Errorf("design over %q: table has no rows", d.formula.Source)
	}
	var cols [][]float64
	for _, ti := range d.terms {
		if len(ti.factors) == 0 {
			ones := make([]float64, n)
			for i := range ones {
				ones[i] = 1
			}
			cols = append(cols, ones)
			continue
		}
		acc := [][]float64{nil}
		for fi, c := range ti.factors {
			_, fcols, err := c.columnsFor(t)
			if err != nil {
				return nil, err
			}
			next := make([][]float64, 0, len(acc)*len(fcols))
			for _, fc := range fcols {
				for _, a := range acc {
					if fi == 0 {
						next = append(next, append([]float64(nil), fc...))
						continue
					}
					prod := make([]float64, n)
					for i := range prod {
						prod[i] = a[i] * fc[i]
					}
					next = append(next, prod)
				}
			}
			acc = next
		}
		cols = append(cols, acc...)
	}

	if len(cols) != len(d.labels) {
		return nil, fmt.Errorf("design over %q: built %d columns, expected %d", d.formula.Source, len(cols), len(d.labels))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("formula %q has no terms", d.formula.Source)
	}
	X := mat.NewDense(n, len(cols), nil)
	for j, c := range cols {
		X.SetCol(j, c)
	}
	return X, nil
}
