// Package gformula estimates marginal outcomes under hypothetical treatment
// plans with the time-fixed parametric g-formula.
//
// An outcome model is fit on the observed data. Fit then overwrites the
// exposure of a working copy according to a Plan, predicts every row's
// outcome from the fitted model and averages the predictions.
package gformula

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/LiArAu/zEpid/pkg/causal"
	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/glm"
	"github.com/LiArAu/zEpid/pkg/predicate"
)

// OutcomeType selects the outcome model family.
type OutcomeType string

const (
	// BinaryOutcome fits a logistic model.
	BinaryOutcome OutcomeType = "binary"
	// ContinuousOutcome fits a linear model with the identity link.
	ContinuousOutcome OutcomeType = "continuous"
)

func (o OutcomeType) family() (glm.Family, error) {
	switch o {
	case BinaryOutcome:
		return glm.Binomial, nil
	case ContinuousOutcome:
		return glm.Gaussian, nil
	default:
		return 0, fmt.Errorf("outcome type %q: only %q or %q outcomes are supported: %w",
			string(o), BinaryOutcome, ContinuousOutcome, causal.ErrConfiguration)
	}
}

// Exposure names the treatment column, or the disjoint indicator columns
// of a multi-level treatment.
type Exposure struct {
	cols         []string
	multivariate bool
}

// Binary is a single 0/1 exposure column.
func Binary(col string) Exposure {
	return Exposure{cols: []string{col}}
}

// Multivariate is a set of indicator columns, at most one of which should
// be 1 on any row. A single column given here is still multivariate.
func Multivariate(cols ...string) Exposure {
	return Exposure{cols: append([]string(nil), cols...), multivariate: true}
}

// Columns returns the exposure column names.
func (e Exposure) Columns() []string { return append([]string(nil), e.cols...) }

// IsMultivariate reports whether e was built with Multivariate.
func (e Exposure) IsMultivariate() bool { return e.multivariate }

// TimeFixedGFormula is the g-formula for a treatment fixed at baseline.
// It is not safe for concurrent use.
type TimeFixedGFormula struct {
	data        *dataset.Table
	exposure    Exposure
	outcome     string
	outcomeType OutcomeType
	family      glm.Family
	weights     string

	fitter causal.Fitter
	log    *slog.Logger
	out    io.Writer

	model     causal.Model
	marginal  float64
	predicted *dataset.Table
}

// Option configures a TimeFixedGFormula.
type Option func(*TimeFixedGFormula)

// WithWeights names a column of per-row weights. The outcome model is then
// fit as a GEE and the marginal outcome is a weighted mean.
func WithWeights(col string) Option {
	return func(g *TimeFixedGFormula) { g.weights = col }
}

// WithLogger sets the logger for non-fatal warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *TimeFixedGFormula) { g.log = l }
}

// WithOutput sets where model summaries are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(g *TimeFixedGFormula) { g.out = w }
}

// WithFitter replaces the regression fitter.
func WithFitter(f causal.Fitter) Option {
	return func(g *TimeFixedGFormula) { g.fitter = f }
}

// New returns a g-formula over a private copy of data.
func New(data *dataset.Table, exposure Exposure, outcome string, outcomeType OutcomeType, opts ...Option) (*TimeFixedGFormula, error) {
	fam, err := outcomeType.family()
	if err != nil {
		return nil, err
	}
	g := &TimeFixedGFormula{
		data:        data.Copy(),
		exposure:    exposure,
		outcome:     outcome,
		outcomeType: outcomeType,
		family:      fam,
		log:         slog.New(slog.DiscardHandler),
		out:         os.Stdout,
		marginal:    math.NaN(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.fitter == nil {
		g.fitter = causal.GLMFitter{Logger: g.log}
	}

	if len(exposure.cols) == 0 {
		return nil, fmt.Errorf("no exposure column given: %w", causal.ErrConfiguration)
	}
	required := append(exposure.Columns(), outcome)
	if g.weights != "" {
		required = append(required, g.weights)
	}
	for _, col := range required {
		if !g.data.Has(col) {
			return nil, fmt.Errorf("column %q is not in the data: %w", col, causal.ErrConfiguration)
		}
	}
	return g, nil
}

// OutcomeModel fits outcome ~ model on the stored data. Binary outcomes use
// logistic regression, continuous outcomes the identity link. With
// printResults the model summary is written to the output.
func (g *TimeFixedGFormula) OutcomeModel(model string, printResults bool) error {
	f := g.outcome + " ~ " + model
	m, err := g.fitter.Fit(f, g.data, g.family, g.weights)
	if err != nil {
		return fmt.Errorf("outcome model: %w", err)
	}
	g.model = m
	if printResults {
		if err := m.Summary(g.out); err != nil {
			return fmt.Errorf("outcome model summary: %w", err)
		}
	}
	return nil
}

// Fit applies plan to a working copy of the data and estimates the
// marginal outcome from the outcome model's predictions.
func (g *TimeFixedGFormula) Fit(plan Plan) error {
	if g.model == nil {
		return fmt.Errorf("the outcome model must be specified before the g-formula can be calculated: %w", causal.ErrConfiguration)
	}
	if plan.kind == 0 {
		return fmt.Errorf("empty treatment plan, use All, None or Custom: %w", causal.ErrConfiguration)
	}

	work := g.data.Copy()
	var err error
	if g.exposure.multivariate {
		err = g.applyMultivariate(work, plan)
	} else {
		err = g.applyBinary(work, plan)
	}
	if err != nil {
		return err
	}

	pred, err := g.model.Predict(work)
	if err != nil {
		return fmt.Errorf("predict outcome: %w", err)
	}
	if err := work.SetFloat(g.outcome, pred); err != nil {
		return err
	}

	marginal, err := g.mean(pred)
	if err != nil {
		return err
	}
	g.marginal = marginal
	g.predicted = work
	return nil
}

func (g *TimeFixedGFormula) applyBinary(work *dataset.Table, plan Plan) error {
	col := g.exposure.cols[0]
	switch plan.kind {
	case planAll:
		work.Fill(col, 1)
	case planNone:
		work.Fill(col, 0)
	case planCustom:
		if len(plan.exprs) != 1 {
			return fmt.Errorf("a binary exposure is specified, the treatment plan should be a single expression, got %d: %w",
				len(plan.exprs), causal.ErrConfiguration)
		}
		ind, err := indicator(plan.exprs[0], work)
		if err != nil {
			return err
		}
		return work.SetFloat(col, ind)
	}
	return nil
}

// applyMultivariate evaluates every predicate against the working table
// before any indicator is overwritten.
func (g *TimeFixedGFormula) applyMultivariate(work *dataset.Table, plan Plan) error {
	if plan.kind != planCustom {
		return fmt.Errorf("a multivariate exposure is specified, a custom treatment must be given instead of %q: %w",
			plan.String(), causal.ErrConfiguration)
	}
	if len(plan.exprs) != len(g.exposure.cols) {
		return fmt.Errorf("%d treatment conditions given for %d exposure columns: %w",
			len(plan.exprs), len(g.exposure.cols), causal.ErrConfiguration)
	}

	inds := make([][]float64, len(plan.exprs))
	for i, expr := range plan.exprs {
		ind, err := indicator(expr, work)
		if err != nil {
			return err
		}
		inds[i] = ind
	}

	overlap := 0
	for r := 0; r < work.Rows(); r++ {
		var n float64
		for _, ind := range inds {
			n += ind[r]
		}
		if n > 1 {
			overlap++
		}
	}
	if overlap > 0 {
		g.log.Warn("treatment plan assigns at least two exposures to some rows, reconsider how the custom treatments are specified",
			"rows", overlap, "exposures", g.exposure.cols)
	}

	for i, col := range g.exposure.cols {
		if err := work.SetFloat(col, inds[i]); err != nil {
			return err
		}
	}
	return nil
}

func indicator(expr string, t *dataset.Table) ([]float64, error) {
	ind, err := predicate.Indicator(expr, t)
	if err != nil {
		return nil, fmt.Errorf("treatment %q: %w: %w", expr, causal.ErrConfiguration, err)
	}
	return ind, nil
}

// mean averages the predictions, weighted by the original data's weight
// column when one is configured. Rows without a prediction or weight are
// skipped.
func (g *TimeFixedGFormula) mean(pred []float64) (float64, error) {
	var w []float64
	if g.weights != "" {
		var err error
		if w, err = g.data.Floats(g.weights); err != nil {
			return 0, fmt.Errorf("weights: %w", err)
		}
	}
	xs := make([]float64, 0, len(pred))
	var ws []float64
	for i, p := range pred {
		if math.IsNaN(p) || (w != nil && math.IsNaN(w[i])) {
			continue
		}
		xs = append(xs, p)
		if w != nil {
			ws = append(ws, w[i])
		}
	}
	if len(xs) == 0 {
		return 0, fmt.Errorf("no row has a predicted outcome: %w", causal.ErrConfiguration)
	}
	return stat.Mean(xs, ws), nil
}

// MarginalOutcome returns the mean predicted outcome of the last Fit, or
// NaN before the first.
func (g *TimeFixedGFormula) MarginalOutcome() float64 { return g.marginal }

// Predicted returns the working table of the last Fit with the exposure
// set by the plan and the outcome replaced by its prediction. It is nil
// before the first Fit.
func (g *TimeFixedGFormula) Predicted() *dataset.Table {
	if g.predicted == nil {
		return nil
	}
	return g.predicted.Copy()
}

// Model returns the fitted outcome model, or nil.
func (g *TimeFixedGFormula) Model() causal.Model { return g.model }
