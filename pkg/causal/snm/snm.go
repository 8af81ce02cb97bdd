// Package snm estimates the parameters of a structural nested mean model
// by g-estimation.
//
// The closed-form solver fits a propensity model for the binary exposure
// A, forms the residuals A - P(A=1|L) and solves the estimating equation
//
//	sum_i (A_i - p_i) * w_i * (Y_i - psi' S_i) * S_i = 0
//
// for psi, where S_i is the row of the structural nested model design.
package snm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/mat"

	"github.com/LiArAu/zEpid/pkg/causal"
	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/formula"
	"github.com/LiArAu/zEpid/pkg/glm"
)

// Solver selects how psi is found.
type Solver string

const (
	// Closed solves the linear estimating equation directly.
	Closed Solver = "closed"
	// Search is a grid search over psi. It is not available yet.
	Search Solver = "search"
)

// GEstimationSNM is g-estimation of a structural nested mean model for a
// binary exposure. It is not safe for concurrent use.
type GEstimationSNM struct {
	data     *dataset.Table
	exposure string
	outcome  string
	weights  string

	fitter causal.Fitter
	log    *slog.Logger
	out    io.Writer

	treatmentModel string
	printResults   bool
	snmModel       string

	startingValue []float64
	alpha         []float64

	propensity causal.Model
	psi        []float64
	labels     []string
}

// Option configures a GEstimationSNM.
type Option func(*GEstimationSNM)

// WithWeights names a column of per-row weights. The propensity model is
// fit as a GEE and the residuals are weighted.
func WithWeights(col string) Option {
	return func(g *GEstimationSNM) { g.weights = col }
}

// WithLogger sets the logger for non-fatal warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *GEstimationSNM) { g.log = l }
}

// WithOutput sets where model summaries are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(g *GEstimationSNM) { g.out = w }
}

// WithFitter replaces the regression fitter.
func WithFitter(f causal.Fitter) Option {
	return func(g *GEstimationSNM) { g.fitter = f }
}

// New returns an estimator over the complete rows of data. Rows with a
// missing value in any column are dropped with a warning. The exposure
// must only take the values 0 and 1.
func New(data *dataset.Table, exposure, outcome string, opts ...Option) (*GEstimationSNM, error) {
	g := &GEstimationSNM{
		exposure:     exposure,
		outcome:      outcome,
		log:          slog.New(slog.DiscardHandler),
		out:          os.Stdout,
		printResults: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.fitter == nil {
		g.fitter = causal.GLMFitter{Logger: g.log}
	}

	required := []string{exposure, outcome}
	if g.weights != "" {
		required = append(required, g.weights)
	}
	for _, col := range required {
		if !data.Has(col) {
			return nil, fmt.Errorf("column %q is not in the data: %w", col, causal.ErrConfiguration)
		}
	}

	g.data = data.DropMissing()
	if kept, total := g.data.Rows(), data.Rows(); kept != total {
		g.log.Warn("missing data dropped, g-estimation will fit "+strconv.Itoa(kept)+" of "+strconv.Itoa(total)+" observations",
			"kept", kept, "total", total)
	}
	if g.data.Rows() == 0 {
		return nil, fmt.Errorf("no complete observations: %w", causal.ErrConfiguration)
	}

	a, err := g.data.Floats(exposure)
	if err != nil {
		return nil, fmt.Errorf("exposure: %w: %w", causal.ErrConfiguration, err)
	}
	for _, v := range a {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("exposure %q has value %v, only binary exposures are supported: %w",
				exposure, v, causal.ErrConfiguration)
		}
	}
	return g, nil
}

// TreatmentModel stores the covariates of the propensity model
// exposure ~ model. With printResults its summary is written during Fit.
func (g *GEstimationSNM) TreatmentModel(model string, printResults bool) {
	g.treatmentModel = model
	g.printResults = printResults
}

// StructuralNestedModel stores the structural nested model, such as
// "art + art:male". Its design columns, without an intercept, are the psi
// parameters.
func (g *GEstimationSNM) StructuralNestedModel(model string) {
	g.snmModel = model
}

type fitOptions struct {
	startingValue []float64
	alpha         []float64
}

// FitOption configures Fit.
type FitOption func(*fitOptions)

// WithStartingValue sets the psi values a search starts from.
func WithStartingValue(psi []float64) FitOption {
	return func(o *fitOptions) { o.startingValue = append([]float64(nil), psi...) }
}

// WithAlpha sets the alpha values of a search.
func WithAlpha(alpha ...float64) FitOption {
	return func(o *fitOptions) { o.alpha = append([]float64(nil), alpha...) }
}

// Fit estimates psi with the given solver.
func (g *GEstimationSNM) Fit(solver Solver, opts ...FitOption) error {
	o := fitOptions{alpha: []float64{0}}
	for _, opt := range opts {
		opt(&o)
	}
	g.startingValue, g.alpha = o.startingValue, o.alpha

	switch solver {
	case Closed:
		return g.closedForm()
	case Search:
		g.log.Debug("search solver requested", "starting_value", g.startingValue, "alpha", g.alpha)
		return fmt.Errorf("search solver: %w", causal.ErrNotImplemented)
	default:
		return fmt.Errorf("solver %q must be %q or %q: %w", string(solver), Closed, Search, causal.ErrConfiguration)
	}
}

func (g *GEstimationSNM) closedForm() error {
	if g.treatmentModel == "" {
		return fmt.Errorf("the treatment model must be specified before fitting: %w", causal.ErrConfiguration)
	}
	if g.snmModel == "" {
		return fmt.Errorf("the structural nested model must be specified before fitting: %w", causal.ErrConfiguration)
	}

	// 1. SNM design over the observed data; its columns name psi.
	src := g.snmModel + " - 1"
	snm, err := formula.Matrix(src, g.data)
	if err != nil {
		return fmt.Errorf("structural nested model: %w", err)
	}
	n, k := snm.X.Dims()
	if k == 0 {
		return fmt.Errorf("structural nested model %q has no columns: %w", g.snmModel, causal.ErrConfiguration)
	}

	// 2. The same design with the outcome standing in for the exposure.
	yf := g.data.Copy()
	if err := yf.Drop(g.exposure); err != nil {
		return err
	}
	if err := yf.Rename(g.outcome, g.exposure); err != nil {
		return err
	}
	ym, err := formula.Matrix(src, yf)
	if err != nil {
		return fmt.Errorf("structural nested model over the outcome: %w", err)
	}
	if _, ky := ym.X.Dims(); ky != k {
		return fmt.Errorf("structural nested model has %d columns over the exposure but %d over the outcome: %w",
			k, ky, causal.ErrConfiguration)
	}

	// 3. Propensity scores
	prop, err := g.fitter.Fit(g.exposure+" ~ "+g.treatmentModel, g.data, glm.Binomial, g.weights)
	if err != nil {
		return fmt.Errorf("treatment model: %w", err)
	}
	if g.printResults {
		if err := prop.Summary(g.out); err != nil {
			return fmt.Errorf("treatment model summary: %w", err)
		}
	}
	p, err := prop.Predict(g.data)
	if err != nil {
		return fmt.Errorf("treatment model: %w", err)
	}

	// 4. Residuals, weighted when configured
	a, err := g.data.Floats(g.exposure)
	if err != nil {
		return err
	}
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = a[i] - p[i]
	}
	if g.weights != "" {
		w, err := g.data.Floats(g.weights)
		if err != nil {
			return err
		}
		for i := range diff {
			diff[i] *= w[i]
		}
	}

	// 5. lhm = S' diag(diff) S, rha = Y' diff
	lhm := mat.NewDense(k, k, nil)
	rha := mat.NewVecDense(k, nil)
	for i := 0; i < n; i++ {
		s := snm.X.RawRowView(i)
		y := ym.X.RawRowView(i)
		for r := 0; r < k; r++ {
			rha.SetVec(r, rha.AtVec(r)+diff[i]*y[r])
			for c := 0; c < k; c++ {
				lhm.Set(r, c, lhm.At(r, c)+diff[i]*s[r]*s[c])
			}
		}
	}
	g.log.Debug("g-estimation design", "rows", n, "psi", k, "labels", snm.Labels)

	// 6. Solve
	var lu mat.LU
	lu.Factorize(lhm)
	var psi mat.VecDense
	if err := lu.SolveVecTo(&psi, false, rha); err != nil {
		return fmt.Errorf("solve for psi: %w: %w", causal.ErrSingularMatrix, err)
	}

	g.propensity = prop
	g.psi = mat.Col(nil, 0, &psi)
	g.labels = snm.Labels
	return nil
}

// Psi returns the estimated parameters in design column order, or nil
// before a successful Fit.
func (g *GEstimationSNM) Psi() []float64 { return append([]float64(nil), g.psi...) }

// PsiLabels returns the design column label of each psi.
func (g *GEstimationSNM) PsiLabels() []string { return append([]string(nil), g.labels...) }

// Propensity returns the fitted treatment model, or nil before Fit.
func (g *GEstimationSNM) Propensity() causal.Model { return g.propensity }

// Summary writes each psi next to its label, rounded to decimal places.
func (g *GEstimationSNM) Summary(w io.Writer, decimal int) error {
	if g.psi == nil {
		return fmt.Errorf("psi has not been estimated, call Fit first: %w", causal.ErrConfiguration)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleDouble)
	tw.Style().Format.Header = text.FormatDefault
	tw.SetTitle("G-estimation of Structural Nested Mean Model")
	tw.AppendHeader(table.Row{"", "psi"})
	for i, v := range g.psi {
		tw.AppendRow(table.Row{g.labels[i], strconv.FormatFloat(v, 'f', decimal, 64)})
	}
	tw.Render()
	return nil
}
