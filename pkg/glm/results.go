package glm

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/formula"
)

// Results is a fitted model. It is immutable once returned by Fit.
type Results struct {
	formula   string
	response  string
	weightVar string
	info      *formula.DesignInfo
	labels    []string
	family    Family
	link      Link
	robust    bool

	params []float64
	cov    *mat.SymDense
	mu     []float64

	nobs       int
	dfResid    float64
	deviance   float64
	llf        float64
	scale      float64
	converged  bool
	pinv       bool
}

// Params returns the coefficients in design column order.
func (r *Results) Params() []float64 { return append([]float64(nil), r.params...) }

// Labels returns the design column labels.
func (r *Results) Labels() []string { return append([]string(nil), r.labels...) }

// StdErr returns the standard errors of the coefficients.
func (r *Results) StdErr() []float64 {
	se := make([]float64, len(r.params))
	for i := range se {
		se[i] = math.Sqrt(r.cov.At(i, i))
	}
	return se
}

// Cov returns the coefficient covariance matrix.
func (r *Results) Cov() *mat.SymDense {
	out := mat.NewSymDense(len(r.params), nil)
	out.CopySym(r.cov)
	return out
}

// Fitted returns the fitted means of the rows used in the fit.
func (r *Results) Fitted() []float64 { return append([]float64(nil), r.mu...) }

// NObs returns the number of rows used in the fit.
func (r *Results) NObs() int { return r.nobs }

// Deviance returns the model deviance.
func (r *Results) Deviance() float64 { return r.deviance }

// LogLike returns the log-likelihood at the estimate.
func (r *Results) LogLike() float64 { return r.llf }

// Scale returns the dispersion: 1 for binomial, the Pearson estimate for gaussian.
func (r *Results) Scale() float64 { return r.scale }

// Converged reports whether IRLS met the tolerance.
func (r *Results) Converged() bool { return r.converged }

// Robust reports whether the standard errors are sandwich estimates.
func (r *Results) Robust() bool { return r.robust }

// Predict returns the predicted mean for every row of t. Rows with missing
// design values predict NaN.
func (r *Results) Predict(t *dataset.Table) ([]float64, error) {
	X, err := r.info.Build(t)
	if err != nil {
		return nil, fmt.Errorf("predict %q: %w", r.formula, err)
	}
	n, _ := X.Dims()
	eta := mat.NewVecDense(n, nil)
	eta.MulVec(X, mat.NewVecDense(len(r.params), r.Params()))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.link.inverse(eta.AtVec(i))
	}
	return out, nil
}

// convergeTol bounds the Newton step, relative to each coefficient, at
// which a fit is reported as converged.
const convergeTol = 1e-6

// finish computes the fitted means, deviance and log-likelihood at the
// estimate and checks that a further Newton step is negligible. A robust
// fit gets the sandwich covariance; a fit without a covariance gets the
// model-based one.
func (r *Results) finish(X *mat.Dense, y, w []float64) {
	n, p := X.Dims()
	var eta mat.VecDense
	eta.MulVec(X, mat.NewVecDense(p, r.params))

	// bread: X'WX with IRLS weights; meat: sum of squared score contributions
	bread := mat.NewSymDense(p, nil)
	meat := mat.NewSymDense(p, nil)
	score := mat.NewVecDense(p, nil)
	r.mu = make([]float64, n)
	for i := 0; i < n; i++ {
		e := eta.AtVec(i)
		mu := r.family.bound(r.link.inverse(e))
		r.mu[i] = mu
		d := r.link.deriv(e)
		v := r.family.variance(mu)
		row := mat.NewVecDense(p, X.RawRowView(i))
		bread.SymRankOne(bread, w[i]*d*d/v, row)
		u := w[i] * (y[i] - mu) * d / v
		meat.SymRankOne(meat, u*u, row)
		score.AddScaledVec(score, u, row)
	}
	r.deviance = deviance(r.family, y, r.mu, w)
	r.llf = loglike(r.family, y, r.mu, w)

	inv := invertSym(bread)
	var step mat.VecDense
	step.MulVec(inv, score)
	r.converged = true
	for j := 0; j < p; j++ {
		if math.Abs(step.AtVec(j)) > convergeTol*(1+math.Abs(r.params[j])) {
			r.converged = false
		}
	}

	switch {
	case r.robust:
		var tmp, sandwich mat.Dense
		tmp.Mul(inv, meat)
		sandwich.Mul(&tmp, inv)
		r.cov = mat.NewSymDense(p, nil)
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				r.cov.SetSym(i, j, (sandwich.At(i, j)+sandwich.At(j, i))/2)
			}
		}
	case r.cov == nil:
		r.cov = mat.NewSymDense(p, nil)
		r.cov.ScaleSym(r.scale, inv)
	}
}

// invertSym inverts a symmetric matrix, using the SVD pseudo-inverse when
// it is singular.
func invertSym(a *mat.SymDense) *mat.SymDense {
	p := a.SymmetricDim()
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		var svd mat.SVD
		if ok := svd.Factorize(a, mat.SVDFullU|mat.SVDFullV); ok {
			eye := mat.NewDiagDense(p, nil)
			for i := 0; i < p; i++ {
				eye.SetDiag(i, 1)
			}
			svd.SolveTo(&inv, eye, svd.Rank(1e-12))
		}
	}
	out := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			out.SetSym(i, j, (inv.At(i, j)+inv.At(j, i))/2)
		}
	}
	return out
}

// Summary writes a coefficient table in the style of a regression report.
func (r *Results) Summary(w io.Writer) error {
	title := "Generalized Linear Model Regression Results"
	method := "IRLS"
	covType := "nonrobust"
	if r.robust {
		title = "GEE Regression Results"
		method = "GEE (independence)"
		covType = "robust"
	}
	if r.pinv {
		method += ", pseudo-inverse"
	}

	info := table.NewWriter()
	info.SetOutputMirror(w)
	info.SetStyle(table.StyleLight)
	info.SetTitle(title)
	info.AppendRows([]table.Row{
		{"Dep. Variable:", r.response, "No. Observations:", r.nobs},
		{"Model:", method, "Df Residuals:", fmtFloat(r.dfResid, 0)},
		{"Model Family:", r.family.String(), "Df Model:", len(r.params) - 1},
		{"Link Function:", r.link.String(), "Scale:", fmtFloat(r.scale, 4)},
		{"Covariance Type:", covType, "Log-Likelihood:", fmtFloat(r.llf, 3)},
		{"Converged:", r.converged, "Deviance:", fmtFloat(r.deviance, 3)},
	})
	if r.weightVar != "" {
		info.AppendRow(table.Row{"Weights:", r.weightVar, "", ""})
	}
	info.Render()

	zcrit := distuv.UnitNormal.Quantile(0.975)
	se := r.StdErr()
	coef := table.NewWriter()
	coef.SetOutputMirror(w)
	coef.SetStyle(table.StyleLight)
	coef.Style().Format.Header = text.FormatDefault
	coef.AppendHeader(table.Row{"", "coef", "std err", "z", "P>|z|", "[0.025", "0.975]"})
	for i, b := range r.params {
		z := b / se[i]
		pval := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
		coef.AppendRow(table.Row{
			r.labels[i],
			fmtFloat(b, 4),
			fmtFloat(se[i], 3),
			fmtFloat(z, 3),
			fmtFloat(pval, 3),
			fmtFloat(b-zcrit*se[i], 3),
			fmtFloat(b+zcrit*se[i], 3),
		})
	}
	coef.Render()
	if r.pinv {
		_, err := fmt.Fprintln(w, "Warning: the design is rank deficient; estimates use the pseudo-inverse.")
		return err
	}
	return nil
}

func fmtFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
