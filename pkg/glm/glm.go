// Package glm fits generalized linear models described by formulas.
//
// Full-rank designs are estimated with statmodel's IRLS. Rank-deficient
// designs fall back to IRLS with pseudo-inverse steps, with a warning.
//
// Unweighted fits report model-based standard errors. Weighted fits are estimated as GEE
// with an independence working correlation and one cluster per row: the
// coefficients equal the weighted GLM and the standard errors are robust
// (sandwich).
package glm

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/formula"
)

var (
	// ErrNoResponse is returned for a formula without "y ~".
	ErrNoResponse = errors.New("formula has no response")
	// ErrEmpty is returned when no complete rows remain.
	ErrEmpty = errors.New("no complete observations")
	// ErrResponse is returned for a response the family cannot model.
	ErrResponse = errors.New("invalid response")
	// ErrWeights is returned for negative or all-zero weights.
	ErrWeights = errors.New("invalid weights")
)

// Config holds the options of a fit.
type Config struct {
	Family Family
	Link   Link

	// WeightVar names a column of per-row weights. When set the model is
	// fit as GEE with robust standard errors.
	WeightVar string

	// MaxIter and Tol bound the pseudo-inverse fallback.
	MaxIter int
	Tol     float64

	Logger *slog.Logger
}

// DefaultConfig returns a binomial model with the logit link.
func DefaultConfig() *Config {
	return &Config{
		Family:  Binomial,
		Link:    CanonicalLink,
		MaxIter: 100,
		Tol:     1e-8,
	}
}

func (c *Config) link() Link {
	if c.Link == CanonicalLink {
		return c.Family.Canonical()
	}
	return c.Link
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Fit fits the model described by src ("y ~ x1 + x2") to data.
// Rows with a missing response, weight or design value are excluded.
func Fit(src string, data *dataset.Table, c *Config) (*Results, error) {
	if c == nil {
		c = DefaultConfig()
	}
	log := c.logger()

	f, err := formula.Parse(src)
	if err != nil {
		return nil, err
	}
	if f.Response == "" {
		return nil, fmt.Errorf("%q: %w", src, ErrNoResponse)
	}

	// 1. Response, weights and design over the full table
	yAll, err := data.Floats(f.Response)
	if err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	var wAll []float64
	if c.WeightVar != "" {
		wAll, err = data.Floats(c.WeightVar)
		if err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
	}
	design, err := f.Design(data)
	if err != nil {
		return nil, err
	}

	// 2. Keep complete rows only
	rows := completeRows(design.X, yAll, wAll)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%q: %w", src, ErrEmpty)
	}
	if dropped := data.Rows() - len(rows); dropped > 0 {
		log.Warn("glm dropped rows with missing values", "formula", src, "dropped", dropped, "kept", len(rows))
	}
	_, p := design.X.Dims()
	n := len(rows)
	X := mat.NewDense(n, p, nil)
	y := make([]float64, n)
	w := make([]float64, n)
	for i, r := range rows {
		X.SetRow(i, design.X.RawRowView(r))
		y[i] = yAll[r]
		w[i] = 1
		if wAll != nil {
			w[i] = wAll[r]
		}
	}

	// 3. Validate
	for i, v := range y {
		if c.Family == Binomial && (v < 0 || v > 1) {
			return nil, fmt.Errorf("binomial response %s has value %v at row %d: %w", f.Response, v, rows[i], ErrResponse)
		}
	}
	for i, v := range w {
		if v < 0 {
			return nil, fmt.Errorf("weight %v at row %d: %w", v, rows[i], ErrWeights)
		}
	}
	if floats.Sum(w) == 0 {
		return nil, fmt.Errorf("all weights are zero: %w", ErrWeights)
	}

	// 4. Estimate
	var est *estimate
	if rank := weightedRank(X, w); rank < p {
		log.Warn("glm information matrix is singular, using pseudo-inverse", "formula", src, "columns", p, "rank", rank)
		est, err = pinvIRLS(X, y, w, c, log)
	} else {
		est, err = fitStatmodel(X, y, w, c)
	}
	if err != nil {
		return nil, fmt.Errorf("fit %q: %w", src, err)
	}

	res := &Results{
		formula:   src,
		response:  f.Response,
		weightVar: c.WeightVar,
		info:      design.Info,
		labels:    design.Labels,
		family:    c.Family,
		link:      c.link(),
		robust:    c.WeightVar != "",
		params:    est.params,
		cov:       est.cov,
		nobs:      n,
		dfResid:   float64(n - p),
		scale:     est.scale,
		pinv:      est.pinv,
	}

	// 5. Fit statistics and covariance
	res.finish(X, y, w)
	if !res.converged {
		log.Warn("glm did not converge", "formula", src, "deviance", res.deviance)
	}
	log.Debug("glm fit",
		"formula", src,
		"family", c.Family.String(),
		"nobs", n,
		"deviance", res.deviance,
		"converged", res.converged,
	)
	return res, nil
}

func completeRows(X *mat.Dense, y, w []float64) []int {
	n, _ := X.Dims()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(y[i]) || (w != nil && math.IsNaN(w[i])) || floats.HasNaN(X.RawRowView(i)) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// weightedRank is the numerical rank of diag(sqrt(w)) X.
func weightedRank(X *mat.Dense, w []float64) int {
	n, p := X.Dims()
	Xw := mat.NewDense(n, p, nil)
	Xw.Apply(func(i, _ int, v float64) float64 { return v * math.Sqrt(w[i]) }, X)
	var svd mat.SVD
	if ok := svd.Factorize(Xw, mat.SVDNone); !ok {
		return 0
	}
	return svd.Rank(rankTol)
}

const rankTol = 1e-10

// pinvIRLS fits a rank-deficient design by IRLS with minimum-norm least
// squares steps. The coefficients are not identified; the fitted means are.
func pinvIRLS(X *mat.Dense, y, w []float64, c *Config, log *slog.Logger) (*estimate, error) {
	n, p := X.Dims()
	fam, link := c.Family, c.link()
	maxIter := c.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	tol := c.Tol
	if tol <= 0 {
		tol = 1e-8
	}

	mean := floats.Dot(y, w) / floats.Sum(w)
	mu := make([]float64, n)
	eta := make([]float64, n)
	for i := range mu {
		mu[i] = fam.startMu(y[i], mean)
		eta[i] = link.link(mu[i])
	}

	dev := deviance(fam, y, mu, w)
	var beta *mat.VecDense
	converged := false
	for iter := 1; iter <= maxIter; iter++ {
		// Working weights and response
		sw := make([]float64, n)
		z := make([]float64, n)
		for i := range mu {
			d := link.deriv(eta[i])
			sw[i] = math.Sqrt(w[i] * d * d / fam.variance(mu[i]))
			z[i] = (eta[i] + (y[i]-mu[i])/d) * sw[i]
		}

		next, err := minNormLeastSquares(X, sw, z)
		if err != nil {
			return nil, err
		}
		beta = next

		etaVec := mat.NewVecDense(n, eta)
		etaVec.MulVec(X, beta)
		for i := range mu {
			mu[i] = fam.bound(link.inverse(eta[i]))
		}

		prev := dev
		dev = deviance(fam, y, mu, w)
		if math.Abs(dev-prev) <= tol {
			converged = true
			break
		}
	}
	if !converged {
		log.Debug("pseudo-inverse irls stopped at the iteration limit", "iterations", maxIter)
	}

	scale := 1.0
	if fam == Gaussian && n > p {
		var pearson float64
		for i := range mu {
			pearson += w[i] * (y[i] - mu[i]) * (y[i] - mu[i]) / fam.variance(mu[i])
		}
		scale = pearson / float64(n-p)
	}
	return &estimate{params: mat.Col(nil, 0, beta), scale: scale, pinv: true}, nil
}

// minNormLeastSquares solves min ||diag(sw) (X b) - z|| with the SVD,
// returning the minimum-norm solution.
func minNormLeastSquares(X *mat.Dense, sw, z []float64) (*mat.VecDense, error) {
	n, p := X.Dims()
	Xw := mat.NewDense(n, p, nil)
	Xw.Apply(func(i, _ int, v float64) float64 { return v * sw[i] }, X)

	var svd mat.SVD
	if ok := svd.Factorize(Xw, mat.SVDFullU|mat.SVDFullV); !ok {
		return nil, fmt.Errorf("weighted least squares: SVD factorization failed")
	}
	rank := svd.Rank(rankTol)
	if rank == 0 {
		return nil, fmt.Errorf("weighted least squares: design has rank 0")
	}
	var B mat.Dense
	svd.SolveTo(&B, mat.NewVecDense(n, z), rank)
	return mat.NewVecDense(p, mat.Col(nil, 0, &B)), nil
}

func deviance(fam Family, y, mu, w []float64) float64 {
	var d float64
	for i := range y {
		d += w[i] * fam.unitDeviance(y[i], mu[i])
	}
	return d
}

func loglike(fam Family, y, mu, w []float64) float64 {
	var ll float64
	if fam == Binomial {
		for i := range y {
			ll += w[i] * (xlogy(y[i], mu[i]) + xlogy(1-y[i], 1-mu[i]))
		}
		return ll
	}
	// Gaussian with the maximum-likelihood scale
	sw := floats.Sum(w)
	scale := deviance(fam, y, mu, w) / sw
	if scale == 0 {
		return math.Inf(1)
	}
	return -0.5 * (sw*math.Log(2*math.Pi*scale) + sw)
}
