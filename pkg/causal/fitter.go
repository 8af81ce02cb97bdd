package causal

import (
	"io"
	"log/slog"

	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/glm"
)

// Model is a fitted regression model.
type Model interface {
	Predict(t *dataset.Table) ([]float64, error)
	Params() []float64
	Labels() []string
	Summary(w io.Writer) error
}

// Fitter fits formula ("y ~ x") on data. A non-empty weightVar names a
// column of per-row weights.
type Fitter interface {
	Fit(formula string, data *dataset.Table, family glm.Family, weightVar string) (Model, error)
}

// GLMFitter fits models with package glm: a GLM without weights, a GEE
// with an independence working correlation and robust standard errors
// with weights.
type GLMFitter struct {
	Logger *slog.Logger
}

// Fit implements Fitter.
func (g GLMFitter) Fit(formula string, data *dataset.Table, family glm.Family, weightVar string) (Model, error) {
	c := glm.DefaultConfig()
	c.Family = family
	c.WeightVar = weightVar
	c.Logger = g.Logger
	res, err := glm.Fit(formula, data, c)
	if err != nil {
		return nil, err
	}
	return res, nil
}
