package glm

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiArAu/zEpid/pkg/dataset"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func gaussian() *Config {
	c := DefaultConfig()
	c.Family = Gaussian
	return c
}

// twoByTwo builds 10 unexposed rows with 3 events and 10 exposed rows with
// 7 events.
func twoByTwo(t *testing.T) *dataset.Table {
	t.Helper()
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := 0; i < 10; i++ {
		if i < 3 {
			y[i] = 1
		}
		x[10+i] = 1
		if i < 7 {
			y[10+i] = 1
		}
	}
	tbl, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{x, y})
	require.NoError(t, err)
	return tbl
}

func TestFit_GaussianExactLine(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{
		{0, 1, 2, 3, 4},
		{1, 3, 5, 7, 9},
	})
	require.NoError(t, err)

	res, err := Fit("y ~ x", tbl, gaussian())
	require.NoError(t, err)

	params := res.Params()
	if !almostEqual(params[0], 1, 1e-8) || !almostEqual(params[1], 2, 1e-8) {
		t.Errorf("params = %v, want [1 2]", params)
	}
	assert.Equal(t, []string{"Intercept", "x"}, res.Labels())
	assert.True(t, res.Converged())
	assert.Equal(t, 5, res.NObs())
	assert.InDelta(t, 0, res.Deviance(), 1e-10)
}

func TestFit_GaussianScale(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{
		{0, 0, 1, 1},
		{1, 3, 4, 6},
	})
	require.NoError(t, err)

	res, err := Fit("y ~ x", tbl, gaussian())
	require.NoError(t, err)

	// group means 2 and 5, residuals +-1, df 2
	assert.InDelta(t, 2, res.Params()[0], 1e-8)
	assert.InDelta(t, 3, res.Params()[1], 1e-8)
	assert.InDelta(t, 2, res.Scale(), 1e-8)
	se := res.StdErr()
	assert.InDelta(t, 1, se[0], 1e-8)
	assert.InDelta(t, math.Sqrt(2), se[1], 1e-8)
}

func TestFit_LogisticTwoByTwo(t *testing.T) {
	res, err := Fit("y ~ x", twoByTwo(t), nil)
	require.NoError(t, err)

	params := res.Params()
	wantB0 := math.Log(3.0 / 7.0)
	wantB1 := 2 * math.Log(7.0/3.0)
	if !almostEqual(params[0], wantB0, 1e-6) {
		t.Errorf("intercept = %v, want %v", params[0], wantB0)
	}
	if !almostEqual(params[1], wantB1, 1e-6) {
		t.Errorf("slope = %v, want %v", params[1], wantB1)
	}

	// var(b0) = 1/(n p (1-p)) per group
	se := res.StdErr()
	assert.InDelta(t, math.Sqrt(1/2.1), se[0], 1e-5)
	assert.InDelta(t, math.Sqrt(2/2.1), se[1], 1e-5)
	assert.False(t, res.Robust())
	assert.Equal(t, 1.0, res.Scale())

	fitted := res.Fitted()
	assert.InDelta(t, 0.3, fitted[0], 1e-6)
	assert.InDelta(t, 0.7, fitted[19], 1e-6)
}

func TestFit_UnitWeightsMatchUnweighted(t *testing.T) {
	tbl := twoByTwo(t)
	require.NoError(t, tbl.SetFloat("w", []float64{
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	}))

	plain, err := Fit("y ~ x", tbl, nil)
	require.NoError(t, err)

	c := DefaultConfig()
	c.WeightVar = "w"
	weighted, err := Fit("y ~ x", tbl, c)
	require.NoError(t, err)

	assert.True(t, weighted.Robust())
	assert.InDeltaSlice(t, plain.Params(), weighted.Params(), 1e-8)
	for _, s := range weighted.StdErr() {
		assert.False(t, math.IsNaN(s))
	}
}

func TestFit_WeightsActAsFrequencies(t *testing.T) {
	doubled, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{
		{0, 0, 0, 0, 1, 1, 1},
		{1, 1, 0, 2, 4, 4, 7},
	})
	require.NoError(t, err)
	weighted, err := dataset.FromColumns([]string{"x", "y", "w"}, [][]float64{
		{0, 0, 0, 1, 1},
		{1, 0, 2, 4, 7},
		{2, 1, 1, 2, 1},
	})
	require.NoError(t, err)

	want, err := Fit("y ~ x", doubled, gaussian())
	require.NoError(t, err)
	c := gaussian()
	c.WeightVar = "w"
	got, err := Fit("y ~ x", weighted, c)
	require.NoError(t, err)

	assert.InDeltaSlice(t, want.Params(), got.Params(), 1e-8)
}

func TestFit_DropsMissingRows(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{
		{0, 1, math.NaN(), 3, 4},
		{1, 3, 100, 7, math.NaN()},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	c := gaussian()
	c.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	res, err := Fit("y ~ x", tbl, c)
	require.NoError(t, err)

	assert.Equal(t, 3, res.NObs())
	assert.InDelta(t, 2, res.Params()[1], 1e-8)
	assert.Contains(t, buf.String(), "dropped=2")
}

func TestFit_Errors(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "y", "w"}, [][]float64{
		{0, 1, 2},
		{0, 2, -1},
		{1, 1, -1},
	})
	require.NoError(t, err)

	_, err = Fit("y ~ x", tbl, nil)
	assert.ErrorIs(t, err, ErrResponse)

	_, err = Fit("x + y", tbl, nil)
	assert.ErrorIs(t, err, ErrNoResponse)

	c := gaussian()
	c.WeightVar = "w"
	_, err = Fit("y ~ x", tbl, c)
	assert.ErrorIs(t, err, ErrWeights)

	_, err = Fit("y ~ nope", tbl, gaussian())
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)

	empty, err := dataset.FromColumns([]string{"x", "y"}, [][]float64{
		{math.NaN(), 1},
		{1, math.NaN()},
	})
	require.NoError(t, err)
	_, err = Fit("y ~ x", empty, gaussian())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFit_CollinearUsesPseudoInverse(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "x2", "y"}, [][]float64{
		{0, 1, 2, 3},
		{0, 2, 4, 6},
		{1, 2, 3, 4},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	c := gaussian()
	c.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	res, err := Fit("y ~ x + x2", tbl, c)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "pseudo-inverse")
	pred, err := res.Predict(tbl)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, pred, 1e-8)

	var out strings.Builder
	require.NoError(t, res.Summary(&out))
	assert.Contains(t, out.String(), "rank deficient")
}

func TestResults_Predict(t *testing.T) {
	res, err := Fit("y ~ x", twoByTwo(t), nil)
	require.NoError(t, err)

	fresh, err := dataset.FromColumns([]string{"x"}, [][]float64{{1, 0, math.NaN()}})
	require.NoError(t, err)
	pred, err := res.Predict(fresh)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, pred[0], 1e-6)
	assert.InDelta(t, 0.3, pred[1], 1e-6)
	assert.True(t, math.IsNaN(pred[2]))

	_, err = res.Predict(dataset.New(3))
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)
}

func TestResults_Summary(t *testing.T) {
	tbl := twoByTwo(t)
	res, err := Fit("y ~ x", tbl, nil)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, res.Summary(&out))
	s := out.String()
	for _, want := range []string{"Generalized Linear Model Regression Results", "Binomial", "logit", "Intercept", "coef", "std err", "P>|z|", "nonrobust"} {
		assert.Contains(t, s, want)
	}
	assert.NotContains(t, s, "STD ERR")
	assert.NotContains(t, s, "pseudo-inverse")

	require.NoError(t, tbl.SetFloat("w", constant(20, 1)))
	c := DefaultConfig()
	c.WeightVar = "w"
	res, err = Fit("y ~ x", tbl, c)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, res.Summary(&out))
	assert.Contains(t, out.String(), "GEE Regression Results")
	assert.Contains(t, out.String(), "robust")
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
