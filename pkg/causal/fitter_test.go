package causal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiArAu/zEpid/pkg/dataset"
	"github.com/LiArAu/zEpid/pkg/glm"
)

func TestGLMFitter(t *testing.T) {
	tbl, err := dataset.FromColumns([]string{"x", "y", "w"}, [][]float64{
		{0, 1, 2, 3},
		{1, 3, 5, 7},
		{1, 1, 1, 1},
	})
	require.NoError(t, err)

	m, err := GLMFitter{}.Fit("y ~ x", tbl, glm.Gaussian, "w")
	require.NoError(t, err)
	assert.Equal(t, []string{"Intercept", "x"}, m.Labels())
	assert.InDeltaSlice(t, []float64{1, 2}, m.Params(), 1e-8)

	m, err = GLMFitter{}.Fit("y ~ nope", tbl, glm.Gaussian, "")
	require.Error(t, err)
	assert.Nil(t, m)
}
