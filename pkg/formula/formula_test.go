package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/LiArAu/zEpid/pkg/dataset"
)

func termNames(f *Formula) []string {
	out := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		out[i] = t.String()
	}
	return out
}

func TestParse_TermOrder(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"art + male", []string{"Intercept", "art", "male"}},
		{"art:male + art", []string{"Intercept", "art", "art:male"}},
		{"art*male", []string{"Intercept", "art", "male", "art:male"}},
		{"art + art:male - 1", []string{"art", "art:male"}},
		{"0 + art", []string{"art"}},
		{"art + male - male", []string{"Intercept", "art"}},
		{"(a + b):c", []string{"Intercept", "a:c", "b:c"}},
		{"a*b*c", []string{"Intercept", "a", "b", "c", "a:b", "a:c", "b:c", "a:b:c"}},
		{"C(race) + age", []string{"Intercept", "C(race)", "age"}},
		{"a + a", []string{"Intercept", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, termNames(f))
		})
	}
}

func TestParse_Response(t *testing.T) {
	f, err := Parse("dead ~ art + male")
	require.NoError(t, err)
	assert.Equal(t, "dead", f.Response)
	assert.True(t, f.HasIntercept())

	f, err = Parse("art + art:male")
	require.NoError(t, err)
	assert.Empty(t, f.Response)
	assert.Equal(t, []string{"Intercept", "art", "art:male"}, termNames(f))
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{
		"y ~ ",
		"a + ",
		"a ~ b ~ c",
		"log(a)",
		"a ** 2",
		"a + 2",
		"(a + b",
		"a $ b",
		"C(1)",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			var fe *Error
			require.ErrorAs(t, err, &fe)
		})
	}
}

func sampleTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.FromColumns(
		[]string{"art", "male", "age"},
		[][]float64{
			{1, 0, 1, 0},
			{1, 1, 0, 0},
			{30, 40, 50, math.NaN()},
		},
	)
	require.NoError(t, err)
	require.NoError(t, tbl.SetString("race", []string{"b", "a", "c", "a"}))
	return tbl
}

func TestMatrix_NumericInteraction(t *testing.T) {
	d, err := Matrix("art + art:male - 1", sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"art", "art:male"}, d.Labels)
	want := mat.NewDense(4, 2, []float64{
		1, 1,
		0, 0,
		1, 0,
		0, 0,
	})
	assert.True(t, mat.Equal(want, d.X))
}

func TestMatrix_CategoricalTreatmentCoding(t *testing.T) {
	d, err := Matrix("race + art", sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Intercept", "race[T.b]", "race[T.c]", "art"}, d.Labels)
	assert.Equal(t, []float64{1, 0, 0, 0}, mat.Col(nil, 1, d.X))
	assert.Equal(t, []float64{0, 0, 1, 0}, mat.Col(nil, 2, d.X))
}

func TestMatrix_CategoricalFullRankWithoutIntercept(t *testing.T) {
	d, err := Matrix("C(male) - 1", sampleTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"C(male)[0]", "C(male)[1]"}, d.Labels)
}

func TestMatrix_CategoricalInteraction(t *testing.T) {
	d, err := Matrix("art + art:race - 1", sampleTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"art", "art:race[T.b]", "art:race[T.c]"}, d.Labels)
	assert.Equal(t, []float64{1, 0, 0, 0}, mat.Col(nil, 1, d.X))
	assert.Equal(t, []float64{0, 0, 1, 0}, mat.Col(nil, 2, d.X))
}

func TestMatrix_SecondCategoricalReducedWithoutIntercept(t *testing.T) {
	d, err := Matrix("C(male) + race - 1", sampleTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"C(male)[0]", "C(male)[1]", "race[T.b]", "race[T.c]"}, d.Labels)
	want := mat.NewDense(4, 4, []float64{
		0, 1, 1, 0,
		0, 1, 0, 0,
		1, 0, 0, 1,
		1, 0, 0, 0,
	})
	assert.True(t, mat.Equal(want, d.X))
}

func TestMatrix_CategoricalInteractionWithoutMainEffects(t *testing.T) {
	d, err := Matrix("C(male):race", sampleTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Intercept", "race[T.b]", "race[T.c]",
		"C(male)[T.1]:race[a]", "C(male)[T.1]:race[b]", "C(male)[T.1]:race[c]",
	}, d.Labels)
	assert.Equal(t, []float64{0, 1, 0, 0}, mat.Col(nil, 3, d.X))
	assert.Equal(t, []float64{1, 0, 0, 0}, mat.Col(nil, 4, d.X))
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 5, d.X))
}

func TestMatrix_CategoricalTermsBeforeNumeric(t *testing.T) {
	d, err := Matrix("age + race", sampleTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Intercept", "race[T.b]", "race[T.c]", "age"}, d.Labels)
}

func TestMatrix_MissingPropagates(t *testing.T) {
	d, err := Matrix("age", sampleTable(t))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(d.X.At(3, 1)))
}

func TestMatrix_UnknownColumn(t *testing.T) {
	_, err := Matrix("art + nope", sampleTable(t))
	require.ErrorIs(t, err, dataset.ErrUnknownColumn)
}

func TestDesignInfo_RebuildsOnNewData(t *testing.T) {
	d, err := Matrix("race + art", sampleTable(t))
	require.NoError(t, err)

	next, err := dataset.FromColumns([]string{"art"}, [][]float64{{0, 1}})
	require.NoError(t, err)
	require.NoError(t, next.SetString("race", []string{"c", "a"}))

	X, err := d.Info.Build(next)
	require.NoError(t, err)
	want := mat.NewDense(2, 4, []float64{
		1, 0, 1, 0,
		1, 0, 0, 1,
	})
	assert.True(t, mat.Equal(want, X))

	require.NoError(t, next.SetString("race", []string{"z", "a"}))
	_, err = d.Info.Build(next)
	require.Error(t, err)
}

// Substituting the outcome for the exposure gives the same layout with the
// outcome's values, which is how the SNM right-hand side is built.
func TestMatrix_RenamedColumnKeepsLayout(t *testing.T) {
	tbl := sampleTable(t)
	require.NoError(t, tbl.SetFloat("y", []float64{2, 3, 4, 5}))

	yf := tbl.Copy()
	require.NoError(t, yf.Drop("art"))
	require.NoError(t, yf.Rename("y", "art"))

	d, err := Matrix("art + art:male - 1", yf)
	require.NoError(t, err)
	assert.Equal(t, []string{"art", "art:male"}, d.Labels)
	assert.Equal(t, []float64{2, 3, 4, 5}, mat.Col(nil, 0, d.X))
	assert.Equal(t, []float64{2, 3, 0, 0}, mat.Col(nil, 1, d.X))
}
