package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiArAu/zEpid/internal/config"
	"github.com/LiArAu/zEpid/pkg/causal"
	"github.com/LiArAu/zEpid/pkg/dataset"
)

// cohortCSV has 3 of 4 treated and 1 of 4 untreated rows dead. Within
// each male stratum the exposure varies, and cd4 = 2*art + 3*male.
const cohortCSV = `art,male,dead,cd4
1,0,1,2
1,1,1,5
1,1,1,5
1,0,0,2
0,0,0,0
0,0,1,0
0,1,0,3
0,0,0,0
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "cohort.csv")
	require.NoError(t, os.WriteFile(path, []byte(cohortCSV), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

type jsonReport struct {
	Title string           `json:"title"`
	RunID string           `json:"run_id"`
	Rows  []map[string]any `json:"rows"`
}

func TestGFormula_JSON(t *testing.T) {
	data := setup(t)
	out, _, err := execute(t, "gformula", "--data", data, "--exposure", "art", "--outcome", "dead",
		"--model", "art", "--output", "json", "--quiet")
	require.NoError(t, err)

	var got jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Time-fixed g-formula", got.Title)
	assert.NotEmpty(t, got.RunID)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "all", got.Rows[0]["plan"])
	assert.InDelta(t, 0.75, got.Rows[0]["marginal_outcome"], 1e-6)
	assert.Equal(t, "none", got.Rows[1]["plan"])
	assert.InDelta(t, 0.25, got.Rows[1]["marginal_outcome"], 1e-6)
}

func TestGFormula_TableWithSummaryAndPredictions(t *testing.T) {
	data := setup(t)
	pred := filepath.Join(t.TempDir(), "pred.csv")
	out, _, err := execute(t, "gformula", "--data", data, "--exposure", "art", "--outcome", "dead",
		"--model", "art + male", "--treatment", "male == 1", "--output", "table", "--predictions-out", pred)
	require.NoError(t, err)

	assert.Contains(t, out, "Generalized Linear Model Regression Results")
	assert.Contains(t, out, "Time-fixed g-formula")
	assert.Contains(t, out, "male == 1")

	tbl, err := dataset.LoadCSV(pred)
	require.NoError(t, err)
	art, err := tbl.Floats("art")
	require.NoError(t, err)
	male, err := tbl.Floats("male")
	require.NoError(t, err)
	assert.Equal(t, male, art)
}

func TestGFormula_ConfigFile(t *testing.T) {
	data := setup(t)
	cfg := "data: " + data + `
exposure: [art]
outcome: cd4
outcome_type: continuous
quiet: true
output: yaml
gformula:
  model: art + male
  treatment: [all]
`
	require.NoError(t, os.WriteFile("zepid.yaml", []byte(cfg), 0o600))

	out, _, err := execute(t, "gformula")
	require.NoError(t, err)
	assert.Contains(t, out, "title: Time-fixed g-formula")
	assert.Contains(t, out, "plan: all")
}

func TestGFormula_Errors(t *testing.T) {
	data := setup(t)

	_, _, err := execute(t, "gformula", "--data", data, "--exposure", "art", "--outcome", "dead")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = execute(t, "gformula", "--data", data, "--exposure", "art", "--outcome", "dead",
		"--model", "art", "--outcome-type", "count", "-q")
	assert.ErrorIs(t, err, causal.ErrConfiguration)

	_, _, err = execute(t, "gformula", "--data", data, "--exposure", "art", "--outcome", "dead",
		"--model", "art", "--treatment", "os.system('ls')", "-q")
	assert.ErrorIs(t, err, causal.ErrConfiguration)

	_, _, err = execute(t, "gformula", "--data", "missing.csv", "--exposure", "art", "--outcome", "dead", "--model", "art")
	assert.Error(t, err)
}

func TestGEstimation_JSON(t *testing.T) {
	data := setup(t)
	out, _, err := execute(t, "gestimation", "--data", data, "--exposure", "art", "--outcome", "cd4",
		"--treatment-model", "male", "--snm", "art", "-o", "json", "-q")
	require.NoError(t, err)

	var got jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "art", got.Rows[0]["label"])
	assert.InDelta(t, 2, got.Rows[0]["psi"], 1e-6)
}

func TestGEstimation_Table(t *testing.T) {
	data := setup(t)
	out, _, err := execute(t, "gestimation", "--data", data, "--exposure", "art", "--outcome", "cd4",
		"--treatment-model", "male", "--snm", "art", "-o", "table", "--decimal", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Generalized Linear Model Regression Results")
	assert.Contains(t, out, "G-estimation of Structural Nested Mean Model")
	assert.Contains(t, out, "2.00")
}

func TestGEstimation_Errors(t *testing.T) {
	data := setup(t)
	base := []string{"gestimation", "--data", data, "--exposure", "art", "--outcome", "cd4", "-q"}

	_, _, err := execute(t, base...)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = execute(t, append(base, "--treatment-model", "male", "--snm", "art", "--solver", "search")...)
	assert.ErrorIs(t, err, causal.ErrNotImplemented)

	_, _, err = execute(t, append(base, "--treatment-model", "male", "--snm", "art", "--exposure", "male")...)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "zepid v"+Version)
}
