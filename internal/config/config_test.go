package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zepid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("data", "", "")
	fs.StringSlice("exposure", nil, "")
	fs.String("outcome", "", "")
	fs.String("outcome-type", "", "")
	fs.String("output", "", "")
	fs.Int("decimal", 0, "")
	fs.Bool("verbose", false, "")
	fs.String("model", "", "")
	fs.StringArray("treatment", nil, "")
	fs.String("solver", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOutcomeType, cfg.OutcomeType)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultDecimal, cfg.Decimal)
	assert.Equal(t, DefaultSolver, cfg.GEstimation.Solver)
	assert.Equal(t, []string{"all", "none"}, cfg.GFormula.Treatment)
	assert.False(t, cfg.Verbose)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
data: cohort.csv
exposure: [art]
outcome: dead
outcome_type: continuous
decimal: 4
gformula:
  model: art + male
  treatment: ["male == 1"]
gestimation:
  treatment_model: male + age0
  snm: art + art:male
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "cohort.csv", cfg.Data)
	assert.Equal(t, []string{"art"}, cfg.Exposure)
	assert.Equal(t, "continuous", cfg.OutcomeType)
	assert.Equal(t, 4, cfg.Decimal)
	assert.Equal(t, "art + male", cfg.GFormula.Model)
	assert.Equal(t, []string{"male == 1"}, cfg.GFormula.Treatment)
	assert.Equal(t, "art + art:male", cfg.GEstimation.SNM)
	assert.Equal(t, DefaultSolver, cfg.GEstimation.Solver)
	assert.NoError(t, cfg.ValidateGFormula())
	assert.NoError(t, cfg.ValidateGEstimation())
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	path := writeConfig(t, "outcome: y\n")
	t.Chdir(filepath.Dir(path))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "y", cfg.Outcome)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
outcome: from_file
outcome_type: continuous
exposure: [art]
gestimation:
  solver: search
`)
	t.Setenv("ZEPID_OUTCOME", "from_env")
	t.Setenv("ZEPID_EXPOSURE", "low, high")
	t.Setenv("ZEPID_GESTIMATION__SOLVER", "closed")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--outcome", "from_flag", "--treatment", "male == 1", "--treatment", "age0 > 30, male == 0"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.Outcome)
	assert.Equal(t, []string{"low", "high"}, cfg.Exposure)
	assert.Equal(t, "closed", cfg.GEstimation.Solver)
	assert.Equal(t, "continuous", cfg.OutcomeType)
	assert.Equal(t, []string{"male == 1", "age0 > 30, male == 0"}, cfg.GFormula.Treatment)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	path := writeConfig(t, "decimal: 5\noutput: json\n")
	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Decimal)
	assert.Equal(t, "json", cfg.Output)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "output: xml\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, "decimal: -1\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, "verbose: true\nquiet: true\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateCommands(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		gf, gee bool
	}{
		{
			name: "complete",
			cfg: Config{
				Data: "d.csv", Exposure: []string{"art"}, Outcome: "y",
				GFormula:    GFormulaConfig{Model: "art", Treatment: []string{"all"}},
				GEstimation: GEstimationConfig{TreatmentModel: "male", SNM: "art"},
			},
			gf: true, gee: true,
		},
		{
			name: "no data",
			cfg:  Config{Exposure: []string{"art"}, Outcome: "y"},
		},
		{
			name: "multivariate exposure",
			cfg: Config{
				Data: "d.csv", Exposure: []string{"low", "high"}, Outcome: "y",
				GFormula:    GFormulaConfig{Model: "low + high", Treatment: []string{"a", "b"}},
				GEstimation: GEstimationConfig{TreatmentModel: "male", SNM: "low"},
			},
			gf: true,
		},
		{
			name: "no models",
			cfg:  Config{Data: "d.csv", Exposure: []string{"art"}, Outcome: "y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.gf {
				assert.NoError(t, tt.cfg.ValidateGFormula())
			} else {
				assert.ErrorIs(t, tt.cfg.ValidateGFormula(), ErrInvalid)
			}
			if tt.gee {
				assert.NoError(t, tt.cfg.ValidateGEstimation())
			} else {
				assert.ErrorIs(t, tt.cfg.ValidateGEstimation(), ErrInvalid)
			}
		})
	}
}
