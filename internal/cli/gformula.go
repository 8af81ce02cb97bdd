package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LiArAu/zEpid/internal/render"
	"github.com/LiArAu/zEpid/pkg/causal/gformula"
	"github.com/LiArAu/zEpid/pkg/dataset"
)

// NewGFormulaCommand creates the gformula command.
func NewGFormulaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gformula",
		Short: "Estimate marginal outcomes with the time-fixed g-formula",
		Long: `Fit an outcome model and estimate the marginal outcome under each
treatment plan.

With a single exposure column every --treatment is a separate plan: "all",
"none" or a condition such as "male == 1 and age0 >= 25". With several
exposure columns the --treatment values form one plan, one condition per
column in order.`,
		Example: `  zepid gformula --data cohort.csv --exposure art --outcome dead --model "art + male + age0"
  zepid gformula --data cohort.csv --exposure art --outcome dead --model "art + male" --treatment "male == 1"`,
		RunE: runGFormula,
	}
	cmd.Flags().String("model", "", "outcome model covariates, e.g. \"art + male + art:male\"")
	cmd.Flags().StringArray("treatment", nil, "treatment plan (all|none|condition); may be repeated")
	cmd.Flags().String("predictions-out", "", "write the predicted data of the last plan to this CSV file")
	return cmd
}

func runGFormula(cmd *cobra.Command, _ []string) error {
	r, err := runFrom(cmd)
	if err != nil {
		return err
	}
	cfg := r.cfg
	if err := cfg.ValidateGFormula(); err != nil {
		return err
	}

	data, err := dataset.LoadCSV(cfg.Data)
	if err != nil {
		return err
	}
	r.log.Debug("loaded data", "path", cfg.Data, "rows", data.Rows(), "columns", len(data.Names()))

	exposure := gformula.Binary(cfg.Exposure[0])
	plans := make([]gformula.Plan, 0, len(cfg.GFormula.Treatment))
	if len(cfg.Exposure) > 1 {
		exposure = gformula.Multivariate(cfg.Exposure...)
		plans = append(plans, gformula.ParsePlan(cfg.GFormula.Treatment...))
	} else {
		for _, t := range cfg.GFormula.Treatment {
			plans = append(plans, gformula.ParsePlan(t))
		}
	}

	opts := []gformula.Option{
		gformula.WithLogger(r.log),
		gformula.WithOutput(r.summaryWriter(cmd)),
	}
	if cfg.Weights != "" {
		opts = append(opts, gformula.WithWeights(cfg.Weights))
	}
	g, err := gformula.New(data, exposure, cfg.Outcome, gformula.OutcomeType(cfg.OutcomeType), opts...)
	if err != nil {
		return err
	}
	if err := g.OutcomeModel(cfg.GFormula.Model, true); err != nil {
		return err
	}

	report := &render.Report{
		Title:   "Time-fixed g-formula",
		RunID:   r.id,
		Columns: []string{"plan", "marginal_outcome"},
		Decimal: cfg.Decimal,
	}
	for _, plan := range plans {
		if err := g.Fit(plan); err != nil {
			return fmt.Errorf("plan %q: %w", plan.String(), err)
		}
		report.Append(plan.String(), g.MarginalOutcome())
		r.log.Debug("g-formula plan", "plan", plan.String(), "marginal_outcome", g.MarginalOutcome())
	}

	if out := cfg.GFormula.PredictionsOut; out != "" {
		if err := g.Predicted().SaveCSV(out); err != nil {
			return err
		}
		r.log.Info("predictions written", "path", out)
	}
	return render.Write(cmd.OutOrStdout(), report, cfg.Output)
}
