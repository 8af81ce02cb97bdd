package cli

import (
	"github.com/spf13/cobra"

	"github.com/LiArAu/zEpid/internal/render"
	"github.com/LiArAu/zEpid/pkg/causal/snm"
	"github.com/LiArAu/zEpid/pkg/dataset"
)

// NewGEstimationCommand creates the gestimation command.
func NewGEstimationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gestimation",
		Short: "Estimate a structural nested mean model by g-estimation",
		Long: `Fit a propensity model for a binary exposure and solve the structural
nested mean model for psi. Rows with missing values are dropped.`,
		Example: `  zepid gestimation --data cohort.csv --exposure art --outcome cd4 \
    --treatment-model "male + age0" --snm "art + art:male"`,
		RunE: runGEstimation,
	}
	cmd.Flags().String("treatment-model", "", "propensity model covariates")
	cmd.Flags().String("snm", "", "structural nested model, e.g. \"art + art:male\"")
	cmd.Flags().String("solver", "", "solver (closed|search)")
	_ = cmd.RegisterFlagCompletionFunc("solver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(snm.Closed), string(snm.Search)}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runGEstimation(cmd *cobra.Command, _ []string) error {
	r, err := runFrom(cmd)
	if err != nil {
		return err
	}
	cfg := r.cfg
	if err := cfg.ValidateGEstimation(); err != nil {
		return err
	}

	data, err := dataset.LoadCSV(cfg.Data)
	if err != nil {
		return err
	}

	opts := []snm.Option{
		snm.WithLogger(r.log),
		snm.WithOutput(r.summaryWriter(cmd)),
	}
	if cfg.Weights != "" {
		opts = append(opts, snm.WithWeights(cfg.Weights))
	}
	g, err := snm.New(data, cfg.Exposure[0], cfg.Outcome, opts...)
	if err != nil {
		return err
	}
	g.TreatmentModel(cfg.GEstimation.TreatmentModel, !cfg.Quiet)
	g.StructuralNestedModel(cfg.GEstimation.SNM)
	if err := g.Fit(snm.Solver(cfg.GEstimation.Solver)); err != nil {
		return err
	}

	if render.Resolve(cfg.Output, cmd.OutOrStdout()) == "table" {
		return g.Summary(cmd.OutOrStdout(), cfg.Decimal)
	}
	report := &render.Report{
		Title:   "G-estimation of Structural Nested Mean Model",
		RunID:   r.id,
		Columns: []string{"label", "psi"},
		Decimal: cfg.Decimal,
	}
	labels := g.PsiLabels()
	for i, v := range g.Psi() {
		report.Append(labels[i], v)
	}
	return render.Write(cmd.OutOrStdout(), report, cfg.Output)
}
