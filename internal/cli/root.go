// Package cli provides the command-line interface for zepid.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/LiArAu/zEpid/internal/config"
	"github.com/LiArAu/zEpid/internal/render"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// runKey is used to store the run in context.
type runKey struct{}

// run is what every analysis command shares.
type run struct {
	cfg *config.Config
	log *slog.Logger
	id  string
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zepid",
		Short: "zepid - causal effect estimation with g-methods",
		Long: `zepid estimates causal effects from observational data.

gformula fits an outcome model and reports the marginal outcome under
hypothetical treatment plans. gestimation solves a structural nested mean
model for the effect of a binary exposure.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			id := uuid.NewString()
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})).With("run_id", id)
			if cfgFile != "" {
				log.Debug("using config file", "path", cfgFile)
			}

			cmd.SetContext(context.WithValue(cmd.Context(), runKey{}, &run{cfg: cfg, log: log, id: id}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./zepid.yaml)")
	pf.String("data", "", "CSV file of observations")
	pf.StringSlice("exposure", nil, "exposure column; repeat for the indicators of a multivariate exposure")
	pf.String("outcome", "", "outcome column")
	pf.String("outcome-type", "", "outcome type (binary|continuous)")
	pf.String("weights", "", "column of per-row weights")
	pf.StringP("output", "o", "", "output format (auto|table|json|yaml)")
	pf.BoolP("verbose", "v", false, "verbose logging")
	pf.BoolP("quiet", "q", false, "do not print model summaries")
	pf.Int("decimal", config.DefaultDecimal, "decimals shown in tables")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.Outputs, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("outcome-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"binary", "continuous"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewGFormulaCommand())
	rootCmd.AddCommand(NewGEstimationCommand())
	rootCmd.AddCommand(NewVersionCommand(Version))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func runFrom(cmd *cobra.Command) (*run, error) {
	if r, ok := cmd.Context().Value(runKey{}).(*run); ok {
		return r, nil
	}
	return nil, fmt.Errorf("command %s ran without configuration", cmd.Name())
}

// summaryWriter is where model summaries go: stdout for tables, stderr
// when stdout carries JSON or YAML, nowhere when quiet.
func (r *run) summaryWriter(cmd *cobra.Command) io.Writer {
	switch {
	case r.cfg.Quiet:
		return io.Discard
	case render.Resolve(r.cfg.Output, cmd.OutOrStdout()) == "table":
		return cmd.OutOrStdout()
	default:
		return cmd.ErrOrStderr()
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "zepid v%s (%s)\n", version, GitCommit)
		},
	}
}
