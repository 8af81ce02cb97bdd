// Package config loads the analysis configuration for the zepid CLI.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Defaults
const (
	DefaultOutcomeType = "binary"
	DefaultOutput      = "auto"
	DefaultDecimal     = 3
	DefaultSolver      = "closed"
	DefaultConfigFile  = "zepid.yaml"
	EnvPrefix          = "ZEPID_"
)

// Config holds every option of an analysis.
type Config struct {
	Data        string            `koanf:"data"`
	Exposure    []string          `koanf:"exposure"`
	Outcome     string            `koanf:"outcome"`
	OutcomeType string            `koanf:"outcome_type"`
	Weights     string            `koanf:"weights"`
	Output      string            `koanf:"output"`
	Verbose     bool              `koanf:"verbose"`
	Quiet       bool              `koanf:"quiet"`
	Decimal     int               `koanf:"decimal"`
	GFormula    GFormulaConfig    `koanf:"gformula"`
	GEstimation GEstimationConfig `koanf:"gestimation"`
}

// GFormulaConfig holds the options of the gformula command.
type GFormulaConfig struct {
	Model          string   `koanf:"model"`
	Treatment      []string `koanf:"treatment"`
	PredictionsOut string   `koanf:"predictions_out"`
}

// GEstimationConfig holds the options of the gestimation command.
type GEstimationConfig struct {
	TreatmentModel string `koanf:"treatment_model"`
	SNM            string `koanf:"snm"`
	Solver         string `koanf:"solver"`
}

// flagKeys maps command-specific flags onto their nested config keys.
// Other flags map to their own name with '-' replaced by '_'.
var flagKeys = map[string]string{
	"model":           "gformula.model",
	"treatment":       "gformula.treatment",
	"predictions-out": "gformula.predictions_out",
	"treatment-model": "gestimation.treatment_model",
	"snm":             "gestimation.snm",
	"solver":          "gestimation.solver",
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"exposure": true,
}

// Load reads the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// cfgFile may be empty, in which case zepid.yaml in the working directory
// is used when present. Only flags that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"outcome_type":       DefaultOutcomeType,
		"output":             DefaultOutput,
		"decimal":            DefaultDecimal,
		"verbose":            false,
		"quiet":              false,
		"gformula.treatment": []string{"all", "none"},
		"gestimation.solver": DefaultSolver,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment (ZEPID_ prefix)
	// Transform: ZEPID_OUTCOME_TYPE -> outcome_type, ZEPID_GESTIMATION__SOLVER -> gestimation.solver
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if listKeys[key] {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			// Repeated flags keep each value whole, commas included.
			if f.Value.Type() == "stringArray" {
				vals, _ := flags.GetStringArray(f.Name)
				return key, vals
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
