package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned for a configuration that cannot run.
var ErrInvalid = errors.New("invalid configuration")

// Outputs lists the accepted output formats.
var Outputs = []string{"auto", "table", "json", "yaml"}

// Validate checks the options shared by every command.
func (c *Config) Validate() error {
	ok := false
	for _, o := range Outputs {
		if c.Output == o {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("output %q must be one of %v: %w", c.Output, Outputs, ErrInvalid)
	}
	if c.Decimal < 0 {
		return fmt.Errorf("decimal must not be negative, got %d: %w", c.Decimal, ErrInvalid)
	}
	if c.Verbose && c.Quiet {
		return fmt.Errorf("verbose and quiet are mutually exclusive: %w", ErrInvalid)
	}
	return nil
}

// ValidateGFormula checks the options the gformula command needs.
func (c *Config) ValidateGFormula() error {
	if err := c.requireData(); err != nil {
		return err
	}
	if c.GFormula.Model == "" {
		return fmt.Errorf("gformula.model is required (--model): %w", ErrInvalid)
	}
	if len(c.GFormula.Treatment) == 0 {
		return fmt.Errorf("gformula.treatment needs at least one plan: %w", ErrInvalid)
	}
	return nil
}

// ValidateGEstimation checks the options the gestimation command needs.
func (c *Config) ValidateGEstimation() error {
	if err := c.requireData(); err != nil {
		return err
	}
	if len(c.Exposure) != 1 {
		return fmt.Errorf("g-estimation takes a single binary exposure, got %d: %w", len(c.Exposure), ErrInvalid)
	}
	if c.GEstimation.TreatmentModel == "" {
		return fmt.Errorf("gestimation.treatment_model is required (--treatment-model): %w", ErrInvalid)
	}
	if c.GEstimation.SNM == "" {
		return fmt.Errorf("gestimation.snm is required (--snm): %w", ErrInvalid)
	}
	return nil
}

func (c *Config) requireData() error {
	switch {
	case c.Data == "":
		return fmt.Errorf("data is required (--data): %w", ErrInvalid)
	case len(c.Exposure) == 0:
		return fmt.Errorf("exposure is required: %w", ErrInvalid)
	case c.Outcome == "":
		return fmt.Errorf("outcome is required: %w", ErrInvalid)
	}
	return nil
}
