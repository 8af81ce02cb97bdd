// Package causal holds what the estimators share: the error taxonomy and
// the regression fitter they are built on.
package causal

import "errors"

var (
	// ErrConfiguration is returned for invalid arguments, missing model
	// specifications and invalid treatment plans.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrSingularMatrix is returned when the estimating equations cannot
	// be solved.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrNotImplemented is returned for estimation paths that are declared
	// but not available.
	ErrNotImplemented = errors.New("not implemented")
)
