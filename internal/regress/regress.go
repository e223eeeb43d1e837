// Package regress provides the one-dimensional regressors wrapped by the
// regressor trend model. Each supported family is a Kind, selected once at
// construction.
package regress

import (
	"math"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// Kind enumerates the supported regressor families.
type Kind string

const (
	KindPolynomial Kind = "poly"
	KindKernel     Kind = "kernel"
	// KindOLS is an ordinary least squares fit without sample weights.
	KindOLS Kind = "ols"
)

// Params holds the hyperparameters of every kind; each kind reads its own.
type Params struct {
	Degree    int     // polynomial and OLS degree, default 3
	Bandwidth float64 // kernel bandwidth, 0 selects Silverman's rule
	Level     float64 // confidence level of native intervals, default 0.95
}

// DefaultParams returns the defaults used by the CLI.
func DefaultParams() Params {
	return Params{Degree: 3, Level: 0.95}
}

// New returns the regressor for a kind.
func New(kind Kind, p Params) (ports.Regressor, error) {
	if p.Degree <= 0 {
		p.Degree = 3
	}
	if p.Level <= 0 || p.Level >= 1 {
		p.Level = 0.95
	}
	switch kind {
	case KindPolynomial:
		return NewPolynomial(p.Degree, p.Level), nil
	case KindKernel:
		if p.Bandwidth < 0 {
			return nil, apperrors.Validation(core.ErrUnknownOption, "kernel bandwidth must be non-negative, found %g", p.Bandwidth)
		}
		return NewKernel(p.Bandwidth), nil
	case KindOLS:
		return NewOLS(p.Degree), nil
	default:
		return nil, apperrors.Validation(core.ErrUnknownOption,
			"unknown regressor kind %q, valid options are: 'poly', 'kernel', 'ols'", kind)
	}
}

// checkTraining validates the arrays passed to Fit.
func checkTraining(x, y, w []float64, minPoints int) error {
	if len(x) != len(y) {
		return apperrors.Validation(core.ErrInvalidShape, "x and y have different lengths: %d vs %d", len(x), len(y))
	}
	if w != nil && len(w) != len(x) {
		return apperrors.Validation(core.ErrInvalidShape, "x and w have different lengths: %d vs %d", len(x), len(w))
	}
	positive := 0
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			return apperrors.Numerical(core.ErrInsufficientData, "training data contains NaN at row %d", i)
		}
		if w == nil || w[i] > 0 {
			positive++
		}
	}
	if positive < minPoints {
		return apperrors.Numerical(core.ErrInsufficientData,
			"need at least %d points with positive weight, found %d", minPoints, positive)
	}
	return nil
}

func weightAt(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}
