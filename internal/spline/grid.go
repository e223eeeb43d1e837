package spline

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// Grid lists the hyperparameter values tried by GridSearch.
type Grid struct {
	NSplines []int
	Lambda   []float64
}

// DefaultGrid tries 6 to 11 splines and penalties 2^-3 .. 2^3 on five log-spaced steps.
func DefaultGrid() Grid {
	lambdas := make([]float64, 5)
	floats.LogSpan(lambdas, math.Exp2(-3), math.Exp2(3))
	return Grid{NSplines: []int{6, 7, 8, 9, 10, 11}, Lambda: lambdas}
}

// Size returns the number of combinations.
func (g Grid) Size() int { return len(g.NSplines) * len(g.Lambda) }

// GridSearch fits every (n_splines, lambda) combination of grid on top of base
// and returns the fit with the lowest GCV score. Combinations that fail are
// skipped; the search fails only when none succeeds.
func GridSearch(base Config, grid Grid, x, y, w []float64) (*Model, error) {
	if grid.Size() == 0 {
		return nil, apperrors.Validation(core.ErrUnknownOption, "grid is empty")
	}
	var (
		best    *Model
		lastErr error
	)
	for _, ns := range grid.NSplines {
		for _, lam := range grid.Lambda {
			cfg := base
			cfg.NSplines = ns
			cfg.Lambda = lam
			m, err := New(cfg)
			if err == nil {
				err = m.Fit(x, y, w)
			}
			if err != nil {
				logger.Debug("grid point n_splines=%d lam=%g failed: %v", ns, lam, err)
				lastErr = err
				continue
			}
			if best == nil || m.GCV() < best.GCV() {
				best = m
			}
		}
	}
	if best == nil {
		return nil, apperrors.Wrapf(lastErr, "all %d grid points failed", grid.Size())
	}
	logger.Debug("grid search selected %s", best)
	return best, nil
}
