package trend

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// defaultConfInt computes the symmetric band
//
//	ŷ ± sqrt(1 + 1/n + (x_test - x̄)² / Σ(x - x̄)²) · σ / 2
//
// where σ is the residual standard error over the n training points with
// positive weight. It also fills XHat, YHat, YTest and ConfInt.
func (b *Base) defaultConfInt(predict func([]float64) ([]float64, error), xTest []float64) ([][2]float64, error) {
	if err := b.requireFitted(); err != nil {
		return nil, err
	}
	if len(b.X) != len(b.W) || len(b.X) != len(b.Y) {
		return nil, apperrors.Validation(core.ErrInvalidShape,
			"training arrays differ in length: x=%d, y=%d, w=%d", len(b.X), len(b.Y), len(b.W))
	}

	var xHat, yObs []float64
	for i, w := range b.W {
		if w > 0 {
			xHat = append(xHat, b.X[i])
			yObs = append(yObs, b.Y[i])
		}
	}
	n := len(xHat)
	if n <= 2 {
		return nil, apperrors.Numerical(core.ErrInsufficientData,
			"need more than 2 points with positive weight, found %d", n)
	}

	yHat, err := predict(xHat)
	if err != nil {
		return nil, err
	}
	b.XHat, b.YHat = xHat, yHat

	yTest, err := b.predictWith(predict, xTest)
	if err != nil {
		return nil, err
	}

	sigma := floats.Distance(yHat, yObs, 2) / math.Sqrt(float64(n-2))
	mean := stat.Mean(b.X, nil)
	ss := 0.0
	for _, v := range b.X {
		ss += (v - mean) * (v - mean)
	}
	if ss == 0 {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "training pseudotimes have no spread")
	}

	ci := make([][2]float64, len(yTest))
	for i, xt := range b.XTest {
		d := xt - mean
		std := math.Sqrt(1+1/float64(n)+d*d/ss) * sigma / 2
		ci[i] = [2]float64{yTest[i] - std, yTest[i] + std}
	}
	b.ConfInt = ci
	return ci, nil
}
