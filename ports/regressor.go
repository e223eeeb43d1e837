package ports

// Regressor is a one-dimensional weighted smoother wrapped by the regressor
// trend model. Implementations declare at construction time whether they
// honour sample weights.
type Regressor interface {
	// Name describes the regressor and its hyperparameters, e.g. "Polynomial[degree=2]"
	Name() string

	// AcceptsWeights reports whether Fit uses w. Trend models refuse unequal
	// weights otherwise.
	AcceptsWeights() bool

	Fit(x, y, w []float64) error
	Predict(x []float64) ([]float64, error)

	// Clone returns an unfitted regressor with the same configuration, or a full
	// copy including fitted state when fitted is true.
	Clone(fitted bool) Regressor
}

// IntervalRegressor is a Regressor with its own pointwise confidence band.
// Rows are [lower, upper].
type IntervalRegressor interface {
	Regressor
	ConfidenceInterval(x []float64) ([][2]float64, error)
}
