// Package spline fits one-dimensional penalized B-spline regressions
// (P-splines) with sample weights.
package spline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"cellfate/domain/core"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
)

var logger = internal.DefaultLogger.With("spline")

// Distribution of the response.
type Distribution string

const (
	Normal  Distribution = "normal"
	Poisson Distribution = "poisson"
)

// Link between the linear predictor and the mean.
type Link string

const (
	Identity Link = "identity"
	Log      Link = "log"
)

// Config holds the model hyperparameters.
type Config struct {
	NSplines     int
	Order        int // polynomial degree of the pieces
	Lambda       float64
	Distribution Distribution
	Link         Link
	MaxIter      int
	Tol          float64
	// Expectile in (0, 1) fits an asymmetric least squares curve; 0 disables it.
	Expectile float64
}

// DefaultConfig returns 10 cubic splines with a first-difference penalty of 0.5.
func DefaultConfig() Config {
	return Config{
		NSplines:     10,
		Order:        3,
		Lambda:       0.5,
		Distribution: Normal,
		Link:         Identity,
		MaxIter:      1000,
		Tol:          1e-4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Order < 1 {
		return apperrors.Validation(core.ErrUnknownOption, "spline order must be positive, found %d", c.Order)
	}
	if c.NSplines <= c.Order {
		return apperrors.Validation(core.ErrUnknownOption,
			"number of splines must exceed the spline order %d, found %d", c.Order, c.NSplines)
	}
	if c.Lambda < 0 || math.IsNaN(c.Lambda) {
		return apperrors.Validation(core.ErrUnknownOption, "lambda must be non-negative, found %g", c.Lambda)
	}
	switch {
	case c.Distribution == Normal && c.Link == Identity:
	case c.Distribution == Poisson && c.Link == Log:
	default:
		return apperrors.Validation(core.ErrUnknownOption,
			"unsupported distribution/link pair %q/%q, valid pairs are: 'normal/identity', 'poisson/log'", c.Distribution, c.Link)
	}
	if c.Expectile != 0 {
		if c.Expectile <= 0 || c.Expectile >= 1 {
			return apperrors.Validation(core.ErrUnknownOption, "expectile must be in (0, 1), found %g", c.Expectile)
		}
		if c.Distribution != Normal {
			return apperrors.Validation(core.ErrUnknownOption, "expectiles require the normal distribution")
		}
	}
	if c.MaxIter <= 0 {
		return apperrors.Validation(core.ErrUnknownOption, "max_iter must be positive, found %d", c.MaxIter)
	}
	return nil
}

// Model is a fitted or unfitted P-spline.
type Model struct {
	cfg Config

	fitted bool
	basis  *basis
	coef   []float64
	cov    *mat.SymDense // (B'WB + λP)⁻¹
	sigma2 float64
	edf    float64
	gcv    float64
	n      int
}

// New validates cfg and returns an unfitted model.
func New(cfg Config) (*Model, error) {
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-4
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// Config returns the hyperparameters.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) String() string {
	s := fmt.Sprintf("n_splines=%d, spline_order=%d, lam=%g, distribution=%s, link=%s",
		m.cfg.NSplines, m.cfg.Order, m.cfg.Lambda, m.cfg.Distribution, m.cfg.Link)
	if m.cfg.Expectile != 0 {
		s += fmt.Sprintf(", expectile=%g", m.cfg.Expectile)
	}
	return s
}

// Fitted reports whether Fit succeeded.
func (m *Model) Fitted() bool { return m.fitted }

// EDF returns the effective degrees of freedom of the fit.
func (m *Model) EDF() float64 { return m.edf }

// GCV returns the generalized cross validation score of the fit.
func (m *Model) GCV() float64 { return m.gcv }

// Fit estimates the coefficients. w may be nil; rows with non-positive weight
// are ignored.
func (m *Model) Fit(x, y, w []float64) error {
	m.fitted = false
	xs, ys, ws, err := positiveRows(x, y, w)
	if err != nil {
		return err
	}
	if len(xs) <= m.cfg.Order {
		return apperrors.Numerical(core.ErrInsufficientData,
			"need more than %d points with positive weight, found %d", m.cfg.Order, len(xs))
	}
	if m.cfg.Distribution == Poisson {
		for _, v := range ys {
			if v < 0 {
				return apperrors.Validation(core.ErrInvalidShape, "poisson response must be non-negative, found %g", v)
			}
		}
	}
	// mean-one weights keep sigma2 on the scale of y
	floats.Scale(float64(len(ws))/floats.Sum(ws), ws)

	b, err := newBasis(m.cfg.NSplines, m.cfg.Order, floats.Min(xs), floats.Max(xs))
	if err != nil {
		return err
	}
	m.basis = b
	m.n = len(xs)
	design := b.design(xs)
	penalty := differencePenalty(m.cfg.NSplines)

	switch {
	case m.cfg.Distribution == Poisson:
		err = m.fitPoisson(design, penalty, ys, ws)
	case m.cfg.Expectile != 0:
		err = m.fitExpectile(design, penalty, ys, ws)
	default:
		_, err = m.solve(design, penalty, ys, ws)
	}
	if err != nil {
		return err
	}
	m.fitted = true
	return nil
}

func positiveRows(x, y, w []float64) (xs, ys, ws []float64, err error) {
	if len(x) != len(y) {
		return nil, nil, nil, apperrors.Validation(core.ErrInvalidShape, "x and y have different lengths: %d vs %d", len(x), len(y))
	}
	if w != nil && len(w) != len(x) {
		return nil, nil, nil, apperrors.Validation(core.ErrInvalidShape, "x and w have different lengths: %d vs %d", len(x), len(w))
	}
	for i := range x {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		if !(wi > 0) {
			continue
		}
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) {
			return nil, nil, nil, apperrors.Numerical(core.ErrInsufficientData, "training data is not finite at row %d", i)
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
		ws = append(ws, wi)
	}
	return xs, ys, ws, nil
}

// solve minimizes Σ w (z - Bβ)² + λ β'Pβ, stores the solution and returns the fitted values.
func (m *Model) solve(design *mat.Dense, penalty *mat.SymDense, z, w []float64) ([]float64, error) {
	n, k := design.Dims()

	btwb := mat.NewSymDense(k, nil)
	btwz := mat.NewVecDense(k, nil)
	for i := 0; i < n; i++ {
		row := design.RawRowView(i)
		for a := 0; a < k; a++ {
			if row[a] == 0 {
				continue
			}
			btwz.SetVec(a, btwz.AtVec(a)+w[i]*row[a]*z[i])
			for c := a; c < k; c++ {
				btwb.SetSym(a, c, btwb.At(a, c)+w[i]*row[a]*row[c])
			}
		}
	}

	lhs := mat.NewSymDense(k, nil)
	lhs.AddSym(btwb, scaledSym(penalty, m.cfg.Lambda))
	// tiny ridge for coefficients without data support
	ridge := 1e-9 * math.Max(1, mat.Trace(btwb)/float64(k))
	for a := 0; a < k; a++ {
		lhs.SetSym(a, a, lhs.At(a, a)+ridge)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(lhs); !ok {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "penalized system is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, btwz); err != nil {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "solving penalized system: %v", err)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "inverting penalized system: %v", err)
	}

	var fit mat.VecDense
	fit.MulVec(design, &beta)
	mu := fit.RawVector().Data

	// edf = tr((B'WB + λP)⁻¹ B'WB)
	edf := 0.0
	for a := 0; a < k; a++ {
		for c := 0; c < k; c++ {
			edf += inv.At(a, c) * btwb.At(c, a)
		}
	}

	rss := 0.0
	for i := range z {
		r := z[i] - mu[i]
		rss += w[i] * r * r
	}
	m.coef = mat.Col(nil, 0, &beta)
	m.cov = &inv
	m.edf = edf
	if dof := float64(n) - edf; dof > 0 {
		m.sigma2 = rss / dof
		m.gcv = float64(n) * rss / (dof * dof)
	} else {
		m.sigma2 = 0
		m.gcv = math.Inf(1)
	}
	return append([]float64(nil), mu...), nil
}

func scaledSym(s *mat.SymDense, f float64) *mat.SymDense {
	var out mat.SymDense
	out.ScaleSym(f, s)
	return &out
}

// fitExpectile iterates least asymmetrically weighted squares until the side
// of every residual is stable.
func (m *Model) fitExpectile(design *mat.Dense, penalty *mat.SymDense, y, w []float64) error {
	tau := m.cfg.Expectile
	above := make([]bool, len(y))
	aw := make([]float64, len(w))
	for i := range w {
		aw[i] = 0.5 * w[i]
	}
	for iter := 0; iter < m.cfg.MaxIter; iter++ {
		mu, err := m.solve(design, penalty, y, aw)
		if err != nil {
			return err
		}
		changed := iter == 0
		for i := range y {
			a := y[i] > mu[i]
			if a != above[i] {
				changed = true
			}
			above[i] = a
			if a {
				aw[i] = tau * w[i]
			} else {
				aw[i] = (1 - tau) * w[i]
			}
		}
		if !changed {
			return nil
		}
	}
	logger.Warn("expectile fit did not converge after %d iterations", m.cfg.MaxIter)
	return nil
}

// fitPoisson runs penalized iteratively reweighted least squares with a log link.
func (m *Model) fitPoisson(design *mat.Dense, penalty *mat.SymDense, y, w []float64) error {
	n := len(y)
	mu := make([]float64, n)
	eta := make([]float64, n)
	for i, v := range y {
		mu[i] = v + 0.1
		eta[i] = math.Log(mu[i])
	}
	z := make([]float64, n)
	ww := make([]float64, n)
	var prev []float64
	for iter := 0; iter < m.cfg.MaxIter; iter++ {
		for i := range y {
			z[i] = eta[i] + (y[i]-mu[i])/mu[i]
			ww[i] = w[i] * mu[i]
		}
		fit, err := m.solve(design, penalty, z, ww)
		if err != nil {
			return err
		}
		for i := range fit {
			eta[i] = fit[i]
			mu[i] = math.Exp(eta[i])
		}
		if prev != nil && floats.Distance(prev, m.coef, math.Inf(1)) < m.cfg.Tol*(1+floats.Norm(m.coef, math.Inf(1))) {
			m.poissonScores(y, w, mu)
			return nil
		}
		prev = append(prev[:0], m.coef...)
	}
	m.poissonScores(y, w, mu)
	logger.Warn("poisson fit did not converge after %d iterations", m.cfg.MaxIter)
	return nil
}

// poissonScores replaces the working-response GCV with the deviance based one.
func (m *Model) poissonScores(y, w, mu []float64) {
	dev := 0.0
	for i := range y {
		d := -(y[i] - mu[i])
		if y[i] > 0 {
			d += y[i] * math.Log(y[i]/mu[i])
		}
		dev += 2 * w[i] * d
	}
	n := float64(len(y))
	if dof := n - m.edf; dof > 0 {
		m.gcv = n * dev / (dof * dof)
	}
	m.sigma2 = 1
}

// linear returns the linear predictor at x.
func (m *Model) linear(x []float64) []float64 {
	out := make([]float64, len(x))
	row := make([]float64, m.cfg.NSplines)
	for i, xi := range x {
		m.basis.row(xi, row)
		out[i] = floats.Dot(row, m.coef)
	}
	return out
}

// Predict returns the fitted mean at x.
func (m *Model) Predict(x []float64) ([]float64, error) {
	if !m.fitted {
		return nil, apperrors.Validation(core.ErrNotFitted, "spline model is not fitted")
	}
	out := m.linear(x)
	if m.cfg.Link == Log {
		for i := range out {
			out[i] = math.Exp(out[i])
		}
	}
	return out, nil
}

// SupportsInterval reports whether ConfidenceInterval is available.
func (m *Model) SupportsInterval() bool {
	return m.cfg.Distribution == Normal && m.cfg.Link == Identity && m.cfg.Expectile == 0
}

// ConfidenceInterval returns a pointwise band for the mean at the given level
// using the Bayesian posterior covariance σ²(B'WB + λP)⁻¹.
func (m *Model) ConfidenceInterval(x []float64, level float64) ([][2]float64, error) {
	if !m.SupportsInterval() {
		return nil, apperrors.Validation(core.ErrUnknownOption,
			"confidence intervals are only available for the normal distribution with identity link")
	}
	yhat, err := m.Predict(x)
	if err != nil {
		return nil, err
	}
	dof := float64(m.n) - m.edf
	if dof <= 0 {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "no residual degrees of freedom left")
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}.Quantile(1 - (1-level)/2)

	k := m.cfg.NSplines
	row := mat.NewVecDense(k, nil)
	var tmp mat.VecDense
	out := make([][2]float64, len(x))
	for i, xi := range x {
		m.basis.row(xi, row.RawVector().Data)
		tmp.MulVec(m.cov, row)
		se := math.Sqrt(math.Max(0, m.sigma2*mat.Dot(row, &tmp)))
		out[i] = [2]float64{yhat[i] - t*se, yhat[i] + t*se}
	}
	return out, nil
}

// Clone copies the configuration and, when fitted is true, the fitted state.
func (m *Model) Clone(fitted bool) *Model {
	c := &Model{cfg: m.cfg}
	if fitted && m.fitted {
		c.fitted = true
		b := *m.basis
		b.knots = append([]float64(nil), m.basis.knots...)
		c.basis = &b
		c.coef = append([]float64(nil), m.coef...)
		cov := mat.NewSymDense(m.cfg.NSplines, nil)
		cov.CopySym(m.cov)
		c.cov = cov
		c.sigma2, c.edf, c.gcv, c.n = m.sigma2, m.edf, m.gcv, m.n
	}
	return c
}
