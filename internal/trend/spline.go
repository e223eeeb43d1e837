package trend

import (
	"fmt"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/spline"
)

// SplineModel fits a penalized B-spline additive model.
type SplineModel struct {
	Base
	cfg   spline.Config
	grid  *spline.Grid
	level float64
	model *spline.Model
}

// NewSplineModel validates cfg. Expectiles force the normal distribution
// with identity link.
func NewSplineModel(data *dataset.Dataset, cfg spline.Config, opts ...Option) (*SplineModel, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Expectile != 0 && (cfg.Distribution != spline.Normal || cfg.Link != spline.Identity) {
		logger.Warn("expectile fitting supports only the normal distribution with identity link, ignoring %s/%s",
			cfg.Distribution, cfg.Link)
		cfg.Distribution, cfg.Link = spline.Normal, spline.Identity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.level <= 0 || o.level >= 1 {
		return nil, apperrors.Validation(core.ErrUnknownOption, "confidence level must be in (0, 1), found %g", o.level)
	}
	base, err := newBase(data, o.dropouts)
	if err != nil {
		return nil, err
	}
	m := &SplineModel{Base: base, cfg: cfg, level: o.level}
	if o.grid != nil {
		g := copyGrid(*o.grid)
		m.grid = &g
	}
	return m, nil
}

func copyGrid(g spline.Grid) spline.Grid {
	return spline.Grid{
		NSplines: append([]int(nil), g.NSplines...),
		Lambda:   append([]float64(nil), g.Lambda...),
	}
}

// Spline returns the fitted spline, or nil before Fit.
func (m *SplineModel) Spline() *spline.Model { return m.model }

// Fit keeps the cells with positive weight and fits the spline, running the
// grid search first when one is configured.
func (m *SplineModel) Fit(opts ...FitOption) error {
	if err := m.beginFit(opts); err != nil {
		return err
	}
	m.keepPositiveWeights()
	m.model = nil

	if m.grid != nil {
		best, err := spline.GridSearch(m.cfg, *m.grid, m.X, m.Y, m.W)
		if err == nil {
			m.model = best
			m.stage = StageFitted
			return nil
		}
		logger.Error("grid search failed, reason: %v. Fitting with default values", err)
	}

	model, err := spline.New(m.cfg)
	if err == nil {
		err = model.Fit(m.X, m.Y, m.W)
	}
	if err != nil {
		return apperrors.FitFailed(m.kind(), m.Gene, m.Lineage, err)
	}
	lo, hi := m.span()
	logger.Debug("fitted %s on %d points in [%g, %g], edf=%.3f", model, len(m.X), lo, hi, model.EDF())
	m.model = model
	m.stage = StageFitted
	return nil
}

func (m *SplineModel) predict(x []float64) ([]float64, error) {
	if m.model == nil {
		return nil, apperrors.Validation(core.ErrNotFitted, "spline model is not fitted")
	}
	return m.model.Predict(x)
}

// Predict evaluates the spline.
func (m *SplineModel) Predict(xTest []float64) ([]float64, error) {
	return m.predictWith(m.predict, xTest)
}

// ConfidenceInterval returns the posterior band for normal/identity fits and
// the default band otherwise.
func (m *SplineModel) ConfidenceInterval(xTest []float64) ([][2]float64, error) {
	if err := m.requireFitted(); err != nil {
		return nil, err
	}
	if !m.model.SupportsInterval() {
		return m.DefaultConfInt(xTest)
	}
	xt, err := m.testPoints(xTest)
	if err != nil {
		return nil, err
	}
	ci, err := m.model.ConfidenceInterval(xt, m.level)
	if err != nil {
		return nil, err
	}
	m.ConfInt = ci
	return ci, nil
}

// DefaultConfInt computes the residual based band.
func (m *SplineModel) DefaultConfInt(xTest []float64) ([][2]float64, error) {
	return m.defaultConfInt(m.predict, xTest)
}

func (m *SplineModel) Copy() Model {
	c := &SplineModel{Base: m.configCopy(), cfg: m.cfg, level: m.level}
	if m.grid != nil {
		g := copyGrid(*m.grid)
		c.grid = &g
	}
	return c
}

func (m *SplineModel) DeepCopy() Model {
	c := m.Copy().(*SplineModel)
	if m.model != nil {
		c.model = m.model.Clone(true)
	}
	m.copyStateTo(&c.Base)
	return c
}

func (m *SplineModel) kind() string { return "SplineModel" }

func (m *SplineModel) String() string {
	if m.model != nil {
		return fmt.Sprintf("%s[%s]", m.kind(), m.model)
	}
	s, _ := spline.New(m.cfg)
	return fmt.Sprintf("%s[%s]", m.kind(), s)
}
