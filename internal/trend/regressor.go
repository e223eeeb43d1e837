package trend

import (
	"fmt"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// RegressorModel wraps a generic one-dimensional regressor.
type RegressorModel struct {
	Base
	reg ports.Regressor
}

// NewRegressorModel wraps reg. A regressor that ignores sample weights can only
// be fitted while all positive cell weights are equal.
func NewRegressorModel(data *dataset.Dataset, reg ports.Regressor, opts ...Option) (*RegressorModel, error) {
	if reg == nil {
		return nil, apperrors.Validation(core.ErrUnknownOption, "regressor is nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	base, err := newBase(data, o.dropouts)
	if err != nil {
		return nil, err
	}
	return &RegressorModel{Base: base, reg: reg}, nil
}

// Regressor returns the wrapped regressor.
func (m *RegressorModel) Regressor() ports.Regressor { return m.reg }

// Fit fits the regressor with the lineage weights.
func (m *RegressorModel) Fit(opts ...FitOption) error {
	if err := m.beginFit(opts); err != nil {
		return err
	}
	if !m.reg.AcceptsWeights() && !uniformWeights(m.W) {
		return apperrors.Validation(core.ErrWeightsUnsupported,
			"regressor %s cannot be fitted with unequal cell weights, fit without a lineage", m.reg.Name())
	}
	if err := m.reg.Fit(m.X, m.Y, m.W); err != nil {
		return apperrors.FitFailed(m.kind(), m.Gene, m.Lineage, err)
	}
	m.stage = StageFitted
	return nil
}

// uniformWeights reports whether all positive weights are equal. Zero weights
// only exclude cells.
func uniformWeights(w []float64) bool {
	first := 0.0
	for _, v := range w {
		if v <= 0 {
			continue
		}
		if first == 0 {
			first = v
		} else if v != first {
			return false
		}
	}
	return true
}

// Predict evaluates the regressor.
func (m *RegressorModel) Predict(xTest []float64) ([]float64, error) {
	return m.predictWith(m.reg.Predict, xTest)
}

// ConfidenceInterval uses the regressor's own band when it has one.
func (m *RegressorModel) ConfidenceInterval(xTest []float64) ([][2]float64, error) {
	ir, ok := m.reg.(ports.IntervalRegressor)
	if !ok {
		return m.DefaultConfInt(xTest)
	}
	if err := m.requireFitted(); err != nil {
		return nil, err
	}
	xt, err := m.testPoints(xTest)
	if err != nil {
		return nil, err
	}
	ci, err := ir.ConfidenceInterval(xt)
	if err != nil {
		return nil, err
	}
	m.ConfInt = ci
	return ci, nil
}

// DefaultConfInt computes the residual based band.
func (m *RegressorModel) DefaultConfInt(xTest []float64) ([][2]float64, error) {
	return m.defaultConfInt(m.reg.Predict, xTest)
}

func (m *RegressorModel) Copy() Model {
	return &RegressorModel{Base: m.configCopy(), reg: m.reg.Clone(false)}
}

func (m *RegressorModel) DeepCopy() Model {
	c := &RegressorModel{Base: m.configCopy(), reg: m.reg.Clone(true)}
	m.copyStateTo(&c.Base)
	return c
}

func (m *RegressorModel) kind() string { return "RegressorModel" }

func (m *RegressorModel) String() string {
	return fmt.Sprintf("%s[%s]", m.kind(), m.reg.Name())
}
