package regress

import (
	"fmt"
	"strconv"

	"github.com/sajari/regression"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// OLS fits an unweighted polynomial by ordinary least squares. It does not
// accept sample weights; trend models only fit it when all cell weights are
// equal.
type OLS struct {
	degree int

	model  *regression.Regression
	x, y   []float64
	fitted bool
}

func NewOLS(degree int) *OLS { return &OLS{degree: degree} }

func (o *OLS) Name() string { return fmt.Sprintf("OLS[degree=%d]", o.degree) }

func (o *OLS) AcceptsWeights() bool { return false }

// Fit ignores w except for dropping rows whose weight is not positive.
func (o *OLS) Fit(x, y, w []float64) error {
	if err := checkTraining(x, y, w, o.degree+2); err != nil {
		return err
	}
	o.fitted = false
	o.x, o.y = nil, nil

	r := new(regression.Regression)
	r.SetObserved("y")
	for d := 0; d < o.degree; d++ {
		r.SetVar(d, "x^"+strconv.Itoa(d+1))
	}
	for i := range x {
		if weightAt(w, i) <= 0 {
			continue
		}
		r.Train(regression.DataPoint(y[i], o.features(x[i])))
		o.x = append(o.x, x[i])
		o.y = append(o.y, y[i])
	}
	if err := r.Run(); err != nil {
		return apperrors.Numerical(core.ErrInsufficientData, "ols fit failed: %v", err)
	}
	o.model = r
	o.fitted = true
	return nil
}

func (o *OLS) features(x float64) []float64 {
	out := make([]float64, o.degree)
	v := 1.0
	for d := range out {
		v *= x
		out[d] = v
	}
	return out
}

func (o *OLS) Predict(x []float64) ([]float64, error) {
	if !o.fitted {
		return nil, apperrors.Validation(core.ErrNotFitted, "%s is not fitted", o.Name())
	}
	out := make([]float64, len(x))
	for i, xi := range x {
		v, err := o.model.Predict(o.features(xi))
		if err != nil {
			return nil, apperrors.Numerical(core.ErrNotFitted, "ols prediction failed: %v", err)
		}
		out[i] = v
	}
	return out, nil
}

// Clone shares the trained model, which Fit never mutates after Run; a refit
// builds a new one.
func (o *OLS) Clone(fitted bool) ports.Regressor {
	c := NewOLS(o.degree)
	if fitted && o.fitted {
		c.model = o.model
		c.x = append([]float64(nil), o.x...)
		c.y = append([]float64(nil), o.y...)
		c.fitted = true
	}
	return c
}
