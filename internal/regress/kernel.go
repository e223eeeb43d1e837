package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// Kernel is a Nadaraya-Watson smoother with a Gaussian kernel. It has no
// native confidence band.
type Kernel struct {
	bandwidth float64

	fitted bool
	h      float64
	x, y   []float64
	w      []float64
}

// NewKernel creates a smoother; bandwidth 0 selects Silverman's rule at fit time.
func NewKernel(bandwidth float64) *Kernel {
	return &Kernel{bandwidth: bandwidth}
}

func (k *Kernel) Name() string {
	if k.bandwidth == 0 {
		return "Kernel[bandwidth=silverman]"
	}
	return fmt.Sprintf("Kernel[bandwidth=%g]", k.bandwidth)
}

func (k *Kernel) AcceptsWeights() bool { return true }

func (k *Kernel) Fit(x, y, w []float64) error {
	if err := checkTraining(x, y, w, 1); err != nil {
		return err
	}
	k.fitted = false
	k.x, k.y, k.w = nil, nil, nil
	for i := range x {
		if wi := weightAt(w, i); wi > 0 {
			k.x = append(k.x, x[i])
			k.y = append(k.y, y[i])
			k.w = append(k.w, wi)
		}
	}

	k.h = k.bandwidth
	if k.h == 0 {
		sd := stat.StdDev(k.x, k.w)
		k.h = 1.06 * sd * math.Pow(float64(len(k.x)), -0.2)
	}
	if k.h <= 0 || math.IsNaN(k.h) {
		k.h = 1
	}
	k.fitted = true
	return nil
}

// Predict falls back to the weighted mean where every kernel weight underflows.
func (k *Kernel) Predict(x []float64) ([]float64, error) {
	if !k.fitted {
		return nil, apperrors.Validation(core.ErrNotFitted, "%s is not fitted", k.Name())
	}
	mean := stat.Mean(k.y, k.w)
	out := make([]float64, len(x))
	for i, xi := range x {
		var num, den float64
		for j, xj := range k.x {
			u := (xi - xj) / k.h
			kw := k.w[j] * math.Exp(-0.5*u*u)
			num += kw * k.y[j]
			den += kw
		}
		if den == 0 {
			out[i] = mean
			continue
		}
		out[i] = num / den
	}
	return out, nil
}

func (k *Kernel) Clone(fitted bool) ports.Regressor {
	c := &Kernel{bandwidth: k.bandwidth}
	if fitted && k.fitted {
		c.fitted = true
		c.h = k.h
		c.x = append([]float64(nil), k.x...)
		c.y = append([]float64(nil), k.y...)
		c.w = append([]float64(nil), k.w...)
	}
	return c
}
