package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// Polynomial is a weighted least squares polynomial with a t-based pointwise
// confidence band for the mean.
type Polynomial struct {
	degree int
	level  float64

	fitted bool
	center float64
	scale  float64
	coef   []float64
	cov    *mat.Dense // (X'WX)^-1
	sigma2 float64
	dof    float64
}

var _ ports.IntervalRegressor = (*Polynomial)(nil)

// NewPolynomial creates an unfitted polynomial of the given degree.
func NewPolynomial(degree int, level float64) *Polynomial {
	return &Polynomial{degree: degree, level: level}
}

func (p *Polynomial) Name() string { return fmt.Sprintf("Polynomial[degree=%d]", p.degree) }

func (p *Polynomial) AcceptsWeights() bool { return true }

// Fit solves the normal equations on a centered and scaled x. Points with
// zero weight do not contribute.
func (p *Polynomial) Fit(x, y, w []float64) error {
	k := p.degree + 1
	if err := checkTraining(x, y, w, k); err != nil {
		return err
	}
	p.fitted = false

	p.center, p.scale = stat.MeanStdDev(x, nil)
	if p.scale == 0 || math.IsNaN(p.scale) {
		p.scale = 1
	}

	n := len(x)
	design := mat.NewDense(n, k, nil)
	for i := range x {
		p.row(design.RawRowView(i), x[i])
	}

	xtwx := mat.NewDense(k, k, nil)
	xtwy := mat.NewVecDense(k, nil)
	for i := 0; i < n; i++ {
		wi := weightAt(w, i)
		if wi <= 0 {
			continue
		}
		row := design.RawRowView(i)
		for a := 0; a < k; a++ {
			xtwy.SetVec(a, xtwy.AtVec(a)+wi*row[a]*y[i])
			for b := 0; b < k; b++ {
				xtwx.Set(a, b, xtwx.At(a, b)+wi*row[a]*row[b])
			}
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(xtwx); err != nil {
		return apperrors.Numerical(core.ErrInsufficientData, "design matrix is singular: %v", err)
	}
	var coef mat.VecDense
	coef.MulVec(&inv, xtwy)

	var rss, wsum float64
	positive := 0
	for i := 0; i < n; i++ {
		wi := weightAt(w, i)
		if wi <= 0 {
			continue
		}
		r := y[i] - mat.Dot(coef.SliceVec(0, k), mat.NewVecDense(k, design.RawRowView(i)))
		rss += wi * r * r
		wsum += wi
		positive++
	}
	p.dof = float64(positive - k)
	if p.dof > 0 {
		// weights are rescaled to mean one so sigma2 stays on the scale of y
		p.sigma2 = rss / (wsum / float64(positive)) / p.dof
	}

	p.coef = mat.Col(nil, 0, &coef)
	p.cov = &inv
	p.fitted = true
	return nil
}

func (p *Polynomial) row(dst []float64, x float64) {
	z := (x - p.center) / p.scale
	v := 1.0
	for j := range dst {
		dst[j] = v
		v *= z
	}
}

func (p *Polynomial) Predict(x []float64) ([]float64, error) {
	if !p.fitted {
		return nil, apperrors.Validation(core.ErrNotFitted, "%s is not fitted", p.Name())
	}
	out := make([]float64, len(x))
	row := make([]float64, len(p.coef))
	for i, xi := range x {
		p.row(row, xi)
		for j, c := range p.coef {
			out[i] += c * row[j]
		}
	}
	return out, nil
}

// ConfidenceInterval returns ŷ ± t(level) · sqrt(σ² φ(x)'(X'WX)⁻¹φ(x)).
func (p *Polynomial) ConfidenceInterval(x []float64) ([][2]float64, error) {
	yhat, err := p.Predict(x)
	if err != nil {
		return nil, err
	}
	if p.dof <= 0 {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "no residual degrees of freedom for %s", p.Name())
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: p.dof}.Quantile(1 - (1-p.level)/2)

	k := len(p.coef)
	row := mat.NewVecDense(k, nil)
	var tmp mat.VecDense
	out := make([][2]float64, len(x))
	for i, xi := range x {
		p.row(row.RawVector().Data, xi)
		tmp.MulVec(p.cov, row)
		se := math.Sqrt(math.Max(0, p.sigma2*mat.Dot(row, &tmp)))
		out[i] = [2]float64{yhat[i] - t*se, yhat[i] + t*se}
	}
	return out, nil
}

func (p *Polynomial) Clone(fitted bool) ports.Regressor {
	c := &Polynomial{degree: p.degree, level: p.level}
	if fitted && p.fitted {
		c.fitted = true
		c.center, c.scale = p.center, p.scale
		c.coef = append([]float64(nil), p.coef...)
		c.cov = mat.DenseCopyOf(p.cov)
		c.sigma2, c.dof = p.sigma2, p.dof
	}
	return c
}
