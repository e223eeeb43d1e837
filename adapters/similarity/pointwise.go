package similarity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cellfate/internal/numeric"
)

// DistanceFunc compares two probability vectors; 0 means identical.
type DistanceFunc func(p, q []float64) float64

// Pointwise inverts a distance or divergence between column distributions.
// Rows holding a zero in either matrix are dropped and columns are
// L1-normalized before comparison.
type Pointwise struct {
	name     string
	distance DistanceFunc
}

// NewPointwise wraps an arbitrary distance under the given name.
func NewPointwise(name string, distance DistanceFunc) *Pointwise {
	return &Pointwise{name: name, distance: distance}
}

// NewWasserstein compares columns with the 1-D earth mover's distance (symmetric).
func NewWasserstein() *Pointwise { return NewPointwise(WassersteinDist, Wasserstein1D) }

// NewKLDivergence uses KL(query || reference) (not symmetric).
func NewKLDivergence() *Pointwise { return NewPointwise(KLDiv, stat.KullbackLeibler) }

// NewJSDivergence uses the Jensen-Shannon distance (symmetric).
func NewJSDivergence() *Pointwise { return NewPointwise(JSDiv, JensenShannonDistance) }

// Name returns the measure name
func (p *Pointwise) Name() string { return p.name }

// Weights returns 1 / distance(query_i, reference_j).
func (p *Pointwise) Weights(reference, query *mat.Dense) (*mat.Dense, error) {
	ref, qry, err := removeZeroRows(reference, query)
	if err != nil {
		return nil, err
	}
	ref = numeric.ColNormalize(ref, 1)
	qry = numeric.ColNormalize(qry, 1)

	_, nr := ref.Dims()
	_, nq := qry.Dims()
	out := mat.NewDense(nq, nr, nil)
	for i := 0; i < nq; i++ {
		q := mat.Col(nil, i, qry)
		for j := 0; j < nr; j++ {
			r := mat.Col(nil, j, ref)
			out.Set(i, j, 1/p.distance(q, r))
		}
	}
	return out, nil
}

// JensenShannonDistance is the square root of the Jensen-Shannon divergence
// with natural logarithms.
func JensenShannonDistance(p, q []float64) float64 {
	d := stat.JensenShannon(p, q)
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}

// Wasserstein1D is the first Wasserstein distance between the empirical
// distributions whose samples are u and v.
func Wasserstein1D(u, v []float64) float64 {
	us := append([]float64(nil), u...)
	vs := append([]float64(nil), v...)
	sort.Float64s(us)
	sort.Float64s(vs)

	all := make([]float64, 0, len(us)+len(vs))
	all = append(all, us...)
	all = append(all, vs...)
	sort.Float64s(all)

	d := 0.0
	for k := 0; k < len(all)-1; k++ {
		delta := all[k+1] - all[k]
		if delta == 0 {
			continue
		}
		ucdf := float64(countLE(us, all[k])) / float64(len(us))
		vcdf := float64(countLE(vs, all[k])) / float64(len(vs))
		d += math.Abs(ucdf-vcdf) * delta
	}
	return d
}

// countLE returns the number of elements of sorted xs that are <= v.
func countLE(xs []float64, v float64) int {
	return sort.Search(len(xs), func(i int) bool { return xs[i] > v })
}
