package similarity

import (
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/spatial/kdtree"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// MutualInformation estimates I(reference_j; query_i) with the Kraskov kNN
// estimator. It is not symmetric in general and invariant to column scaling,
// so no normalization is applied.
type MutualInformation struct {
	neighbors int
	seed      int64
}

// NewMutualInformation creates the estimator with k neighbors and a jitter seed.
func NewMutualInformation(neighbors int, seed int64) *MutualInformation {
	if neighbors <= 0 {
		neighbors = 3
	}
	return &MutualInformation{neighbors: neighbors, seed: seed}
}

// Name returns the measure name
func (m *MutualInformation) Name() string { return MutualInfo }

// Weights returns the estimated mutual information for every (query, reference) pair.
func (m *MutualInformation) Weights(reference, query *mat.Dense) (*mat.Dense, error) {
	n, nr := reference.Dims()
	qn, nq := query.Dims()
	if n != qn {
		return nil, apperrors.Validation(core.ErrInvalidShape, "lineage objects have unequal cell numbers: %d vs %d", n, qn)
	}
	if n <= m.neighbors {
		return nil, apperrors.Validation(core.ErrInvalidShape,
			"mutual information needs more than %d cells, found %d", m.neighbors, n)
	}

	rng := rand.New(rand.NewSource(m.seed))
	features := make([][]float64, nr)
	for j := range features {
		features[j] = jitter(scaleUnit(mat.Col(nil, j, reference)), rng)
	}

	out := mat.NewDense(nq, nr, nil)
	for i := 0; i < nq; i++ {
		target := jitter(scaleUnit(mat.Col(nil, i, query)), rng)
		for j, x := range features {
			out.Set(i, j, m.estimate(x, target))
		}
	}
	return out, nil
}

// scaleUnit divides by the population standard deviation, leaving constant
// vectors untouched.
func scaleUnit(x []float64) []float64 {
	sd, err := stats.StandardDeviationPopulation(x)
	if err != nil || sd == 0 {
		return x
	}
	for i := range x {
		x[i] /= sd
	}
	return x
}

// jitter breaks ties with noise far below the data resolution.
func jitter(x []float64, rng *rand.Rand) []float64 {
	meanAbs := 0.0
	for _, v := range x {
		meanAbs += math.Abs(v)
	}
	meanAbs /= float64(len(x))
	scale := 1e-10 * math.Max(1, meanAbs)
	for i := range x {
		x[i] += scale * rng.NormFloat64()
	}
	return x
}

// estimate computes the KSG (algorithm 1) estimate for continuous x and y.
func (m *MutualInformation) estimate(x, y []float64) float64 {
	n := len(x)
	pts := make(jointPoints, n)
	for i := range pts {
		pts[i] = jointPoint{x[i], y[i]}
	}
	tree := kdtree.New(append(jointPoints(nil), pts...), false)

	xs := append([]float64(nil), x...)
	ys := append([]float64(nil), y...)
	sort.Float64s(xs)
	sort.Float64s(ys)

	var sumX, sumY float64
	for i, p := range pts {
		// k+1 neighbors: the point itself is always the nearest one
		keeper := kdtree.NewNKeeper(m.neighbors + 1)
		tree.NearestSet(keeper, p)
		radius := 0.0
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			if d := math.Sqrt(cd.Dist); d > radius {
				radius = d
			}
		}
		radius = math.Nextafter(radius, 0)

		nx := countWithin(xs, x[i], radius) - 1
		ny := countWithin(ys, y[i], radius) - 1
		sumX += mathext.Digamma(float64(nx) + 1)
		sumY += mathext.Digamma(float64(ny) + 1)
	}

	mi := mathext.Digamma(float64(n)) + mathext.Digamma(float64(m.neighbors)) -
		sumX/float64(n) - sumY/float64(n)
	return math.Max(0, mi)
}

// countWithin returns how many values of sorted xs satisfy |x-v| <= r. The
// searched bounds v-r and v+r are rounded, so both ends are corrected against
// the exact distance.
func countWithin(xs []float64, v, r float64) int {
	within := func(j int) bool { return math.Abs(xs[j]-v) <= r }

	lo := sort.Search(len(xs), func(i int) bool { return xs[i] >= v-r })
	for lo > 0 && within(lo-1) {
		lo--
	}
	for lo < len(xs) && xs[lo] < v && !within(lo) {
		lo++
	}

	hi := sort.Search(len(xs), func(i int) bool { return xs[i] > v+r })
	for hi < len(xs) && within(hi) {
		hi++
	}
	for hi > lo && xs[hi-1] > v && !within(hi-1) {
		hi--
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// jointPoint is a (x, y) sample compared under the Chebyshev metric.
type jointPoint [2]float64

func (p jointPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(jointPoint)
	return p[d] - q[d]
}

func (p jointPoint) Dims() int { return 2 }

// Distance returns the squared Chebyshev distance so that the tree's
// squared-plane-distance pruning stays valid.
func (p jointPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(jointPoint)
	d := math.Max(math.Abs(p[0]-q[0]), math.Abs(p[1]-q[1]))
	return d * d
}

type jointPoints []jointPoint

func (p jointPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p jointPoints) Len() int                      { return len(p) }
func (p jointPoints) Pivot(d kdtree.Dim) int {
	return jointPlane{jointPoints: p, Dim: d}.Pivot()
}
func (p jointPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type jointPlane struct {
	kdtree.Dim
	jointPoints
}

func (p jointPlane) Less(i, j int) bool {
	return p.jointPoints[i][p.Dim] < p.jointPoints[j][p.Dim]
}
func (p jointPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p jointPlane) Slice(start, end int) kdtree.SortSlicer {
	p.jointPoints = p.jointPoints[start:end]
	return p
}
func (p jointPlane) Swap(i, j int) {
	p.jointPoints[i], p.jointPoints[j] = p.jointPoints[j], p.jointPoints[i]
}
