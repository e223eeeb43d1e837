package similarity

import (
	"gonum.org/v1/gonum/mat"

	"cellfate/internal/numeric"
)

// CosineSimilarity compares L2-normalized columns. It is symmetric and needs no
// zero-row removal.
type CosineSimilarity struct{}

// Name returns the measure name
func (CosineSimilarity) Name() string { return CosineSim }

// Weights returns query^T * reference on unit-norm columns.
func (CosineSimilarity) Weights(reference, query *mat.Dense) (*mat.Dense, error) {
	ref := numeric.ColNormalize(reference, 2)
	qry := numeric.ColNormalize(query, 2)

	_, nr := ref.Dims()
	_, nq := qry.Dims()
	out := mat.NewDense(nq, nr, nil)
	out.Mul(qry.T(), ref)
	return out, nil
}

// EqualWeights gives every reference lineage the same share.
type EqualWeights struct{}

// Name returns the measure name
func (EqualWeights) Name() string { return Equal }

// Weights returns a row-normalized matrix of ones.
func (EqualWeights) Weights(reference, query *mat.Dense) (*mat.Dense, error) {
	_, nr := reference.Dims()
	_, nq := query.Dims()
	out := mat.NewDense(nq, nr, nil)
	for i := 0; i < nq; i++ {
		for j := 0; j < nr; j++ {
			out.Set(i, j, 1)
		}
	}
	return numeric.RowNormalize(out), nil
}
