// Package batch fits one trend model per gene in parallel. Every gene runs on
// a deep copy of a seed model, so the seed is never mutated.
package batch

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"cellfate/domain/core"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/trend"
)

var logger = internal.DefaultLogger.With("batch")

// Result is the outcome of one gene.
type Result struct {
	Gene     string
	Lineage  string
	Model    string
	XTest    []float64
	YTest    []float64
	ConfInt  [][2]float64
	Duration time.Duration
	Err      error
}

// Run aggregates a batch in gene order.
type Run struct {
	ID        core.RunID
	CreatedAt time.Time
	Results   []Result
	Failed    int
}

// Summary describes a stored run without its results.
type Summary struct {
	ID        core.RunID `db:"id" json:"id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Genes     int        `db:"n_genes" json:"genes"`
	Failed    int        `db:"n_failed" json:"failed"`
}

// Recorder persists finished runs.
type Recorder interface {
	SaveRun(ctx context.Context, run *Run) error
}

// Fitter fits Seed on many genes.
type Fitter struct {
	Seed        trend.Model
	Parallelism int64 // maximum concurrent fits, defaults to GOMAXPROCS
	// ConfInt also computes confidence intervals.
	ConfInt bool
	// Recorder, when set, receives every completed run.
	Recorder Recorder
}

// FitGenes prepares, fits and predicts every gene. A gene failure is recorded
// in its Result; only context cancellation aborts the run.
func (f *Fitter) FitGenes(ctx context.Context, genes []string, lin string, opts ...trend.PrepareOption) (*Run, error) {
	if f.Seed == nil {
		return nil, apperrors.Validation(core.ErrUnknownOption, "batch fitter has no seed model")
	}
	limit := f.Parallelism
	if limit <= 0 {
		limit = int64(runtime.GOMAXPROCS(0))
	}

	run := &Run{ID: core.NewRunID(), CreatedAt: time.Now().UTC(), Results: make([]Result, len(genes))}
	logger.Info("run %s: fitting %d genes in lineage %q with %s (parallelism %d)", run.ID, len(genes), lin, f.Seed, limit)

	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)
	for i, gene := range genes {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		// each goroutine owns its copy of the seed
		model := f.Seed.DeepCopy()
		g.Go(func() error {
			defer sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			run.Results[i] = f.fitOne(model, gene, lin, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrapf(err, "run %s cancelled", run.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrapf(err, "run %s cancelled", run.ID)
	}

	for _, r := range run.Results {
		if r.Err != nil {
			run.Failed++
			logger.Warn("run %s: gene %q failed: %v", run.ID, r.Gene, r.Err)
		}
	}
	logger.Info("run %s: %d/%d genes fitted", run.ID, len(genes)-run.Failed, len(genes))

	if f.Recorder != nil {
		if err := f.Recorder.SaveRun(ctx, run); err != nil {
			return run, apperrors.Wrapf(err, "failed to record run %s", run.ID)
		}
	}
	return run, nil
}

func (f *Fitter) fitOne(m trend.Model, gene, lin string, opts []trend.PrepareOption) (res Result) {
	start := time.Now()
	res = Result{Gene: gene, Lineage: lin, Model: m.String()}
	defer func() { res.Duration = time.Since(start) }()

	if err := m.Prepare(gene, lin, opts...); err != nil {
		res.Err = err
		return res
	}
	if err := m.Fit(); err != nil {
		res.Err = err
		return res
	}
	if _, err := m.Predict(nil); err != nil {
		res.Err = apperrors.FitFailed(m.String(), gene, lin, err)
		return res
	}
	if f.ConfInt {
		if _, err := m.ConfidenceInterval(nil); err != nil {
			res.Err = apperrors.FitFailed(m.String(), gene, lin, err)
			return res
		}
	}
	st := m.State()
	res.Model = m.String()
	res.XTest, res.YTest, res.ConfInt = st.XTest, st.YTest, st.ConfInt
	return res
}
